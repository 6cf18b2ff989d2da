// Package resource ingests tabular files into the uploads directory.
//
// Files arrive either as multipart uploads or as URL fetches. Each accepted
// file is written under a fresh uuid-based path so stored paths are never
// reused, even after deletion. Only tabular content (CSV/TSV by extension or
// MIME type) is accepted, and every ingestion path enforces the configured
// size cap.
package resource

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/talq0/talq/internal/log"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrTooLarge indicates the file exceeds the configured size cap.
	ErrTooLarge = errors.New("file exceeds size limit")

	// ErrUnsupportedType indicates the file is not tabular content.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrFetch indicates a URL resource could not be retrieved.
	ErrFetch = errors.New("fetching resource")
)

// DefaultMaxBytes is the ingestion size cap when none is configured (20 MiB).
const DefaultMaxBytes = 20 << 20

// DefaultFetchTimeout bounds URL fetches when none is configured.
const DefaultFetchTimeout = 30 * time.Second

// StoredFile describes a file accepted into the uploads directory.
type StoredFile struct {
	OriginalName string
	StoredPath   string
	MimeType     string
	SizeBytes    int64
}

// Config defines ingestion options.
type Config struct {
	// Dir is the uploads directory. Required; created if absent.
	Dir string

	// MaxBytes caps accepted file size. Default: DefaultMaxBytes.
	MaxBytes int64

	// FetchTimeout bounds URL fetches. Default: DefaultFetchTimeout.
	FetchTimeout time.Duration

	// HTTPClient is used for URL fetches. Default: a client with
	// FetchTimeout as its overall timeout.
	HTTPClient *http.Client

	// Logger is required.
	Logger log.Logger
}

// Store writes accepted files into the uploads directory.
type Store struct {
	dir      string
	maxBytes int64
	client   *http.Client
	logger   log.Logger
}

// New creates an ingestion store, creating cfg.Dir if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("resource: uploads directory is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("resource: logger is required")
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating uploads directory: %w", err)
	}
	return &Store{
		dir:      cfg.Dir,
		maxBytes: cfg.MaxBytes,
		client:   cfg.HTTPClient,
		logger:   cfg.Logger,
	}, nil
}

// tabularExtensions lists accepted file suffixes (lowercase).
var tabularExtensions = map[string]string{
	".csv": "text/csv",
	".tsv": "text/tab-separated-values",
}

// tabularMimeTypes lists accepted MIME types after parameters are stripped.
var tabularMimeTypes = map[string]bool{
	"text/csv":                  true,
	"application/csv":           true,
	"text/tab-separated-values": true,
	"text/plain":                true,
}

// acceptedType decides whether a file is tabular, preferring the filename
// extension and falling back to the declared content type. It returns the
// canonical MIME type to record.
func acceptedType(name, contentType string) (string, bool) {
	if mt, ok := tabularExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return mt, true
	}
	parsed, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	if tabularMimeTypes[parsed] {
		if parsed == "text/plain" || parsed == "application/csv" {
			parsed = "text/csv"
		}
		return parsed, true
	}
	return "", false
}

// Save writes the content of r into the uploads directory under a fresh
// uuid-based path. The original filename is kept only as metadata. Content
// larger than the size cap is rejected and the partial file removed.
func (s *Store) Save(originalName, contentType string, r io.Reader) (*StoredFile, error) {
	originalName = path.Base(strings.TrimSpace(originalName))
	if originalName == "" || originalName == "." || originalName == "/" {
		return nil, fmt.Errorf("%w: missing filename", ErrUnsupportedType)
	}
	mimeType, ok := acceptedType(originalName, contentType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, originalName)
	}

	storedPath := filepath.Join(s.dir, uuid.New().String()+filepath.Ext(originalName))
	f, err := os.OpenFile(storedPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("creating stored file: %w", err)
	}

	// Read one byte past the cap so oversized input is distinguishable
	// from input exactly at the cap.
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		s.remove(storedPath)
		return nil, fmt.Errorf("writing stored file: %w", err)
	case n > s.maxBytes:
		s.remove(storedPath)
		return nil, fmt.Errorf("%w: %s is larger than %d bytes", ErrTooLarge, originalName, s.maxBytes)
	}

	s.logger.Debug("resource stored",
		"original_name", originalName,
		"stored_path", storedPath,
		"size_bytes", n,
	)
	return &StoredFile{
		OriginalName: originalName,
		StoredPath:   storedPath,
		MimeType:     mimeType,
		SizeBytes:    n,
	}, nil
}

// Fetch downloads a tabular file from rawURL and stores it like Save. The
// request runs under the store's HTTP client timeout. The filename is taken
// from the final path segment of the URL.
func (s *Store) Fetch(rawURL string) (*StoredFile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid url %q", ErrFetch, rawURL)
	}

	resp, err := s.client.Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("closing fetch response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, rawURL, resp.StatusCode)
	}
	if resp.ContentLength > s.maxBytes {
		return nil, fmt.Errorf("%w: remote file is %d bytes", ErrTooLarge, resp.ContentLength)
	}

	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		name = "download.csv"
	}
	return s.Save(name, resp.Header.Get("Content-Type"), resp.Body)
}

// Remove deletes a stored file. Missing files are not an error so deletion
// stays idempotent.
func (s *Store) Remove(storedPath string) error {
	if err := os.Remove(storedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stored file: %w", err)
	}
	return nil
}

// remove is the best-effort cleanup used on failed writes.
func (s *Store) remove(storedPath string) {
	if err := os.Remove(storedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("removing partial file", "path", storedPath, "error", err)
	}
}
