package resource_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talq0/talq/internal/log"
	"github.com/talq0/talq/internal/resource"
)

func newTestStore(t *testing.T, maxBytes int64) *resource.Store {
	t.Helper()
	store, err := resource.New(resource.Config{
		Dir:      t.TempDir(),
		MaxBytes: maxBytes,
		Logger:   log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestStore_Save(t *testing.T) {
	store := newTestStore(t, 0)

	content := "region,amount\nNorth,100\n"
	stored, err := store.Save("sales.csv", "", strings.NewReader(content))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if stored.OriginalName != "sales.csv" {
		t.Errorf("OriginalName = %q, want %q", stored.OriginalName, "sales.csv")
	}
	if stored.MimeType != "text/csv" {
		t.Errorf("MimeType = %q, want %q", stored.MimeType, "text/csv")
	}
	if stored.SizeBytes != int64(len(content)) {
		t.Errorf("SizeBytes = %d, want %d", stored.SizeBytes, len(content))
	}

	got, err := os.ReadFile(stored.StoredPath)
	if err != nil {
		t.Fatalf("reading stored file: %v", err)
	}
	if string(got) != content {
		t.Errorf("stored content = %q, want %q", got, content)
	}
	if filepath.Base(stored.StoredPath) == "sales.csv" {
		t.Error("stored path should not reuse the original filename")
	}
}

func TestStore_SavePathsNeverCollide(t *testing.T) {
	store := newTestStore(t, 0)

	first, err := store.Save("data.csv", "", strings.NewReader("a\n1\n"))
	if err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	second, err := store.Save("data.csv", "", strings.NewReader("a\n2\n"))
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	if first.StoredPath == second.StoredPath {
		t.Errorf("stored paths collide: %q", first.StoredPath)
	}
}

func TestStore_SaveRejectsOversized(t *testing.T) {
	store := newTestStore(t, 16)

	_, err := store.Save("big.csv", "", strings.NewReader(strings.Repeat("x", 64)))
	if !errors.Is(err, resource.ErrTooLarge) {
		t.Fatalf("Save() error = %v, want ErrTooLarge", err)
	}
}

func TestStore_SaveRejectsNonTabular(t *testing.T) {
	store := newTestStore(t, 0)

	tests := []struct {
		name        string
		filename    string
		contentType string
	}{
		{"binary extension", "report.pdf", "application/pdf"},
		{"image", "photo.png", "image/png"},
		{"no name", "", "text/csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Save(tt.filename, tt.contentType, strings.NewReader("a,b\n"))
			if !errors.Is(err, resource.ErrUnsupportedType) {
				t.Errorf("Save(%q) error = %v, want ErrUnsupportedType", tt.filename, err)
			}
		})
	}
}

func TestStore_SaveAcceptsByMimeType(t *testing.T) {
	store := newTestStore(t, 0)

	// No usable extension, but the declared type marks it tabular.
	stored, err := store.Save("export", "text/csv; charset=utf-8", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if stored.MimeType != "text/csv" {
		t.Errorf("MimeType = %q, want %q", stored.MimeType, "text/csv")
	}
}

func TestStore_Fetch(t *testing.T) {
	content := "region,amount\nSouth,50\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	store := newTestStore(t, 0)
	stored, err := store.Fetch(srv.URL + "/data/sales.csv")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if stored.OriginalName != "sales.csv" {
		t.Errorf("OriginalName = %q, want %q", stored.OriginalName, "sales.csv")
	}
	if stored.SizeBytes != int64(len(content)) {
		t.Errorf("SizeBytes = %d, want %d", stored.SizeBytes, len(content))
	}
}

func TestStore_FetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing.csv":
			http.NotFound(w, r)
		case "/big.csv":
			w.Header().Set("Content-Type", "text/csv")
			_, _ = w.Write([]byte(strings.Repeat("x", 128)))
		}
	}))
	defer srv.Close()

	store := newTestStore(t, 32)

	if _, err := store.Fetch(srv.URL + "/missing.csv"); !errors.Is(err, resource.ErrFetch) {
		t.Errorf("Fetch(missing) error = %v, want ErrFetch", err)
	}
	if _, err := store.Fetch(srv.URL + "/big.csv"); !errors.Is(err, resource.ErrTooLarge) {
		t.Errorf("Fetch(big) error = %v, want ErrTooLarge", err)
	}
	if _, err := store.Fetch("ftp://example.com/data.csv"); !errors.Is(err, resource.ErrFetch) {
		t.Errorf("Fetch(ftp) error = %v, want ErrFetch", err)
	}
}

func TestStore_Remove(t *testing.T) {
	store := newTestStore(t, 0)

	stored, err := store.Save("sales.csv", "", strings.NewReader("a\n1\n"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Remove(stored.StoredPath); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(stored.StoredPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file still exists after Remove: %v", err)
	}

	// Idempotent on missing files.
	if err := store.Remove(stored.StoredPath); err != nil {
		t.Errorf("second Remove() error = %v", err)
	}
}
