package tabular

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Table is a parsed delimited file: an ordered header and rows of named fields.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// ParseOptions controls projection and truncation during Parse.
type ParseOptions struct {
	// Limit truncates the row count when > 0. The header is never truncated.
	Limit int

	// Columns projects the result onto the named columns. Names absent from
	// the header are ignored, but a projection matching none of them fails
	// with ErrColumnNotFound. An empty slice keeps every column.
	Columns []string
}

// Parse reads the whole file at path and splits it into header + rows.
// Malformed content (unbalanced quoting, inconsistent field counts) fails
// with an error wrapping ErrParse.
func (e *Engine) Parse(path string, opts ParseOptions) (*Table, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from the resource store, not user input
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrParse)
	}

	header := records[0]
	rows := records[1:]
	if opts.Limit > 0 && len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
	}

	// Projection keeps only requested columns that exist in the header.
	keep := header
	if len(opts.Columns) > 0 {
		keep = make([]string, 0, len(opts.Columns))
		for _, want := range opts.Columns {
			for _, have := range header {
				if have == want {
					keep = append(keep, have)
					break
				}
			}
		}
		if len(keep) == 0 {
			return nil, fmt.Errorf("%w: none of %v in header", ErrColumnNotFound, opts.Columns)
		}
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}

	out := make([]map[string]string, 0, len(rows))
	for _, record := range rows {
		row := make(map[string]string, len(keep))
		for _, name := range keep {
			if i := index[name]; i < len(record) {
				row[name] = record[i]
			}
		}
		out = append(out, row)
	}

	return &Table{Columns: keep, Rows: out}, nil
}

// coerceNumeric attempts to interpret s as a float64.
func coerceNumeric(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}
