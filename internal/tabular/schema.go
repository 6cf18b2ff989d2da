package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// schemaSampleRows bounds how many rows kind inference examines.
const schemaSampleRows = 1000

// ColumnKind classifies a column as numeric or textual.
type ColumnKind string

const (
	KindNumeric ColumnKind = "numeric"
	KindText    ColumnKind = "text"
)

// Column describes one column of a tabular resource.
type Column struct {
	Name string     `json:"name"`
	Kind ColumnKind `json:"kind"`
}

// Schema describes the shape of a tabular resource.
type Schema struct {
	Columns  []Column `json:"columns"`
	RowCount int      `json:"row_count"`
}

// ColumnNames returns the ordered column names.
func (s *Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Schema infers column kinds from the first schemaSampleRows rows and counts
// every row in the file. The kind of a column is numeric when the first
// non-empty sampled value coerces to a number, text otherwise (or when every
// sampled value is empty).
//
// Schema reads the file fresh on every call; two calls over an unchanged file
// yield identical results.
func (e *Engine) Schema(path string) (*Schema, error) {
	f, err := os.Open(path) // #nosec G304 -- paths come from the resource store, not user input
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	// sample[i] holds the first non-empty value seen for column i.
	sample := make([]string, len(header))
	sampled := make([]bool, len(header))

	rowCount := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		rowCount++
		if rowCount > schemaSampleRows {
			continue // keep counting, stop sampling
		}
		for i := range header {
			if sampled[i] || i >= len(record) || record[i] == "" {
				continue
			}
			sample[i] = record[i]
			sampled[i] = true
		}
	}

	columns := make([]Column, len(header))
	for i, name := range header {
		kind := KindText
		if sampled[i] {
			if _, ok := coerceNumeric(sample[i]); ok {
				kind = KindNumeric
			}
		}
		columns[i] = Column{Name: name, Kind: kind}
	}

	return &Schema{Columns: columns, RowCount: rowCount}, nil
}
