package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Report is a flat tabular view of a set of expense claims.
type Report struct {
	Title   string
	Headers []string
	Rows    []map[string]string
	// Summary lines are appended after the table, one per line, e.g. the
	// approved total for the exported period.
	Summary []string
}

// CSVExporter renders a Report into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the report. Summary lines follow
// the table as single-column records separated by a blank row.
func (e *CSVExporter) Render(r Report) ([]byte, error) {
	if len(r.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(r.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range r.Rows {
		record := make([]string, len(r.Headers))
		for i, header := range r.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	if len(r.Summary) > 0 {
		if err := writer.Write([]string{""}); err != nil {
			return nil, fmt.Errorf("write csv separator: %w", err)
		}
		for _, line := range r.Summary {
			if err := writer.Write([]string{line}); err != nil {
				return nil, fmt.Errorf("write csv summary: %w", err)
			}
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
