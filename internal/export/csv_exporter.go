package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// CSVExporter renders datasets into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// ContentType is the MIME type of rendered output.
func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

// Extension is the file extension of rendered output.
func (e *CSVExporter) Extension() string { return "csv" }

// Render produces CSV encoded bytes for the dataset. Output starts with a
// UTF-8 byte order mark so spreadsheet tools detect the encoding.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("csv requires at least one column")
	}
	buf := &bytes.Buffer{}
	buf.WriteString("\uFEFF")
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers()); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
