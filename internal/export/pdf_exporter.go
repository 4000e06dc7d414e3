package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 277.0 // A4 landscape minus margins
	pdfMaxColumns = 10
)

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType is the MIME type of rendered output.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension is the file extension of rendered output.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates a PDF document with the dataset title and table body. Only
// the first columns that fit on the page are printed; cells are truncated.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	headers := data.Headers()
	if len(headers) > pdfMaxColumns {
		headers = headers[:pdfMaxColumns]
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	colWidth := pdfPageWidth / float64(len(headers))
	pdf.SetFont("Arial", "B", 9)
	for _, header := range headers {
		pdf.CellFormat(colWidth, 8, fit(pdf, tr(header), colWidth), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for i := range headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(colWidth, 7, fit(pdf, tr(value), colWidth), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// fit shortens text until it fits into a cell of width mm.
func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	limit := width - 2
	if pdf.GetStringWidth(text) <= limit {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > limit {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
