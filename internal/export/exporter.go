package export

import (
	"fmt"
	"strings"
)

// Renderer renders a dataset into a downloadable document.
type Renderer interface {
	Render(Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ForFormat returns the renderer for a format name. An empty format selects CSV.
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return NewCSVExporter(), nil
	case "pdf":
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
