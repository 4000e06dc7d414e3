// Package export renders filtered submission listings as CSV or PDF.
package export

import (
	"time"

	"github.com/charlesng35/formdesk/internal/models"
)

// Column is one exported column.
type Column struct {
	Key   string
	Label string
}

// Dataset is tabular export content. Every row has one cell per column.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    [][]string
}

// Headers returns the column labels.
func (d Dataset) Headers() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Label
	}
	return out
}

const timestampLayout = "2006-01-02 15:04:05"

// FromSubmissions builds a dataset with the submission id and date followed by
// the payload keys in fields. Missing keys produce empty cells.
func FromSubmissions(title string, subs []models.ContactSubmission, fields []Column, loc *time.Location) (Dataset, error) {
	if loc == nil {
		loc = time.UTC
	}

	columns := make([]Column, 0, len(fields)+2)
	columns = append(columns, Column{Key: "id", Label: "ID"}, Column{Key: "created_at", Label: "Submitted At"})
	columns = append(columns, fields...)

	rows := make([][]string, 0, len(subs))
	for i := range subs {
		p, err := subs[i].Payload()
		if err != nil {
			return Dataset{}, err
		}
		row := make([]string, 0, len(columns))
		row = append(row, subs[i].ID, subs[i].CreatedAt.In(loc).Format(timestampLayout))
		for _, f := range fields {
			if v, ok := p.Get(f.Key); ok {
				row = append(row, v.Text())
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}

	return Dataset{Title: title, Columns: columns, Rows: rows}, nil
}
