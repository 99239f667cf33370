package features

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Table is a CSV loaded through the feature pipeline.
type Table struct {
	// Columns lists the numeric feature columns in file order.
	Columns []string
	Rows    []Record
}

// ReadCSV loads a headered CSV. A column is numeric when every non-empty
// cell parses as a float; other columns are dropped, as is LabelColumn.
// Empty numeric cells become zero.
func ReadCSV(r io.Reader) (Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("read csv: missing header")
	}
	header, body := records[0], records[1:]

	var keep []int
	for i, name := range header {
		name = strings.TrimSpace(name)
		header[i] = name
		if name == LabelColumn || name == "" {
			continue
		}
		if numericColumn(body, i) {
			keep = append(keep, i)
		}
	}

	t := Table{Columns: make([]string, 0, len(keep)), Rows: make([]Record, 0, len(body))}
	for _, i := range keep {
		t.Columns = append(t.Columns, header[i])
	}
	for _, row := range body {
		rec := make(Record, len(keep))
		for _, i := range keep {
			var f float64
			if i < len(row) {
				if s := strings.TrimSpace(row[i]); s != "" {
					f, _ = strconv.ParseFloat(s, 64)
				}
			}
			rec[header[i]] = f
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func numericColumn(rows [][]string, col int) bool {
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		s := strings.TrimSpace(row[col])
		if s == "" {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return false
		}
	}
	return true
}
