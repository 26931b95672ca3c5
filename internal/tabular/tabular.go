// Package tabular reads analyst spreadsheets (CSV and XLSX) into header-keyed
// records.
package tabular

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one data row keyed by lower-cased header name.
type Record map[string]string

// ReadFile reads a .csv or .xlsx file whose first row is a header.
func ReadFile(path string) ([]Record, error) {
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "tabular: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(f, CSVOptions{TrimSpace: true, Comment: '#'})
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("tabular: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tabular: read %s", path)
	}
	return ToRecords(rows), nil
}

// ToRecords keys rows by the first row. Blank rows are dropped and short
// rows leave trailing columns empty.
func ToRecords(rows [][]string) []Record {
	if len(rows) == 0 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	out := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = strings.TrimSpace(row[i])
			} else {
				rec[h] = ""
			}
		}
		out = append(out, rec)
	}
	return out
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
