package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "entries.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadCSV(t *testing.T) {
	in := "name,field,value\n# analyst note\n Acme , ceo, Jane Doe \nGlobex,revenue\n"
	rows, err := ReadCSV(strings.NewReader(in), CSVOptions{TrimSpace: true, Comment: '#'})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Acme", "ceo", "Jane Doe"}, rows[1])
	assert.Equal(t, []string{"Globex", "revenue"}, rows[2])
}

func TestReadCSV_Delimiter(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("a;b\n1;2\n"), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestReadCSV_Malformed(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,\"b\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Entries": {
			{"Name", "Field", "Value"},
			{"Acme", "ceo", "Jane Doe"},
		},
	})

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Acme", "ceo", "Jane Doe"}, rows[1])

	rows, err = ReadXLSX(path, XLSXOptions{SheetName: "Entries"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.ErrorContains(t, err, "not found")

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")
}

func TestToRecords(t *testing.T) {
	recs := ToRecords([][]string{
		{" Name ", "FIELD", ""},
		{"Acme", "ceo", "ignored"},
		{"", " "},
		{"Globex"},
	})
	require.Len(t, recs, 2)
	assert.Equal(t, Record{"name": "Acme", "field": "ceo"}, recs[0])
	assert.Equal(t, Record{"name": "Globex", "field": ""}, recs[1])
	assert.Nil(t, ToRecords(nil))
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "entries.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("name,field,value\nAcme,ceo,Jane Doe\n"), 0o600))

	recs, err := ReadFile(csvPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Jane Doe", recs[0]["value"])

	xlsxPath := createTestXLSX(t, map[string][][]string{
		"Sheet1": {{"name", "field", "value"}, {"Acme", "revenue", "5000000"}},
	})
	recs, err = ReadFile(xlsxPath)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "5000000", recs[0]["value"])

	_, err = ReadFile(filepath.Join(dir, "entries.txt"))
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = ReadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}
