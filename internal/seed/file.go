package seed

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Format is a seed file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatFromPath infers the format from a file name or URL path extension.
func FormatFromPath(p string) (Format, error) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("seed: unsupported seed file type %q", filepath.Ext(p))
	}
}

// FileSource loads companies from a local JSON, CSV or XLSX file.
type FileSource struct {
	Path  string
	Sheet string // xlsx sheet name; first sheet when empty
}

// Load reads and validates the file.
func (s FileSource) Load(_ context.Context) ([]model.Company, error) {
	format, err := FormatFromPath(s.Path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", s.Path)
	}
	companies, err := Decode(data, format, s.Sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: load %s", s.Path)
	}
	return companies, nil
}

// Decode parses and validates seed data in the given format.
func Decode(data []byte, format Format, sheet string) ([]model.Company, error) {
	var (
		companies []model.Company
		err       error
	)
	switch format {
	case FormatJSON:
		companies, err = decodeJSON(data)
	case FormatCSV:
		companies, err = decodeCSV(bytes.NewReader(data))
	case FormatXLSX:
		companies, err = decodeXLSX(data, sheet)
	default:
		return nil, eris.Errorf("seed: unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return Validate(companies)
}

func decodeJSON(data []byte) ([]model.Company, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var companies []model.Company
	if err := dec.Decode(&companies); err != nil {
		return nil, eris.Wrap(err, "seed: decode json")
	}
	return companies, nil
}

func decodeCSV(r io.Reader) ([]model.Company, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "seed: read csv")
	}
	return fromRows(rows)
}

func decodeXLSX(data []byte, sheetName string) ([]model.Company, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "seed: open xlsx")
	}
	var sheet *xlsx.Sheet
	if sheetName != "" {
		var ok bool
		if sheet, ok = f.Sheet[sheetName]; !ok {
			return nil, eris.Errorf("seed: xlsx sheet %q not found", sheetName)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("seed: xlsx has no sheets")
		}
		sheet = f.Sheets[0]
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromRows(rows)
}

// fromRows maps a header row plus data rows to companies. Blank rows are
// ignored; an unparsable size is an error.
func fromRows(rows [][]string) ([]model.Company, error) {
	if len(rows) == 0 {
		return nil, eris.New("seed: file has no header row")
	}
	idx := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"id", "name", "domain"} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("seed: missing required column %q (have %v)", col, rows[0])
		}
	}

	cell := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	companies := make([]model.Company, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		c := model.Company{
			ID:       cell(row, "id"),
			Name:     cell(row, "name"),
			Domain:   cell(row, "domain"),
			Industry: cell(row, "industry"),
			Pains:    splitList(cell(row, "pains")),
			Notes:    splitList(cell(row, "notes")),
		}
		if raw := cell(row, "size"); raw != "" {
			size, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
			if err != nil {
				return nil, eris.Errorf("seed: row %d: invalid size %q", n+2, raw)
			}
			c.Size = int(size)
		}
		companies = append(companies, c)
	}
	return companies, nil
}
