// Package importer reads legacy price files (CSV or XLSX) into records.
// Dates are parsed leniently; prices must pass the extractor's checks.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/copper-cli/internal/extract"
	"github.com/sells-group/copper-cli/internal/model"
)

// Options configures an import.
type Options struct {
	// Material names the records; a region column overrides its Region.
	Material  model.MaterialConfig
	Extractor extract.Extractor
	// Location interprets dates that carry a time of day.
	Location  *time.Location
	SheetName string
}

// RowError describes a rejected row. Row is 1-based.
type RowError struct {
	Row    int
	Reason string
}

func (e RowError) String() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

// Result holds the accepted records in file order and the rejected rows.
type Result struct {
	Records  []model.PriceRecord
	Rejected []RowError
}

// ReadFile reads path, choosing the format from its extension.
func ReadFile(path string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := readXLSX(path, opts.SheetName)
		if err != nil {
			return nil, err
		}
		return Parse(rows, opts), nil
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "importer: open")
		}
		defer f.Close()
		return ReadCSV(f, opts)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV reads comma-separated rows from r.
func ReadCSV(r io.Reader, opts Options) (*Result, error) {
	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, utf8BOM) {
		_, _ = br.Discard(3)
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.Comment = '#'

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "importer: read csv")
	}
	return Parse(rows, opts), nil
}

func readXLSX(path, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "importer: open xlsx")
	}

	var sheet *xlsx.Sheet
	switch {
	case sheetName != "":
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("importer: sheet %q not found", sheetName)
		}
		sheet = s
	case len(f.Sheets) > 0:
		sheet = f.Sheets[0]
	default:
		return nil, eris.New("importer: workbook has no sheets")
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// columns maps field names to cell indexes.
type columns struct {
	date, price, unit, region int
}

var positional = columns{date: 0, price: 1, unit: 2, region: -1}

var headerNames = map[string][]string{
	"date":   {"date", "日期", "时间"},
	"price":  {"price", "价格", "均价", "现货价"},
	"unit":   {"unit", "单位"},
	"region": {"region", "地区", "区域"},
}

// detectHeader returns the column layout named by a header row.
func detectHeader(cells []string) (columns, bool) {
	c := columns{date: -1, price: -1, unit: -1, region: -1}
	for i, cell := range cells {
		name := strings.ToLower(strings.TrimSpace(cell))
		for field, aliases := range headerNames {
			for _, a := range aliases {
				if name != a {
					continue
				}
				switch field {
				case "date":
					c.date = i
				case "price":
					c.price = i
				case "unit":
					c.unit = i
				case "region":
					c.region = i
				}
			}
		}
	}
	return c, c.date >= 0 && c.price >= 0
}

// Parse converts raw rows into records. Blank rows are ignored; any other
// row that cannot be read is reported in Rejected.
func Parse(rows [][]string, opts Options) *Result {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	res := &Result{}
	cols := positional
	for i, cells := range rows {
		rowNum := i + 1
		if blank(cells) {
			continue
		}
		if i == 0 {
			if c, ok := detectHeader(cells); ok {
				cols = c
				continue
			}
		}

		get := func(idx int) string {
			if idx >= 0 && idx < len(cells) {
				return strings.TrimSpace(cells[idx])
			}
			return ""
		}

		date, err := ParseDate(get(cols.date), loc)
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		price, err := parsePrice(get(cols.price))
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}

		q := model.Quote{Date: date, Price: price, Unit: get(cols.unit)}
		if err := opts.Extractor.Validate(q); err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}

		m := opts.Material
		if region := get(cols.region); region != "" {
			m.Region = region
		}
		q.Unit = opts.Extractor.ResolveUnit(q.Unit, m.Unit)
		res.Records = append(res.Records, model.NewRecord(m, q, model.SourceImport))
	}
	return res
}

// ParseDate reads a date in any common layout, including 2024年5月20日,
// and returns it as YYYY-MM-DD.
func ParseDate(s string, loc *time.Location) (string, error) {
	if s == "" {
		return "", eris.New("importer: missing date")
	}
	norm := strings.NewReplacer("年", "/", "月", "/", "日", "").Replace(s)
	t, err := dateparse.ParseIn(norm, loc)
	if err != nil {
		return "", eris.Errorf("importer: unreadable date %q", s)
	}
	return model.FormatDate(t.In(loc)), nil
}

func parsePrice(s string) (float64, error) {
	clean := strings.NewReplacer(",", "", "，", "", "元/吨", "", " ", "").Replace(s)
	if clean == "" {
		return 0, eris.New("importer: missing price")
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, eris.Errorf("importer: unreadable price %q", s)
	}
	return v, nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
