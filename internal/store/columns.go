package store

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/copper-cli/internal/model"
)

// fileColumns is the column order of CSV and XLSX files. The first three
// match the legacy "date,price,unit" append file.
var fileColumns = []string{"date", "price", "unit", "region", "category", "specification", "source", "change", "id"}

// sqlColumns is the column order of the SQL tables.
var sqlColumns = []string{"id", "date", "category", "region", "specification", "price", "unit", "source", "change"}

func sqlValues(r model.PriceRecord) []any {
	return []any{r.ID, r.Date, r.Category, r.Region, r.Specification, r.Price, r.Unit, r.Source, r.Change}
}

func recordToRow(r model.PriceRecord) []string {
	return []string{
		r.Date,
		formatFloat(r.Price),
		r.Unit,
		r.Region,
		r.Category,
		r.Specification,
		r.Source,
		formatFloat(r.Change),
		r.ID,
	}
}

// rowToRecord decodes a file row. Rows with only the legacy columns take
// region and naming from defaults.
func rowToRecord(cells []string, defaults model.MaterialConfig) (model.PriceRecord, error) {
	if len(cells) < 2 {
		return model.PriceRecord{}, eris.Errorf("store: row has %d columns, want at least 2", len(cells))
	}
	get := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	date := get(0)
	if _, err := model.ParseDate(date); err != nil {
		return model.PriceRecord{}, eris.Errorf("store: bad date %q", date)
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(get(1), ",", ""), 64)
	if err != nil {
		return model.PriceRecord{}, eris.Errorf("store: bad price %q", get(1))
	}

	r := model.PriceRecord{
		Date:          date,
		Price:         price,
		Unit:          orDefault(get(2), defaults.Unit),
		Region:        orDefault(get(3), defaults.Region),
		Category:      orDefault(get(4), defaults.Name),
		Specification: orDefault(get(5), defaults.Spec),
		Source:        orDefault(get(6), model.SourceDailySync),
		ID:            get(8),
	}
	if c := get(7); c != "" {
		if r.Change, err = strconv.ParseFloat(c, 64); err != nil {
			return model.PriceRecord{}, eris.Errorf("store: bad change %q", c)
		}
	}
	return r, nil
}

func isHeader(cells []string) bool {
	return len(cells) > 0 && strings.EqualFold(strings.TrimSpace(cells[0]), "date")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func hasExt(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

func sortByDateStable(recs []model.PriceRecord) {
	slices.SortStableFunc(recs, func(a, b model.PriceRecord) int {
		return strings.Compare(a.Date, b.Date)
	})
}
