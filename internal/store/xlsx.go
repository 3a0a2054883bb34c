package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/model"
)

const xlsxSheet = "prices"

// XLSXStore keeps history in a spreadsheet workbook. Records live on the
// "prices" sheet, or the first sheet of a workbook without one.
type XLSXStore struct {
	path     string
	defaults model.MaterialConfig
	mu       sync.Mutex
}

// NewXLSX returns a store backed by the workbook at path.
func NewXLSX(path string, defaults model.MaterialConfig) *XLSXStore {
	return &XLSXStore{path: path, defaults: defaults}
}

// Migrate creates the workbook with a header row if it does not exist.
func (s *XLSXStore) Migrate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return eris.Wrap(err, "xlsx: stat")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "xlsx: create dir")
		}
	}

	f := xlsx.NewFile()
	sheet, err := f.AddSheet(xlsxSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	header := sheet.AddRow()
	for _, c := range fileColumns {
		header.AddCell().SetString(c)
	}
	return eris.Wrap(f.Save(s.path), "xlsx: save")
}

func (s *XLSXStore) Close() error { return nil }

func (s *XLSXStore) Load(_ context.Context) ([]model.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil || f == nil {
		return nil, err
	}
	sheet, err := getSheet(f)
	if err != nil {
		return nil, err
	}
	return s.records(sheet), nil
}

func (s *XLSXStore) AppendIfAbsent(ctx context.Context, r model.PriceRecord) (bool, error) {
	n, err := s.AppendAll(ctx, []model.PriceRecord{r})
	return n == 1, err
}

// AppendAll adds every record whose slot is free and saves the workbook
// once.
func (s *XLSXStore) AppendAll(_ context.Context, recs []model.PriceRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.open()
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, eris.Errorf("xlsx: %s does not exist, run migrate first", s.path)
	}
	sheet, err := getSheet(f)
	if err != nil {
		return 0, err
	}

	taken := make(map[model.RecordKey]bool)
	for _, r := range s.records(sheet) {
		taken[r.Key()] = true
	}

	added := 0
	for _, r := range recs {
		if taken[r.Key()] {
			continue
		}
		taken[r.Key()] = true
		writeRow(sheet.AddRow(), r)
		added++
	}
	if added == 0 {
		return 0, nil
	}

	if err := f.Save(s.path); err != nil {
		return 0, eris.Wrap(err, "xlsx: save")
	}
	return added, nil
}

func (s *XLSXStore) LastDate(ctx context.Context, region string) (string, error) {
	recs, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return lastDate(recs, region), nil
}

// open returns nil without error when the workbook does not exist yet.
func (s *XLSXStore) open() (*xlsx.File, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	return f, nil
}

func (s *XLSXStore) records(sheet *xlsx.Sheet) []model.PriceRecord {
	var out []model.PriceRecord
	for i, row := range sheet.Rows {
		cells := rowToStrings(row)
		if len(cells) == 0 || isHeader(cells) || cells[0] == "" {
			continue
		}
		r, err := rowToRecord(cells, s.defaults)
		if err != nil {
			zap.L().Warn("xlsx: skipping malformed row", zap.Int("row", i+1), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	sortByDateStable(out)
	return out
}

func writeRow(row *xlsx.Row, r model.PriceRecord) {
	row.AddCell().SetString(r.Date)
	row.AddCell().SetFloat(r.Price)
	row.AddCell().SetString(r.Unit)
	row.AddCell().SetString(r.Region)
	row.AddCell().SetString(r.Category)
	row.AddCell().SetString(r.Specification)
	row.AddCell().SetString(r.Source)
	row.AddCell().SetFloat(r.Change)
	row.AddCell().SetString(r.ID)
}

func getSheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if sheet, ok := f.Sheet[xlsxSheet]; ok {
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
