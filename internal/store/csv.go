package store

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/copper-cli/internal/model"
)

// CSVStore keeps history in an append-only CSV file. It reads files in the
// legacy three-column "date,price,unit" layout as well as its own.
type CSVStore struct {
	path     string
	defaults model.MaterialConfig
	mu       sync.Mutex
}

// NewCSV returns a store backed by the CSV file at path.
func NewCSV(path string, defaults model.MaterialConfig) *CSVStore {
	return &CSVStore{path: path, defaults: defaults}
}

// Migrate creates the file with a header row if it does not exist.
func (s *CSVStore) Migrate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return eris.Wrap(err, "csv: stat")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "csv: create dir")
		}
	}
	return s.writeRows(os.O_CREATE|os.O_WRONLY|os.O_TRUNC, [][]string{fileColumns})
}

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) Load(_ context.Context) ([]model.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *CSVStore) AppendIfAbsent(ctx context.Context, r model.PriceRecord) (bool, error) {
	n, err := s.AppendAll(ctx, []model.PriceRecord{r})
	return n == 1, err
}

// AppendAll appends every record whose slot is free with one file write.
func (s *CSVStore) AppendAll(_ context.Context, recs []model.PriceRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load()
	if err != nil {
		return 0, err
	}
	taken := make(map[model.RecordKey]bool, len(existing)+len(recs))
	for _, r := range existing {
		taken[r.Key()] = true
	}

	var rows [][]string
	for _, r := range recs {
		if taken[r.Key()] {
			continue
		}
		taken[r.Key()] = true
		rows = append(rows, recordToRow(r))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.terminateLastLine(); err != nil {
		return 0, err
	}
	if err := s.writeRows(os.O_CREATE|os.O_WRONLY|os.O_APPEND, rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (s *CSVStore) LastDate(ctx context.Context, region string) (string, error) {
	recs, err := s.Load(ctx)
	if err != nil {
		return "", err
	}
	return lastDate(recs, region), nil
}

func (s *CSVStore) load() ([]model.PriceRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: open")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // legacy rows have three columns
	reader.TrimLeadingSpace = true

	var out []model.PriceRecord
	for line := 1; ; line++ {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "csv: read line %d", line)
		}
		if isHeader(cells) || (len(cells) == 1 && cells[0] == "") {
			continue
		}
		r, err := rowToRecord(cells, s.defaults)
		if err != nil {
			zap.L().Warn("csv: skipping malformed row", zap.Int("line", line), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	sortByDateStable(out)
	return out, nil
}

func (s *CSVStore) writeRows(flag int, rows [][]string) error {
	f, err := os.OpenFile(s.path, flag, 0o644)
	if err != nil {
		return eris.Wrap(err, "csv: open for write")
	}

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return eris.Wrap(err, "csv: write rows")
	}
	return eris.Wrap(f.Close(), "csv: close")
}

// terminateLastLine adds a newline when a hand-edited file lacks one, so
// appended rows do not merge into the last line.
func (s *CSVStore) terminateLastLine() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "csv: open for write")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return eris.Wrap(err, "csv: stat")
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return eris.Wrap(err, "csv: read tail")
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.WriteAt([]byte("\n"), info.Size())
	return eris.Wrap(err, "csv: terminate line")
}
