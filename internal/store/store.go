// Package store persists price history. Every backend enforces the
// (region, date) uniqueness rule in its single write path.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/copper-cli/internal/config"
	"github.com/sells-group/copper-cli/internal/model"
)

// Store defines the persistence interface for price history.
type Store interface {
	// Load returns every record ascending by date, ties in insertion order.
	Load(ctx context.Context) ([]model.PriceRecord, error)
	// AppendIfAbsent writes r unless its (region, date) slot is taken.
	AppendIfAbsent(ctx context.Context, r model.PriceRecord) (bool, error)
	// LastDate returns the newest date stored for region, or "".
	LastDate(ctx context.Context, region string) (string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// BulkAppender is implemented by backends that can write many records in
// one operation.
type BulkAppender interface {
	AppendAll(ctx context.Context, recs []model.PriceRecord) (int, error)
}

// AppendAll writes recs through s, skipping taken slots, and returns the
// number inserted.
func AppendAll(ctx context.Context, s Store, recs []model.PriceRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	if b, ok := s.(BulkAppender); ok {
		return b.AppendAll(ctx, recs)
	}
	n := 0
	for _, r := range recs {
		ok, err := s.AppendIfAbsent(ctx, r)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Open creates the backend named by cfg.Driver and runs its migration.
// defaults fills region and naming columns missing from legacy files.
func Open(ctx context.Context, cfg config.StoreConfig, defaults model.MaterialConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		s, err = NewSQLite(cfg.Path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	case "csv":
		s = NewCSV(cfg.Path, defaults)
	case "xlsx":
		s = NewXLSX(cfg.Path, defaults)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// ForPath picks a file backend from the path extension, for exports.
func ForPath(path string, defaults model.MaterialConfig) (Store, error) {
	switch {
	case hasExt(path, ".xlsx"):
		return NewXLSX(path, defaults), nil
	case hasExt(path, ".csv"):
		return NewCSV(path, defaults), nil
	default:
		return nil, eris.Errorf("store: unsupported file type %q (want .csv or .xlsx)", path)
	}
}

func lastDate(recs []model.PriceRecord, region string) string {
	last := ""
	for _, r := range recs {
		if r.Region == region && r.Date > last {
			last = r.Date
		}
	}
	return last
}
