package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/copper-cli/internal/db"
	"github.com/sells-group/copper-cli/internal/model"
)

const pgTable = "copper_prices"

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool. maxConns of
// zero keeps the default of 4.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 4
	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS copper_prices (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL DEFAULT '',
	date          TEXT NOT NULL CHECK (date ~ '^\d{4}-\d{2}-\d{2}$'),
	category      TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL,
	specification TEXT NOT NULL DEFAULT '',
	price         DOUBLE PRECISION NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	change        DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_copper_prices_region_date ON copper_prices(region, date);
`

var (
	pgSelect = `SELECT ` + strings.Join(sqlColumns, ", ") + ` FROM ` + pgTable + ` ORDER BY date, seq`
	pgInsert = fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (region, date) DO NOTHING`,
		pgTable, strings.Join(sqlColumns, ", "))
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) ([]model.PriceRecord, error) {
	rows, err := s.pool.Query(ctx, pgSelect)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load")
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var r model.PriceRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Category, &r.Region, &r.Specification, &r.Price, &r.Unit, &r.Source, &r.Change); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresStore) AppendIfAbsent(ctx context.Context, r model.PriceRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, pgInsert, sqlValues(r)...)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert %s/%s", r.Region, r.Date)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendAll uses COPY straight into an empty table and a conflict-tolerant
// staged insert otherwise.
func (s *PostgresStore) AppendAll(ctx context.Context, recs []model.PriceRecord) (int, error) {
	rows := make([][]any, 0, len(recs))
	seen := make(map[model.RecordKey]bool, len(recs))
	for _, r := range recs {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		rows = append(rows, sqlValues(r))
	}

	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+pgTable).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "postgres: count records")
	}

	var (
		n   int64
		err error
	)
	if count == 0 {
		n, err = db.CopyFrom(ctx, s.pool, pgTable, sqlColumns, rows)
	} else {
		n, err = db.CopyIgnoreConflicts(ctx, s.pool, db.InsertConfig{
			Table:        pgTable,
			Columns:      sqlColumns,
			ConflictKeys: []string{"region", "date"},
		}, rows)
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk append")
	}
	return int(n), nil
}

func (s *PostgresStore) LastDate(ctx context.Context, region string) (string, error) {
	var last string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(date), '') FROM `+pgTable+` WHERE region = $1`, region,
	).Scan(&last)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: last date for %s", region)
	}
	return last, nil
}
