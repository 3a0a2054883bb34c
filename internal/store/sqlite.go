package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/copper-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS price_records (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL DEFAULT '',
	date          TEXT NOT NULL,
	category      TEXT NOT NULL DEFAULT '',
	region        TEXT NOT NULL,
	specification TEXT NOT NULL DEFAULT '',
	price         REAL NOT NULL,
	unit          TEXT NOT NULL DEFAULT '',
	source        TEXT NOT NULL DEFAULT '',
	change        REAL NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (region, date)
);

CREATE INDEX IF NOT EXISTS idx_price_records_date ON price_records(date);
`

var sqliteInsert = `INSERT INTO price_records (` + strings.Join(sqlColumns, ", ") + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (region, date) DO NOTHING`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) ([]model.PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(sqlColumns, ", ")+` FROM price_records ORDER BY date, seq`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load")
	}
	defer rows.Close()

	var out []model.PriceRecord
	for rows.Next() {
		var r model.PriceRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Category, &r.Region, &r.Specification, &r.Price, &r.Unit, &r.Source, &r.Change); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) AppendIfAbsent(ctx context.Context, r model.PriceRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, sqliteInsert, sqlValues(r)...)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert %s/%s", r.Region, r.Date)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

// AppendAll inserts recs in one transaction.
func (s *SQLiteStore) AppendAll(ctx context.Context, recs []model.PriceRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range recs {
		res, err := stmt.ExecContext(ctx, sqlValues(r)...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s/%s", r.Region, r.Date)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return inserted, nil
}

func (s *SQLiteStore) LastDate(ctx context.Context, region string) (string, error) {
	var last sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM price_records WHERE region = ?`, region,
	).Scan(&last)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: last date for %s", region)
	}
	return last.String, nil
}
