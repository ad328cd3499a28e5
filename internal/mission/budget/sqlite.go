package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists samples in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	queries := []string{`
	CREATE TABLE IF NOT EXISTS budget_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		value REAL NOT NULL,
		recorded_at DATETIME NOT NULL
	);`,
		`CREATE INDEX IF NOT EXISTS budget_samples_kind ON budget_samples (kind, id);`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to migrate budget samples: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Samples(ctx context.Context, kind Kind, window int) ([]float64, error) {
	if window <= 0 {
		window = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM budget_samples WHERE kind = ? ORDER BY id DESC LIMIT ?`, string(kind), window)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, kind Kind, values ...float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budget_samples (kind, value, recorded_at) VALUES (?, ?, ?)`, string(kind), v, now); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
