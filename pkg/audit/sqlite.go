package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // driver "sqlite3" (cgo)
	_ "modernc.org/sqlite"          // driver "sqlite" (pure Go)
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id           TEXT PRIMARY KEY,
	request_id   TEXT NOT NULL,
	provider_key TEXT NOT NULL,
	phase        TEXT NOT NULL,
	method       TEXT NOT NULL,
	endpoint     TEXT NOT NULL,
	status_code  INTEGER NOT NULL,
	body_hash    TEXT NOT NULL,
	body_size    INTEGER NOT NULL,
	timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_records(request_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp  ON audit_records(timestamp);
`

// SQLiteStore persists records in a SQLite database. The driver name is
// selectable so deployments can pick the cgo driver or the pure-Go one
// without a rebuild of this package.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path using the named
// driver, which must be "sqlite3" or "sqlite".
func NewSQLiteStore(driver, path string) (*SQLiteStore, error) {
	switch driver {
	case "sqlite3", "sqlite":
	default:
		return nil, fmt.Errorf("audit: unknown sqlite driver %q", driver)
	}
	if path == "" {
		return nil, fmt.Errorf("audit: sqlite path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", path, int((5 * time.Second).Milliseconds()))
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO audit_records
		(id, request_id, provider_key, phase, method, endpoint, status_code, body_hash, body_size, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.ProviderKey, rec.Phase, rec.Method,
		rec.Endpoint, rec.StatusCode, rec.BodyHash, rec.BodySize,
		rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("audit: save record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]*Record, error) {
	var (
		conds []string
		args  []any
	)
	if q.RequestID != "" {
		conds = append(conds, "request_id = ?")
		args = append(args, q.RequestID)
	}
	if q.ProviderKey != "" {
		conds = append(conds, "provider_key = ?")
		args = append(args, q.ProviderKey)
	}
	if q.Phase != "" {
		conds = append(conds, "phase = ?")
		args = append(args, q.Phase)
	}

	query := "SELECT id, request_id, provider_key, phase, method, endpoint, status_code, body_hash, body_size, timestamp FROM audit_records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.ProviderKey, &rec.Phase,
			&rec.Method, &rec.Endpoint, &rec.StatusCode, &rec.BodyHash,
			&rec.BodySize, &ts); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		rec.Timestamp = time.Unix(0, ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_records").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("audit: count records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_records WHERE timestamp < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("audit: delete records: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
