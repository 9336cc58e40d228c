// Package sqlite implements store.Store on modernc.org/sqlite (CGO-free).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
)

type DB struct {
	db *sql.DB
}

// New opens a SQLite database at path. Use ":memory:" only with a single
// connection; file paths are the normal case.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services(
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			port INTEGER NOT NULL,
			pid INTEGER NULL,
			status TEXT NOT NULL,
			last_health_check_at TIMESTAMP NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_services_kind ON services(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_services_status ON services(status);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Upsert(ctx context.Context, rec service.Record) error {
	var pid any
	if rec.HasPID() {
		pid = *rec.PID
	}
	var last any
	if rec.LastHealthCheckAt != nil {
		last = rec.LastHealthCheckAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services(name, kind, port, pid, status, last_health_check_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind=excluded.kind,
			port=excluded.port,
			updated_at=excluded.updated_at;`,
		rec.Name, string(rec.Kind), rec.Port, pid, string(rec.Status), last, time.Now().UTC())
	return err
}

func (s *DB) Get(ctx context.Context, name string) (service.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, kind, port, pid, status, last_health_check_at, updated_at
		FROM services WHERE name=?;`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return service.Record{}, store.ErrNotFound
	}
	return rec, err
}

func (s *DB) List(ctx context.Context, kind *service.Kind) ([]service.Record, error) {
	q := `SELECT name, kind, port, pid, status, last_health_check_at, updated_at
		FROM services`
	args := []any{}
	if kind != nil {
		q += ` WHERE kind=?`
		args = append(args, string(*kind))
	}
	q += ` ORDER BY name;`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]service.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *DB) UpdateStatus(ctx context.Context, name string, status service.Status) error {
	return s.exec(ctx, `UPDATE services SET status=?, updated_at=? WHERE name=?;`,
		string(status), time.Now().UTC(), name)
}

func (s *DB) UpdatePID(ctx context.Context, name string, pid int) error {
	return s.exec(ctx, `UPDATE services SET pid=?, updated_at=? WHERE name=?;`,
		pid, time.Now().UTC(), name)
}

func (s *DB) ClearPID(ctx context.Context, name string) error {
	return s.exec(ctx, `UPDATE services SET pid=NULL, updated_at=? WHERE name=?;`,
		time.Now().UTC(), name)
}

func (s *DB) SetLastHealthCheck(ctx context.Context, name string, at time.Time) error {
	return s.exec(ctx, `UPDATE services SET last_health_check_at=?, updated_at=? WHERE name=?;`,
		at.UTC(), time.Now().UTC(), name)
}

func (s *DB) exec(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (service.Record, error) {
	var (
		rec    service.Record
		kind   string
		status string
		pid    sql.NullInt64
		last   sql.NullTime
	)
	if err := row.Scan(&rec.Name, &kind, &rec.Port, &pid, &status, &last, &rec.UpdatedAt); err != nil {
		return service.Record{}, err
	}
	rec.Kind = service.Kind(kind)
	rec.Status = service.Status(status)
	if pid.Valid {
		p := int(pid.Int64)
		rec.PID = &p
	}
	if last.Valid {
		t := last.Time
		rec.LastHealthCheckAt = &t
	}
	return rec, nil
}
