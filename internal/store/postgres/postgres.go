// Package postgres implements store.Store on PostgreSQL via the pgx stdlib
// driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
)

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services(
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			port INTEGER NOT NULL,
			pid INTEGER NULL,
			status TEXT NOT NULL,
			last_health_check_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_services_kind ON services(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_services_status ON services(status);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) Upsert(ctx context.Context, rec service.Record) error {
	var pid any
	if rec.HasPID() {
		pid = *rec.PID
	}
	var last any
	if rec.LastHealthCheckAt != nil {
		last = rec.LastHealthCheckAt.UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO services(name, kind, port, pid, status, last_health_check_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(name) DO UPDATE SET
			kind=EXCLUDED.kind,
			port=EXCLUDED.port,
			updated_at=EXCLUDED.updated_at;`,
		rec.Name, string(rec.Kind), int(rec.Port), pid, string(rec.Status), last, time.Now().UTC())
	return err
}

func (p *DB) Get(ctx context.Context, name string) (service.Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT name, kind, port, pid, status, last_health_check_at, updated_at
		FROM services WHERE name=$1;`, name)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return service.Record{}, store.ErrNotFound
	}
	return rec, err
}

func (p *DB) List(ctx context.Context, kind *service.Kind) ([]service.Record, error) {
	q := `SELECT name, kind, port, pid, status, last_health_check_at, updated_at
		FROM services`
	args := []any{}
	if kind != nil {
		q += ` WHERE kind=$1`
		args = append(args, string(*kind))
	}
	q += ` ORDER BY name;`
	rows, err := p.db.QueryContext(ctx, q, args...)
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

func (p *DB) UpdateStatus(ctx context.Context, name string, status service.Status) error {
	return p.exec(ctx, `UPDATE services SET status=$1, updated_at=$2 WHERE name=$3;`,
		string(status), time.Now().UTC(), name)
}

func (p *DB) UpdatePID(ctx context.Context, name string, pid int) error {
	return p.exec(ctx, `UPDATE services SET pid=$1, updated_at=$2 WHERE name=$3;`,
		pid, time.Now().UTC(), name)
}

func (p *DB) ClearPID(ctx context.Context, name string) error {
	return p.exec(ctx, `UPDATE services SET pid=NULL, updated_at=$1 WHERE name=$2;`,
		time.Now().UTC(), name)
}

func (p *DB) SetLastHealthCheck(ctx context.Context, name string, at time.Time) error {
	return p.exec(ctx, `UPDATE services SET last_health_check_at=$1, updated_at=$2 WHERE name=$3;`,
		at.UTC(), time.Now().UTC(), name)
}

func (p *DB) exec(ctx context.Context, q string, args ...any) error {
	res, err := p.db.ExecContext(ctx, q, args...)
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
		port   int
		pid    sql.NullInt64
		last   sql.NullTime
	)
	if err := row.Scan(&rec.Name, &kind, &port, &pid, &status, &last, &rec.UpdatedAt); err != nil {
		return service.Record{}, err
	}
	rec.Kind = service.Kind(kind)
	rec.Status = service.Status(status)
	rec.Port = uint16(port)
	if pid.Valid {
		pv := int(pid.Int64)
		rec.PID = &pv
	}
	if last.Valid {
		t := last.Time
		rec.LastHealthCheckAt = &t
	}
	return rec, nil
}
