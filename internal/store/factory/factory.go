package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/steward/internal/store"
	pg "github.com/loykin/steward/internal/store/postgres"
	sq "github.com/loykin/steward/internal/store/sqlite"
)

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - memory:  "memory://" (in-process, lost on exit)
//   - sqlite:  "sqlite://<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if ld == "memory" || strings.HasPrefix(ld, "memory://") {
		return store.NewMemory(), nil
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		path := strings.TrimPrefix(d, "sqlite://")
		if path == "" {
			return nil, errors.New("sqlite DSN missing path")
		}
		return sq.New(path)
	}
	if strings.Contains(ld, "://") {
		return nil, fmt.Errorf("unsupported store DSN scheme: %s", d)
	}
	// default to sqlite path
	return sq.New(d)
}
