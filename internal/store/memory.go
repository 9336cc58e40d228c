package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loykin/steward/internal/service"
)

// Memory is the in-memory Store used by tests and single-process embeddings
// that do not need state to survive restarts.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]service.Record
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[string]service.Record)}
}

func (m *Memory) EnsureSchema(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) Upsert(ctx context.Context, rec service.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rows[rec.Name]; ok {
		cur.Kind = rec.Kind
		cur.Port = rec.Port
		cur.UpdatedAt = time.Now()
		m.rows[rec.Name] = cur
		return nil
	}
	rec.UpdatedAt = time.Now()
	m.rows[rec.Name] = rec
	return nil
}

func (m *Memory) Get(ctx context.Context, name string) (service.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.rows[name]
	if !ok {
		return service.Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(ctx context.Context, kind *service.Kind) ([]service.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]service.Record, 0, len(m.rows))
	for _, rec := range m.rows {
		if kind != nil && rec.Kind != *kind {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) UpdateStatus(ctx context.Context, name string, status service.Status) error {
	return m.mutate(name, func(rec *service.Record) {
		rec.Status = status
	})
}

func (m *Memory) UpdatePID(ctx context.Context, name string, pid int) error {
	return m.mutate(name, func(rec *service.Record) {
		rec.PID = &pid
	})
}

func (m *Memory) ClearPID(ctx context.Context, name string) error {
	return m.mutate(name, func(rec *service.Record) {
		rec.PID = nil
	})
}

func (m *Memory) SetLastHealthCheck(ctx context.Context, name string, at time.Time) error {
	return m.mutate(name, func(rec *service.Record) {
		t := at
		rec.LastHealthCheckAt = &t
	})
}

func (m *Memory) mutate(name string, fn func(*service.Record)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[name]
	if !ok {
		return ErrNotFound
	}
	fn(&rec)
	rec.UpdatedAt = time.Now()
	m.rows[name] = rec
	return nil
}
