// Package portalloc validates static port assignments against per-kind
// ranges at load time. It is a conflict gate, not a runtime lease manager:
// ports come from configuration and never move while the engine runs.
package portalloc

import (
	"fmt"
	"sync"

	"github.com/loykin/steward/internal/service"
)

// Range is an inclusive port interval owned by one service kind.
type Range struct {
	Low  uint16 `json:"low" mapstructure:"low"`
	High uint16 `json:"high" mapstructure:"high"`
}

func (r Range) Contains(p uint16) bool { return p >= r.Low && p <= r.High }

func (r Range) valid() bool { return r.Low != 0 && r.Low <= r.High }

func (r Range) overlaps(o Range) bool { return r.Low <= o.High && o.Low <= r.High }

// DefaultRanges mirrors the platform convention: MCP tool servers on
// 5000-5999, agent servers on 9000-9999.
func DefaultRanges() map[service.Kind]Range {
	return map[service.Kind]Range{
		service.KindMCP:   {Low: 5000, High: 5999},
		service.KindAgent: {Low: 9000, High: 9999},
	}
}

// ConflictError reports a port requested by two services. Ranges are
// disjoint, so the existing owner may be of any kind.
type ConflictError struct {
	Port          uint16
	ExistingOwner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("port %d already assigned to service %s", e.Port, e.ExistingOwner)
}

type Allocator struct {
	mu     sync.Mutex
	ranges map[service.Kind]Range
	owners map[uint16]string
	ports  map[string]uint16
}

// New builds an allocator over the given ranges; nil means DefaultRanges.
// Kinds missing from the map fall back to their default range. Ranges must
// be well-formed and mutually disjoint.
func New(ranges map[service.Kind]Range) (*Allocator, error) {
	merged := DefaultRanges()
	for k, r := range ranges {
		if _, err := service.ParseKind(string(k)); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
		merged[k] = r
	}
	for k, r := range merged {
		if !r.valid() {
			return nil, fmt.Errorf("invalid port range for kind %s: [%d, %d]", k, r.Low, r.High)
		}
	}
	for k1, r1 := range merged {
		for k2, r2 := range merged {
			if k1 < k2 && r1.overlaps(r2) {
				return nil, fmt.Errorf("port ranges for kinds %s and %s overlap", k1, k2)
			}
		}
	}
	return &Allocator{
		ranges: merged,
		owners: make(map[uint16]string),
		ports:  make(map[string]uint16),
	}, nil
}

// Register claims the config's port for its name. Re-registering the same
// name updates its claim; a port held by a different name is a ConflictError.
func (a *Allocator) Register(cfg service.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rng, ok := a.ranges[cfg.Kind]
	if !ok {
		return fmt.Errorf("service %s: no port range for kind %q", cfg.Name, cfg.Kind)
	}
	if !rng.Contains(cfg.Port) {
		return fmt.Errorf("service %s: port %d outside %s range [%d, %d]",
			cfg.Name, cfg.Port, cfg.Kind, rng.Low, rng.High)
	}
	if owner, taken := a.owners[cfg.Port]; taken && owner != cfg.Name {
		return &ConflictError{Port: cfg.Port, ExistingOwner: owner}
	}
	if old, ok := a.ports[cfg.Name]; ok && old != cfg.Port {
		delete(a.owners, old)
	}
	a.owners[cfg.Port] = cfg.Name
	a.ports[cfg.Name] = cfg.Port
	return nil
}

// Registered returns the port claimed by name, if any.
func (a *Allocator) Registered(name string) (uint16, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.ports[name]
	return p, ok
}

// Owner returns the service holding port, if any.
func (a *Allocator) Owner(port uint16) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, ok := a.owners[port]
	return n, ok
}

// RangeFor returns the configured range for a kind.
func (a *Allocator) RangeFor(kind service.Kind) (Range, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.ranges[kind]
	return r, ok
}
