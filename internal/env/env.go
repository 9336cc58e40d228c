// Package env composes the environment handed to spawned services: the OS
// environment as a base, engine-wide overrides on top, then per-service
// variables last, with ${VAR} expansion against the composed set.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

type Env struct {
	global Var // engine-wide overrides (K -> V)
	base   Var // cached OS environment
}

func New() *Env {
	return &Env{global: make(Var)}
}

// FromOS caches the current process environment as the base. Called lazily by
// Merge when the cache is empty.
func (e *Env) FromOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		k, v, ok := splitKV(kv)
		if !ok {
			continue
		}
		base[k] = v
	}
	e.base = base
}

// SetGlobal applies engine-wide "K=V" overrides, skipping malformed entries.
func (e *Env) SetGlobal(pairs []string) {
	for _, kv := range pairs {
		if k, v, ok := splitKV(kv); ok {
			e.global[k] = v
		}
	}
}

// Merge returns the "K=V" environment for one service: base OS env, then
// global overrides, then perService overrides, each later layer winning.
// ${VAR} references are expanded once against the composed map.
func (e *Env) Merge(perService []string) []string {
	if e.base == nil {
		e.FromOS()
	}
	m := make(Var, len(e.base)+len(e.global)+len(perService))
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.global {
		m[k] = v
	}
	for _, kv := range perService {
		if k, v, ok := splitKV(kv); ok {
			m[k] = v
		}
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+expand(v, m))
	}
	sort.Strings(out)
	return out
}

func splitKV(kv string) (string, string, bool) {
	i := strings.IndexByte(kv, '=')
	if i <= 0 {
		return "", "", false
	}
	return kv[:i], kv[i+1:], true
}

// expand replaces ${VAR} occurrences using the composed map. Single pass, no
// recursion; unknown references are left intact.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	for k, v := range m {
		s = strings.ReplaceAll(s, "${"+k+"}", v)
	}
	return s
}
