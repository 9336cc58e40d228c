package env

import (
	"strings"
	"testing"
)

func lookup(pairs []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range pairs {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):], true
		}
	}
	return "", false
}

func TestMergePrecedence(t *testing.T) {
	e := New()
	e.base = Var{"HOME": "/root", "LAYER": "os"}
	e.SetGlobal([]string{"LAYER=global", "PLATFORM_PORT=5101"})

	out := e.Merge([]string{"LAYER=service"})

	if v, _ := lookup(out, "LAYER"); v != "service" {
		t.Fatalf("per-service override lost: LAYER=%q", v)
	}
	if v, _ := lookup(out, "HOME"); v != "/root" {
		t.Fatalf("base env lost: HOME=%q", v)
	}
	if v, _ := lookup(out, "PLATFORM_PORT"); v != "5101" {
		t.Fatalf("global lost: PLATFORM_PORT=%q", v)
	}
}

func TestMergeExpandsBraceRefs(t *testing.T) {
	e := New()
	e.base = Var{"STATE_DIR": "/var/lib/steward"}
	out := e.Merge([]string{"SOCKET=${STATE_DIR}/agent.sock", "PLAIN=$STATE_DIR"})

	if v, _ := lookup(out, "SOCKET"); v != "/var/lib/steward/agent.sock" {
		t.Fatalf("expansion failed: SOCKET=%q", v)
	}
	// only ${VAR} form expands; bare $VAR passes through untouched
	if v, _ := lookup(out, "PLAIN"); v != "$STATE_DIR" {
		t.Fatalf("bare ref should be untouched: PLAIN=%q", v)
	}
}

func TestMergeUnknownRefLeftIntact(t *testing.T) {
	e := New()
	e.base = Var{}
	out := e.Merge([]string{"TOKEN=${NOT_SET}"})
	if v, _ := lookup(out, "TOKEN"); v != "${NOT_SET}" {
		t.Fatalf("unknown ref mangled: %q", v)
	}
}

func TestMergeSkipsMalformedPairs(t *testing.T) {
	e := New()
	e.base = Var{}
	e.SetGlobal([]string{"=oops", "novalue", "OK=1"})
	out := e.Merge([]string{"=bad"})
	if _, ok := lookup(out, ""); ok {
		t.Fatalf("empty key leaked: %v", out)
	}
	if v, _ := lookup(out, "OK"); v != "1" {
		t.Fatalf("valid pair lost: %v", out)
	}
}

func FuzzMerge(f *testing.F) {
	f.Add("A=1\nB=${A}-x", "C=${B}-y")
	f.Add("FOO=bar", "FOO=${FOO}")
	f.Add("X=${Y}", "Y=${X}")

	f.Fuzz(func(t *testing.T, global string, per string) {
		e := New()
		e.base = Var{}
		e.SetGlobal(strings.Split(global, "\n"))
		out := e.Merge(strings.Split(per, "\n"))
		for _, kv := range out {
			i := strings.IndexByte(kv, '=')
			if i <= 0 {
				t.Fatalf("malformed pair in output: %q", kv)
			}
		}
	})
}
