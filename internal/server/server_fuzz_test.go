package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/steward/internal/event"
	"github.com/loykin/steward/internal/health"
	"github.com/loykin/steward/internal/lifecycle"
	"github.com/loykin/steward/internal/orchestrator"
	"github.com/loykin/steward/internal/portalloc"
	"github.com/loykin/steward/internal/store"
)

func FuzzIsSafeName(f *testing.F) {
	f.Add("valid-name_123")
	f.Add("")
	f.Add("..")
	f.Add("../etc/passwd")
	f.Add("name/with/slash")
	f.Add("name\\with\\backslash")
	f.Add("unicode한글name")
	f.Add("name\x00null")
	f.Add("name\nnewline")

	f.Fuzz(func(t *testing.T, name string) {
		if len(name) > 200 {
			t.Skip("name too long")
		}
		result := isSafeName(name)
		if name == "" && result {
			t.Error("empty name should not be safe")
		}
		if strings.Contains(name, "..") && result {
			t.Errorf("name with .. should not be safe: %q", name)
		}
		if strings.ContainsAny(name, "/\\") && result {
			t.Errorf("name with path separators should not be safe: %q", name)
		}
		if result != isSafeName(name) {
			t.Errorf("isSafeName inconsistent for %q", name)
		}
	})
}

func FuzzSanitizeBase(f *testing.F) {
	f.Add("")
	f.Add("/")
	f.Add("/api")
	f.Add("/api/")
	f.Add("api")
	f.Add("  /api/v1/  ")
	f.Add("//multiple//slashes//")

	f.Fuzz(func(t *testing.T, basePath string) {
		if len(basePath) > 200 {
			t.Skip("base path too long")
		}
		result := sanitizeBase(basePath)
		if result != "" {
			if !strings.HasPrefix(result, "/") {
				t.Errorf("sanitized base should start with /: %q -> %q", basePath, result)
			}
			if strings.HasSuffix(result, "/") {
				t.Errorf("sanitized base should not end with /: %q -> %q", basePath, result)
			}
		}
		trimmed := strings.TrimSpace(basePath)
		if (trimmed == "" || trimmed == "/") && result != "" {
			t.Errorf("empty or root base should result in empty: %q -> %q", basePath, result)
		}
	})
}

// FuzzStatusNameParam drives the status handler with arbitrary names. Any
// input must produce a JSON response, never a panic or a 5xx.
func FuzzStatusNameParam(f *testing.F) {
	gin.SetMode(gin.TestMode)
	fos := newFakeOS()
	st := store.NewMemory()
	ports, err := portalloc.New(nil)
	if err != nil {
		f.Fatalf("port allocator: %v", err)
	}
	bus := event.NewBus()
	lc := lifecycle.New(fos, fakeNet{}, st, &fakeHealth{res: health.Result{Status: health.StatusHealthy}}, bus, lifecycle.Options{
		StopGrace: 50 * time.Millisecond,
		Settle:    time.Millisecond,
	})
	orc := orchestrator.New(fos, lc, st, ports, bus, orchestrator.Options{})
	f.Cleanup(orc.Shutdown)
	if err := orc.Register(context.Background(), testCfg("mcp-files", 5101)); err != nil {
		f.Fatalf("register: %v", err)
	}
	h := NewRouter(orc, "").Handler()

	f.Add("mcp-files")
	f.Add("ghost")
	f.Add("../../etc/passwd")
	f.Add("name with spaces")
	f.Add("")

	f.Fuzz(func(t *testing.T, name string) {
		if len(name) > 200 {
			t.Skip("name too long")
		}
		rec := doReq(t, h, http.MethodGet, "/api/status?name="+url.QueryEscape(name))
		switch rec.Code {
		case http.StatusOK, http.StatusBadRequest, http.StatusNotFound:
		default:
			t.Fatalf("unexpected status %d for name %q: %s", rec.Code, name, rec.Body.String())
		}
	})
}
