package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/steward/internal/config"
	"github.com/loykin/steward/internal/metrics"
	"github.com/loykin/steward/internal/orchestrator"
	"github.com/loykin/steward/internal/service"
	"github.com/loykin/steward/internal/store"
	stls "github.com/loykin/steward/internal/tls"
)

// Router provides embeddable HTTP handlers for driving a service engine.
// Endpoints:
//   POST {basePath}/api/start      query: name=...&timeout=10s (timeout optional)
//   POST {basePath}/api/stop       query: name=...&timeout=10s
//   POST {basePath}/api/restart    query: name=...&timeout=10s
//   POST {basePath}/api/cleanup    query: name=...&timeout=10s
//   POST {basePath}/api/start-all  query: kind=mcp|agent (optional)
//   POST {basePath}/api/stop-all   query: kind=mcp|agent (optional)
//   GET  {basePath}/api/status     query: name=... (single) or kind=... (filtered list)
//   GET  {basePath}/api/health     query: name=...&timeout=10s
//   GET  {basePath}/api/validate   query: name=...
//   POST {basePath}/api/reconcile
//   GET  {basePath}/healthz
//   GET  {basePath}/metrics
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	orc      *orchestrator.Orchestrator
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/abc" results in /abc/api/start, /abc/healthz, /abc/metrics.
func NewRouter(orc *orchestrator.Orchestrator, basePath string) *Router {
	bp := sanitizeBase(basePath)
	return &Router{orc: orc, basePath: bp}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	api := group.Group("/api")
	api.POST("/start", r.command(r.orc.Start))
	api.POST("/stop", r.command(r.orc.Stop))
	api.POST("/restart", r.command(r.orc.Restart))
	api.POST("/cleanup", r.command(r.orc.CleanupOrphaned))
	api.POST("/start-all", r.groupCommand(r.orc.StartAll))
	api.POST("/stop-all", r.groupCommand(r.orc.StopAll))
	api.GET("/status", r.handleStatus)
	api.GET("/health", r.handleHealth)
	api.GET("/validate", r.handleValidate)
	api.POST("/reconcile", r.handleReconcile)
	group.GET("/healthz", handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The returned server can be shut down immediately via http.Server's Close.
func NewServer(addr, basePath string, orc *orchestrator.Orchestrator) (*http.Server, error) {
	r := NewRouter(orc, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// NewTLSServer starts a standalone HTTPS server configured from the server
// section: explicit cert/key files, a cert directory, or auto-generated
// self-signed material (see tls.SetupTLS).
func NewTLSServer(sc config.ServerConfig, orc *orchestrator.Orchestrator) (*http.Server, error) {
	tlsCfg, err := stls.SetupTLS(sc)
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return nil, errors.New("TLS is not enabled in the server configuration")
	}
	r := NewRouter(orc, sc.BasePath)
	server := &http.Server{
		Addr:              sc.Listen,
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// cert and key come from TLSConfig.GetCertificate, not files
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type validateResp struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// command adapts a per-service lifecycle call into a handler.
func (r *Router) command(op func(context.Context, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		name, ok := requireName(c)
		if !ok {
			return
		}
		ctx, cancel := opContext(c)
		defer cancel()
		if err := op(ctx, name); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

// groupCommand adapts a kind-filtered bulk call into a handler.
func (r *Router) groupCommand(op func(context.Context, *service.Kind) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		kind, ok := optionalKind(c)
		if !ok {
			return
		}
		ctx, cancel := opContext(c)
		defer cancel()
		if err := op(ctx, kind); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true})
	}
}

func (r *Router) handleStatus(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		kind, ok := optionalKind(c)
		if !ok {
			return
		}
		recs, err := r.orc.StatusAll(c.Request.Context(), kind)
		if err != nil {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusOK, recs)
		return
	}
	if !isSafeName(name) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid name: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	rec, err := r.orc.Status(c.Request.Context(), name)
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			code = http.StatusNotFound
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleHealth(c *gin.Context) {
	name, ok := requireName(c)
	if !ok {
		return
	}
	ctx, cancel := opContext(c)
	defer cancel()
	res, err := r.orc.HealthCheck(ctx, name)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// handleValidate reports configuration problems in the body, not the status
// code: an invalid service is still a valid answer.
func (r *Router) handleValidate(c *gin.Context) {
	name, ok := requireName(c)
	if !ok {
		return
	}
	if err := r.orc.Validate(name); err != nil {
		writeJSON(c, http.StatusOK, validateResp{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, validateResp{Valid: true})
}

func (r *Router) handleReconcile(c *gin.Context) {
	ctx, cancel := opContext(c)
	defer cancel()
	r.orc.ReconcileOnce(ctx)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
