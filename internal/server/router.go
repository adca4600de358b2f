package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/loykin/procwatch/internal/auth"
	"github.com/loykin/procwatch/internal/history"
	"github.com/loykin/procwatch/internal/registry"
	"github.com/loykin/procwatch/internal/watchdog"
)

// Router provides embeddable HTTP handlers for the watchdog.
// Endpoints:
//
//	GET    {basePath}/status
//	GET    {basePath}/programs
//	POST   {basePath}/programs             body: {"path": ..., "name": ..., "enabled": ...}
//	GET    {basePath}/programs/:name
//	PUT    {basePath}/programs/:name       body: fields to change
//	DELETE {basePath}/programs/:name
//	POST   {basePath}/watchdog/start
//	POST   {basePath}/watchdog/stop        query: timeout=2s (optional)
//	GET    {basePath}/history              query: limit=50 (optional)
//	POST   {basePath}/auth/login           body: {"username": ..., "password": ...}
//
// With auth configured every route except login needs a Bearer token or
// Basic credentials.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	reg      *registry.Registry
	wd       Watchdog
	basePath string
	persist  func(registry.Snapshot) error
	history  HistoryReader
	auth     *auth.Service
	logger   *slog.Logger
}

// Watchdog is the part of watchdog.Controller the API drives.
type Watchdog interface {
	Start() error
	Stop(timeout time.Duration) error
	Running() bool
	Status() watchdog.StatusSnapshot
}

type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Event, error)
}

type Option func(*Router)

// WithPersist is called with the new registry contents after every successful edit.
func WithPersist(fn func(registry.Snapshot) error) Option {
	return func(r *Router) { r.persist = fn }
}

func WithHistory(h HistoryReader) Option {
	return func(r *Router) { r.history = h }
}

// WithAuth protects the API with a; nil leaves it open.
func WithAuth(a *auth.Service) Option {
	return func(r *Router) { r.auth = a }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(reg *registry.Registry, wd Watchdog, basePath string, opts ...Option) *Router {
	r := &Router{reg: reg, wd: wd, basePath: sanitizeBase(basePath), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BasePath returns the sanitized base path the handlers are mounted under.
func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	if r.auth != nil {
		group.POST("/auth/login", r.auth.LoginHandler)
		group = group.Group("", r.auth.Gin())
	}
	group.GET("/status", r.handleStatus)
	group.GET("/programs", r.handleList)
	group.POST("/programs", r.handleAdd)
	group.GET("/programs/:name", r.handleGet)
	group.PUT("/programs/:name", r.handleUpdate)
	group.DELETE("/programs/:name", r.handleRemove)
	group.POST("/watchdog/start", r.handleStart)
	group.POST("/watchdog/stop", r.handleStop)
	group.GET("/history", r.handleHistory)
	return g
}

// MountEcho exposes h on e under base, keeping the full request path so the
// gin routes still match.
func MountEcho(e *echo.Echo, base string, h http.Handler) {
	base = sanitizeBase(base)
	e.Any(base, echo.WrapHandler(h))
	e.Any(base+"/*", echo.WrapHandler(h))
}

// EngineHandler returns the handler to serve for the configured engine.
func (r *Router) EngineHandler(engine string) (http.Handler, error) {
	switch engine {
	case "", "gin":
		return r.Handler(), nil
	case "echo":
		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(middleware.Recover())
		MountEcho(e, r.basePath, r.Handler())
		return e, nil
	default:
		return nil, fmt.Errorf("unknown server engine %q (want gin or echo)", engine)
	}
}

// NewServer binds addr and serves h on a background goroutine. TLS is used
// when tlsCfg is non-nil. Bind errors are returned; later serve errors are logged.
func NewServer(addr string, h http.Handler, tlsCfg *tls.Config, logger *slog.Logger) (*http.Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	watchdog.StatusSnapshot
	Running  bool `json:"running"`
	Programs int  `json:"programs"`
}

// ProgramView is one registry entry with its 1-based position.
type ProgramView struct {
	Nr int `json:"nr"`
	registry.Program
}

// ProgramRequest is the body of POST and PUT /programs. On PUT, empty fields
// keep their current values.
type ProgramRequest struct {
	Name    string `json:"name,omitempty"`
	Path    string `json:"path,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, StatusResponse{
		StatusSnapshot: r.wd.Status(),
		Running:        r.wd.Running(),
		Programs:       r.reg.Len(),
	})
}

func (r *Router) handleList(c *gin.Context) {
	snap := r.reg.Snapshot()
	out := make([]ProgramView, 0, len(snap))
	for i, p := range snap {
		out = append(out, ProgramView{Nr: i + 1, Program: p})
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleGet(c *gin.Context) {
	name := c.Param("name")
	for i, p := range r.reg.Snapshot() {
		if registry.SameName(p.Name, name) {
			writeJSON(c, http.StatusOK, ProgramView{Nr: i + 1, Program: p})
			return
		}
	}
	writeJSON(c, http.StatusNotFound, errorResp{Error: fmt.Sprintf("%v: %s", registry.ErrNotFound, name)})
}

func (r *Router) handleAdd(c *gin.Context) {
	var req ProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Path == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "path required"})
		return
	}
	enabled := req.Enabled == nil || *req.Enabled
	p, err := registry.New(req.Name, req.Path, enabled)
	if err != nil {
		r.writeErr(c, err)
		return
	}
	if msg := validateProgram(p); msg != "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: msg})
		return
	}
	if err := r.reg.Add(p); err != nil {
		r.writeErr(c, err)
		return
	}
	if !r.save(c) {
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (r *Router) handleUpdate(c *gin.Context) {
	name := c.Param("name")
	var req ProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	cur, err := r.reg.Get(name)
	if err != nil {
		r.writeErr(c, err)
		return
	}
	next := cur.WithPath(req.Path)
	if req.Name != "" {
		next.Name = req.Name
	}
	if req.Enabled != nil {
		next.Enabled = *req.Enabled
	}
	if msg := validateProgram(next); msg != "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: msg})
		return
	}
	if err := r.reg.Update(cur.Name, next); err != nil {
		r.writeErr(c, err)
		return
	}
	if !r.save(c) {
		return
	}
	writeJSON(c, http.StatusOK, next)
}

func (r *Router) handleRemove(c *gin.Context) {
	if err := r.reg.Remove(c.Param("name")); err != nil {
		r.writeErr(c, err)
		return
	}
	if !r.save(c) {
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.wd.Start(); err != nil {
		r.writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	var timeout time.Duration
	if s := c.Query("timeout"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid timeout: " + s})
			return
		}
		timeout = d
	}
	if err := r.wd.Stop(timeout); err != nil {
		r.writeErr(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHistory(c *gin.Context) {
	if r.history == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "history disabled"})
		return
	}
	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid limit: " + s})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	events, err := r.history.Recent(c.Request.Context(), limit)
	if err != nil {
		r.logger.Error("history query failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}

func (r *Router) save(c *gin.Context) bool {
	if r.persist == nil {
		return true
	}
	if err := r.persist(r.reg.Snapshot()); err != nil {
		r.logger.Error("persist programs failed", "error", err)
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: "saved in memory but not on disk: " + err.Error()})
		return false
	}
	return true
}

func (r *Router) writeErr(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, registry.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, registry.ErrDuplicate),
		errors.Is(err, watchdog.ErrAlreadyRunning),
		errors.Is(err, watchdog.ErrNotRunning):
		code = http.StatusConflict
	case errors.Is(err, registry.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, watchdog.ErrStopTimeout):
		code = http.StatusGatewayTimeout
	}
	writeJSON(c, code, errorResp{Error: err.Error()})
}

func validateProgram(p registry.Program) string {
	if !isSafeName(p.Name) {
		return "invalid name: allowed letters, digits, space and [._-()], no '..' or path separators"
	}
	if p.Path == "" || !isSafeAbsPath(p.Path) {
		return "invalid path: must be absolute path without traversal"
	}
	return ""
}
