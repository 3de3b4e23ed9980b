package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/okanda/warden/internal/controller"
	"github.com/okanda/warden/internal/metrics"
	"github.com/okanda/warden/internal/probe"
)

// Router provides embeddable HTTP handlers for the lifecycle API.
// Endpoints:
//   POST {basePath}/start           body: {"workspace_id": "...", "command": [...]}
//   POST {basePath}/stop            query: workspace=...
//   POST {basePath}/stopall
//   GET  {basePath}/status          query: workspace=... (instance) or none (all)
//   GET  {basePath}/logs            query: workspace=...&tail_bytes=N
//   POST {basePath}/reconcile
//   GET  {basePath}/processes
//   POST {basePath}/processes/kill
//   POST {basePath}/autostart       query: workspace=...
//   GET  {basePath}/healthz
//   GET  {basePath}/metrics         (when enabled)
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	ctl      *controller.Controller
	basePath string
	opts     Options
}

// Options carries the router's defaults beyond the controller itself.
type Options struct {
	BasePath string
	// Workspace is the default workspace id when a request names none.
	Workspace string
	// Command is the default start command for start/autostart requests
	// that carry none.
	Command []string
	Metrics bool
}

// NewRouter constructs a Router over a controller.
func NewRouter(ctl *controller.Controller, opts Options) *Router {
	return &Router{ctl: ctl, basePath: sanitizeBase(opts.BasePath), opts: opts}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/stopall", r.handleStopAll)
	group.GET("/status", r.handleStatus)
	group.GET("/logs", r.handleLogs)
	group.POST("/reconcile", r.handleReconcile)
	group.GET("/processes", r.handleProcesses)
	group.POST("/processes/kill", r.handleKillOrphans)
	group.POST("/autostart", r.handleAutoStart)
	group.GET("/healthz", r.handleHealthz)
	if r.opts.Metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, ctl *controller.Controller, opts Options) (*http.Server, error) {
	r := NewRouter(ctl, opts)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error   string `json:"error"`
	LogTail string `json:"log_tail,omitempty"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startRequest struct {
	WorkspaceID string   `json:"workspace_id"`
	Command     []string `json:"command"`
}

// workspaceID resolves the workspace from request body/query, falling
// back to the configured default. Empty result means the request is
// unanswerable.
func (r *Router) workspaceID(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if q := c.Query("workspace"); q != "" {
		return q
	}
	return r.opts.Workspace
}

func (r *Router) handleStart(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
			return
		}
	}
	id := r.workspaceID(c, req.WorkspaceID)
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid workspace id: allowed [A-Za-z0-9._-] and no '..' or path separators"})
		return
	}
	command := req.Command
	if len(command) == 0 {
		command = r.opts.Command
	}
	st, err := r.ctl.Start(id, command)
	if err != nil {
		switch {
		case errors.Is(err, controller.ErrStartInProgress), controller.IsPortBusy(err):
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		case controller.IsExitedEarly(err):
			var ee *controller.ExitedEarlyError
			_ = errors.As(err, &ee)
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error(), LogTail: ee.LogTail})
		default:
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		}
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	id := r.workspaceID(c, "")
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid workspace id"})
		return
	}
	st, err := r.ctl.Stop(id)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStopAll(c *gin.Context) {
	stopped := r.ctl.StopAll()
	if stopped == nil {
		stopped = []int{}
	}
	writeJSON(c, http.StatusOK, gin.H{"stopped": stopped})
}

func (r *Router) handleStatus(c *gin.Context) {
	if id := c.Query("workspace"); id != "" {
		if !isSafeName(id) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid workspace id"})
			return
		}
		writeJSON(c, http.StatusOK, r.ctl.Status(id))
		return
	}
	writeJSON(c, http.StatusOK, r.ctl.StatusAll())
}

func (r *Router) handleLogs(c *gin.Context) {
	id := r.workspaceID(c, "")
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid workspace id"})
		return
	}
	tail := parseTailBytes(c.Query("tail_bytes"))
	chunk, err := r.ctl.Logs(id, tail)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, chunk)
}

func (r *Router) handleReconcile(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctl.Reconcile())
}

func (r *Router) handleProcesses(c *gin.Context) {
	procs := r.ctl.Processes()
	if procs == nil {
		procs = []probe.ProcessInfo{}
	}
	writeJSON(c, http.StatusOK, procs)
}

func (r *Router) handleKillOrphans(c *gin.Context) {
	killed := r.ctl.KillOrphans()
	if killed == nil {
		killed = []int{}
	}
	writeJSON(c, http.StatusOK, gin.H{"killed": killed})
}

func (r *Router) handleAutoStart(c *gin.Context) {
	id := r.workspaceID(c, "")
	if !isSafeName(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid workspace id"})
		return
	}
	started := r.ctl.AutoStart(id, r.opts.Command)
	writeJSON(c, http.StatusOK, gin.H{"started": started})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
