package warden

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/okanda/warden/internal/config"
	"github.com/okanda/warden/internal/controller"
	"github.com/okanda/warden/internal/history"
	hfactory "github.com/okanda/warden/internal/history/factory"
	"github.com/okanda/warden/internal/identity"
	"github.com/okanda/warden/internal/logger"
	"github.com/okanda/warden/internal/metrics"
	"github.com/okanda/warden/internal/probe"
	iapi "github.com/okanda/warden/internal/server"
	"github.com/okanda/warden/internal/workspace"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Options = controller.Options

type Status = controller.Status

type Report = controller.Report

type LogChunk = controller.LogChunk

type ProcessInfo = probe.ProcessInfo

type Signature = identity.Signature

type Layout = workspace.Layout

type Config = cfg.Config

type HistorySink = history.Sink

type LoggerConfig = logger.Config

// ErrStartInProgress is returned when a concurrent start already holds
// the start lock for a workspace.
var ErrStartInProgress = controller.ErrStartInProgress

// Supervisor is a thin facade over the internal lifecycle controller.
// It provides a stable public API for embedding.

type Supervisor struct{ inner *controller.Controller }

func New(opts Options) *Supervisor {
	return &Supervisor{inner: controller.New(opts)}
}

func (s *Supervisor) Start(id string, command []string) (Status, error) {
	return s.inner.Start(id, command)
}
func (s *Supervisor) Stop(id string) (Status, error) { return s.inner.Stop(id) }
func (s *Supervisor) StopAll() []int                 { return s.inner.StopAll() }
func (s *Supervisor) Status(id string) Status        { return s.inner.Status(id) }
func (s *Supervisor) StatusAll() []Status            { return s.inner.StatusAll() }
func (s *Supervisor) CheckAlive(id string) bool      { return s.inner.CheckAlive(id) }
func (s *Supervisor) Reconcile() Report              { return s.inner.Reconcile() }
func (s *Supervisor) Processes() []ProcessInfo       { return s.inner.Processes() }
func (s *Supervisor) KillOrphans() []int             { return s.inner.KillOrphans() }
func (s *Supervisor) Logs(id string, tailBytes int64) (LogChunk, error) {
	return s.inner.Logs(id, tailBytes)
}
func (s *Supervisor) AutoStart(id string, command []string) bool {
	return s.inner.AutoStart(id, command)
}
func (s *Supervisor) AutoStarting() bool { return s.inner.AutoStarting() }

// LoadConfig reads a TOML config file with defaults applied.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// DefaultConfig returns the defaults without a file backing them.
func DefaultConfig() (Config, error) { return cfg.Default() }

// NewHistorySink builds a lifecycle history sink from a DSN
// (sqlite path, postgres:// or clickhouse://).
func NewHistorySink(dsn string) (HistorySink, error) { return hfactory.NewSinkFromDSN(dsn) }

// RouterOptions configures the embeddable HTTP API.
type RouterOptions = iapi.Options

// NewHandler returns the lifecycle HTTP API as an http.Handler for
// mounting in any server or mux.
func NewHandler(s *Supervisor, opts RouterOptions) http.Handler {
	return iapi.NewRouter(s.inner, opts).Handler()
}

// NewHTTPServer starts a standalone HTTP server exposing the lifecycle
// API on addr.
func NewHTTPServer(addr string, s *Supervisor, opts RouterOptions) (*http.Server, error) {
	return iapi.NewServer(addr, s.inner, opts)
}

// NewLogger builds a slog logger per the given config.
func NewLogger(c LoggerConfig) *slog.Logger { return c.NewSlogger() }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs in the caller's goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
