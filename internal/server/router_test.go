package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/okanda/warden/internal/controller"
	"github.com/okanda/warden/internal/identity"
	"github.com/okanda/warden/internal/workspace"
)

func setupRouter(t *testing.T, base string, opts Options) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctl := controller.New(controller.Options{
		Layout:    workspace.Layout{Root: t.TempDir()},
		Signature: identity.Signature{BinaryName: "sleep"},
	})
	opts.BasePath = base
	return NewRouter(ctl, opts).Handler()
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStartRejectsBadWorkspaceID(t *testing.T) {
	h := setupRouter(t, "/warden", Options{})
	rec := doReq(t, h, http.MethodPost, "/warden/start", startRequest{WorkspaceID: "../etc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartRequiresWorkspace(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodPost, "/start", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestStopIdleWorkspaceOK(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodPost, "/stop?workspace=ws1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st controller.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Running {
		t.Fatalf("idle workspace reported running")
	}
}

func TestStatusAllEmpty(t *testing.T) {
	h := setupRouter(t, "/base", Options{})
	rec := doReq(t, h, http.MethodGet, "/base/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusSingle(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodGet, "/status?workspace=ws1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st controller.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.WorkspaceID != "ws1" || st.Running {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestDefaultWorkspaceFromOptions(t *testing.T) {
	h := setupRouter(t, "", Options{Workspace: "alpha"})
	rec := doReq(t, h, http.MethodPost, "/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via default workspace, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartStopRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test requires sleep on Unix-like systems")
	}
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodPost, "/start", startRequest{WorkspaceID: "ws1", Command: []string{"sleep", "5"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st controller.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running || st.PID <= 0 {
		t.Fatalf("unexpected start status: %+v", st)
	}
	rec = doReq(t, h, http.MethodPost, "/stop?workspace=ws1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStartExitedEarlySurfacesLogTail(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test requires sh on Unix-like systems")
	}
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodPost, "/start", startRequest{
		WorkspaceID: "ws1",
		Command:     []string{"sh", "-c", "echo crashlog; exit 1"},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp errorResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.LogTail == "" {
		t.Fatalf("expected log tail in error response: %+v", resp)
	}
}

func TestStopAllEmpty(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodPost, "/stopall", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out struct {
		Stopped []int `json:"stopped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Stopped) != 0 {
		t.Fatalf("expected no stopped pids: %v", out.Stopped)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodPost, "/reconcile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rep controller.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestProcessesEndpointEmptyList(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodGet, "/processes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestLogsMissingFileOK(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodGet, "/logs?workspace=ws1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var chunk controller.LogChunk
	if err := json.Unmarshal(rec.Body.Bytes(), &chunk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if chunk.Content != "" {
		t.Fatalf("expected empty chunk: %+v", chunk)
	}
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, "/x", Options{})
	rec := doReq(t, h, http.MethodGet, "/x/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpointGated(t *testing.T) {
	h := setupRouter(t, "", Options{})
	rec := doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("metrics should be disabled by default, got %d", rec.Code)
	}
	h = setupRouter(t, "", Options{Metrics: true})
	rec = doReq(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics enabled: expected 200, got %d", rec.Code)
	}
}
