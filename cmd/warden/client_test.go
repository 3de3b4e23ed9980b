package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okanda/warden"
)

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.WorkspaceID == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":    "service exited during startup",
				"log_tail": "traceback",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(warden.Status{WorkspaceID: req.WorkspaceID, Running: true, PID: 4242})
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if ws := r.URL.Query().Get("workspace"); ws != "" {
			_ = json.NewEncoder(w).Encode(warden.Status{WorkspaceID: ws})
			return
		}
		_ = json.NewEncoder(w).Encode([]warden.Status{{WorkspaceID: "a"}, {WorkspaceID: "b"}})
	})
	mux.HandleFunc("/reconcile", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(warden.Report{LocksRemoved: 2})
	})
	mux.HandleFunc("/processes/kill", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]int{"killed": {10, 11}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientStart(t *testing.T) {
	srv := fakeDaemon(t)
	c := NewAPIClient(srv.URL, time.Second)
	if !c.IsReachable() {
		t.Fatalf("daemon not reachable")
	}
	st, err := c.Start("ws1", []string{"sleep", "5"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !st.Running || st.PID != 4242 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestClientStartErrorSurfacesLogTail(t *testing.T) {
	srv := fakeDaemon(t)
	c := NewAPIClient(srv.URL, time.Second)
	_, err := c.Start("boom", nil)
	if err == nil || !strings.Contains(err.Error(), "traceback") {
		t.Fatalf("expected log tail in error, got %v", err)
	}
}

func TestClientStatusAll(t *testing.T) {
	srv := fakeDaemon(t)
	c := NewAPIClient(srv.URL, time.Second)
	sts, err := c.StatusAll()
	if err != nil {
		t.Fatalf("StatusAll: %v", err)
	}
	if len(sts) != 2 {
		t.Fatalf("got %d statuses", len(sts))
	}
}

func TestClientReconcileAndKill(t *testing.T) {
	srv := fakeDaemon(t)
	c := NewAPIClient(srv.URL, time.Second)
	rep, err := c.Reconcile()
	if err != nil || rep.LocksRemoved != 2 {
		t.Fatalf("Reconcile: %v %+v", err, rep)
	}
	killed, err := c.KillOrphans()
	if err != nil || len(killed) != 2 {
		t.Fatalf("KillOrphans: %v %v", err, killed)
	}
}

func TestClientDefaultsBaseURL(t *testing.T) {
	c := NewAPIClient("", 0)
	if c.baseURL != defaultAPIURL {
		t.Fatalf("baseURL = %q", c.baseURL)
	}
}
