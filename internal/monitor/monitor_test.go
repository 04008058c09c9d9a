package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"harvest/internal/api"
	"harvest/internal/config"
)

func TestSnapshotProbesAllMachines(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, Host: "alpha"})
	}))
	defer healthy.Close()

	cfg := config.Default()
	cfg.Machines = []config.Machine{
		{Name: "alpha", URL: healthy.URL, Token: "secret"},
		{Name: "beta", URL: "http://127.0.0.1:1", ProbeTimeoutSeconds: 1},
	}

	mon := New(&cfg, nil)
	view := mon.Snapshot(context.Background())
	if len(view.Machines) != 2 {
		t.Fatalf("machines = %d", len(view.Machines))
	}

	alpha := view.Machines[0]
	if alpha.Name != "alpha" || !alpha.Reachable || alpha.Status == nil || !alpha.Status.Running {
		t.Fatalf("alpha probe = %+v", alpha)
	}
	beta := view.Machines[1]
	if beta.Reachable || beta.Error == "" {
		t.Fatalf("beta probe = %+v", beta)
	}
}

func TestSnapshotDeadHostDoesNotStallView(t *testing.T) {
	stuck := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(10 * time.Second)
	}))
	defer stuck.Close()

	cfg := config.Default()
	cfg.Machines = []config.Machine{
		{Name: "stuck", URL: stuck.URL, ProbeTimeoutSeconds: 1},
	}

	mon := New(&cfg, nil)
	start := time.Now()
	view := mon.Snapshot(context.Background())
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("snapshot took %v, probe timeout not honored", elapsed)
	}
	if view.Machines[0].Reachable {
		t.Fatal("stuck machine reported reachable")
	}
}

func TestLocalRuntimeReportsSaneValues(t *testing.T) {
	stats, err := LocalRuntime(t.TempDir())
	if err != nil {
		t.Fatalf("local runtime: %v", err)
	}
	if stats.MemTotalBytes == 0 {
		t.Fatal("mem total = 0")
	}
	if stats.DiskTotal == 0 {
		t.Fatal("disk total = 0")
	}
	if stats.UptimeSeconds <= 0 {
		t.Fatalf("uptime = %d", stats.UptimeSeconds)
	}
}
