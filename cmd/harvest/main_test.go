package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"harvest/internal/config"
	"harvest/internal/daemon"
	"harvest/internal/library"
	"harvest/internal/queue"
	"harvest/internal/stagestore"
	"harvest/internal/testsupport"
	"harvest/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	addr       string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("cli-test-token"))
	store := testsupport.MustOpenQueue(t, cfg)

	catalog, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	stages := stagestore.New(cfg)
	mgr := workflow.NewManager(cfg, store, workflow.Components{}, nil)

	d, err := daemon.New(cfg, daemon.Components{
		Store:    store,
		Catalog:  catalog,
		Stages:   stages,
		Workflow: mgr,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		addr:       "http://" + d.Addr(),
		configPath: configPath,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath}
	if env.addr != "" {
		flags = append(flags, "--addr", env.addr)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got %q", want, output)
	}
}

func TestCLIStatusReportsDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "running on testhost")
}

func TestCLIStatusJSONOutput(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "status", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	requireContains(t, out, `"running": true`)
	requireContains(t, out, `"host": "testhost"`)
}

func TestCLIStatusReportsUnreachableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	env.addr = "http://127.0.0.1:1"

	_, _, err := runCLI(t, env, "status")
	if err == nil {
		t.Fatal("expected error when the daemon is unreachable")
	}
	if !strings.Contains(err.Error(), "daemon unreachable") {
		t.Fatalf("unexpected error: %v", err)
	}
}
