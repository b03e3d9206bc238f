package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/robojar-core/internal/command"
	"github.com/nerrad567/robojar-core/internal/controller"
	"github.com/nerrad567/robojar-core/internal/device"
	"github.com/nerrad567/robojar-core/internal/infrastructure/config"
	"github.com/nerrad567/robojar-core/internal/infrastructure/logging"
	"github.com/nerrad567/robojar-core/internal/ledger"
	"github.com/nerrad567/robojar-core/internal/metrics"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("ROBOJAR_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidRig verifies validation errors stop startup.
func TestRun_InvalidRig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := "rig:\n  id: bench\n  valves: 0\napi:\n  enabled: false\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ROBOJAR_CONFIG", configPath)

	if err := run(context.Background()); err == nil {
		t.Fatal("run() should fail with zero valves")
	}
}

// TestRun_StartupAndShutdown starts the core without external services
// and checks the ledgers and history database were created.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	logDir := filepath.Join(tmpDir, "Logs")
	dbPath := filepath.Join(tmpDir, "robojar.db")

	content := `
rig:
  id: bench-test
  valves: 2

ledger:
  dir: "` + logDir + `"

api:
  enabled: false

database:
  enabled: true
  path: "` + dbPath + `"

logging:
  level: error
  format: text
  output: stdout

monitor:
  interval: 20ms
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("ROBOJAR_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	for _, name := range []string{"SystemLog.csv", "ValveLog.csv", "PumpLog.csv", "SensorLog.csv"} {
		if _, err := os.Stat(filepath.Join(logDir, name)); err != nil {
			t.Errorf("ledger %s not created: %v", name, err)
		}
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ROBOJAR_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("ROBOJAR_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestLedgerPaths(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.Dir = "/var/lib/robojar"
	cfg.Ledger.Pump = "/abs/pump.csv"
	cfg.Ledger.Sensor = ""

	p := ledgerPaths(cfg)
	if p.System != filepath.Join("/var/lib/robojar", "SystemLog.csv") {
		t.Errorf("System = %q", p.System)
	}
	if p.Pump != "/abs/pump.csv" {
		t.Errorf("Pump = %q, want absolute path kept", p.Pump)
	}
	if p.Sensor != "" {
		t.Errorf("Sensor = %q, want disabled", p.Sensor)
	}
}

func newBench(t *testing.T) (*controller.Controller, ledger.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := ledger.Paths{
		System: filepath.Join(dir, "SystemLog.csv"),
		Valve:  filepath.Join(dir, "ValveLog.csv"),
	}
	ctrl, err := controller.New(controller.Config{Valves: 2}, controller.WithLedger(ledger.New(), paths))
	if err != nil {
		t.Fatalf("controller.New() error = %v", err)
	}
	return ctrl, paths
}

func TestRunMQTTCommand(t *testing.T) {
	ctrl, _ := newBench(t)
	exec := command.NewExecutor(ctrl, nil)
	m := metrics.New()
	ctx := context.Background()

	if err := runMQTTCommand(ctx, exec, m, "open valve 2"); err != nil {
		t.Fatalf("open valve 2: %v", err)
	}
	if got := ctrl.Status().Valves[1].State; got != device.StateOpen {
		t.Errorf("valve 2 = %s, want OPEN", got)
	}

	if err := runMQTTCommand(ctx, exec, m, "open valve 5"); !errors.Is(err, controller.ErrInvalidDeviceIndex) {
		t.Errorf("open valve 5 error = %v, want ErrInvalidDeviceIndex", err)
	}
	if err := runMQTTCommand(ctx, exec, m, "fly"); !errors.Is(err, command.ErrUnknownDevice) {
		t.Errorf("fly error = %v, want ErrUnknownDevice", err)
	}

	if err := runMQTTCommand(ctx, exec, m, "reset"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := ctrl.Status().Valves[1].State; got != device.StateIdle {
		t.Errorf("valve 2 after reset = %s, want IDLE", got)
	}

	if err := runMQTTCommand(ctx, exec, m, "run test"); err != nil {
		t.Fatalf("test: %v", err)
	}
	if got := ctrl.Status().Pump.State; got != device.StateIdle {
		t.Errorf("pump after test = %s, want IDLE", got)
	}
}

func TestCommandOutcome(t *testing.T) {
	tests := []struct {
		res  command.Result
		want device.Outcome
	}{
		{command.Result{Changed: true}, device.OutcomeApplied},
		{command.Result{Changed: true, Rejected: true}, device.OutcomeRejected},
		{command.Result{}, device.OutcomeUnchanged},
	}
	for _, tt := range tests {
		if got := commandOutcome(tt.res); got != tt.want {
			t.Errorf("commandOutcome(%+v) = %s, want %s", tt.res, got, tt.want)
		}
	}
}

func TestPollAll_RecordsOnlyChanges(t *testing.T) {
	ctrl, paths := newBench(t)
	led := ledger.New()
	m := metrics.New()
	log := logging.Discard()

	before, err := led.Entries(paths.System)
	if err != nil {
		t.Fatal(err)
	}

	pollAll(ctrl.Machines(), m, log)
	pollAll(ctrl.Machines(), m, log)

	after, err := led.Entries(paths.System)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Errorf("system rows %d -> %d, want no new rows for unchanged states", len(before), len(after))
	}
}

func TestMonitor_StopsOnCancel(t *testing.T) {
	ctrl, _ := newBench(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		monitor(ctx, ctrl.Machines(), 5*time.Millisecond, metrics.New(), logging.Discard())
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
}

type fakePruner struct {
	calls chan time.Duration
	err   error
}

func (f *fakePruner) Prune(_ context.Context, olderThan time.Duration) (int64, error) {
	select {
	case f.calls <- olderThan:
	default:
	}
	return 1, f.err
}

func TestPruneHistory_PrunesAtStartAndOnTick(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "success"},
		{name: "failure keeps looping", err: errors.New("disk I/O error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakePruner{calls: make(chan time.Duration, 16), err: tt.err}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				pruneHistory(ctx, repo, 48*time.Hour, 5*time.Millisecond, logging.Discard())
				close(done)
			}()

			for i := range 2 {
				select {
				case got := <-repo.calls:
					if got != 48*time.Hour {
						t.Errorf("Prune(%v), want 48h", got)
					}
				case <-time.After(time.Second):
					t.Fatalf("Prune call %d not made", i+1)
				}
			}

			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("pruneHistory did not stop after cancel")
			}
		})
	}
}
