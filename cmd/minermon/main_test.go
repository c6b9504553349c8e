package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/loykin/minermon"
	"github.com/loykin/minermon/internal/config"
	"github.com/loykin/minermon/internal/instance"
)

const baseConfig = `
monitor_name = "test-rig"
start_miner_command = "true"
stop_miner_command = "true"
check_period = "50ms"
exit_grace = "2s"
`

const logSection = `
[log]
color = false
`

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	return writeMinerConfig(t, "minermon-test-no-such-miner", extra)
}

func writeMinerConfig(t *testing.T, miner, extra string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "minermon.toml")
	body := baseConfig + fmt.Sprintf("miner_executable = %q\n", miner) + extra + logSection
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHelp(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	for _, want := range []string{"minermon", "run", "check", "notify-test"} {
		if !strings.Contains(out, want) {
			t.Fatalf("help missing %q: %s", want, out)
		}
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil || !strings.Contains(out, "MinerMon "+version) {
		t.Fatalf("version output %q, err %v", out, err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(p, []byte(`monitor_name = "x"`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execute(t, "run", "--no-console", "--config", p)
	var ve *config.ValidationError
	if !errors.As(err, &ve) || ve.Field != "StartMinerCommand" {
		t.Fatalf("expected StartMinerCommand validation error, got %v", err)
	}
}

func TestCheck_NoMinerNoPool(t *testing.T) {
	out, err := execute(t, "check", "--config", writeConfig(t, ""))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "not running") || !strings.Contains(out, "monitoring disabled") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCheck_PoolStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"stats":{"lastShare":"%d"}}`, time.Now().Add(-10*time.Second).Unix())
	}))
	defer srv.Close()
	out, err := execute(t, "check", "--config", writeConfig(t, fmt.Sprintf("pool_stats_address_url = %q\n", srv.URL)))
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "Pool: fresh") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestNotifyTest_DevModeSkips(t *testing.T) {
	out, err := execute(t, "notify-test", "--config", writeConfig(t, "dev_mode = true\n"))
	if err != nil {
		t.Fatalf("notify-test: %v", err)
	}
	if !strings.Contains(out, "Not sent: dev mode") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestRunWatchdog_StopsOnCancel(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	p := writeConfig(t, fmt.Sprintf("[history]\ndsn = %q\n", "sqlite://"+dbPath))

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runWatchdog(ctx, p, nil, &out) }()
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("watchdog did not stop after cancellation")
	}
	if !strings.Contains(out.String(), "K - Force kill miner") {
		t.Fatalf("help banner missing: %s", out.String())
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("history database not created: %v", err)
	}
}

func TestRunWatchdog_LockHeld(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "minermon.lock")
	held, err := instance.Acquire(lockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	p := writeConfig(t, fmt.Sprintf("lock_file = %q\n", lockPath))
	err = runWatchdog(context.Background(), p, nil, &bytes.Buffer{})
	if !errors.Is(err, instance.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestRunWatchdog_ExitKey(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = r.Close() }()
	defer func() { _ = w.Close() }()

	p := writeConfig(t, "")
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runWatchdog(context.Background(), p, r, &out) }()
	time.Sleep(200 * time.Millisecond)
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("exit key should end cleanly: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("watchdog did not exit on X")
	}
	// exit_grace is 2s in baseConfig
	if time.Since(start) > 3*time.Second {
		t.Fatalf("exit took longer than exit_grace: %v", time.Since(start))
	}
	got := out.String()
	if !strings.Contains(got, "Please wait, stopping monitoring") || !strings.Contains(got, "reason=exit") {
		t.Fatalf("unexpected output: %s", got)
	}
}

func TestWaitLoop_GraceExceeded(t *testing.T) {
	start := time.Now()
	if waitLoop(make(chan struct{}), 50*time.Millisecond) {
		t.Fatalf("a loop that never ends must not be reported as stopped")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("waitLoop did not honour its grace")
	}

	closed := make(chan struct{})
	close(closed)
	if !waitLoop(closed, time.Hour) {
		t.Fatalf("a finished loop must be reported as stopped")
	}
}

// TestHelperMiner is the body of the fake miner process started by the fatal exit test.
func TestHelperMiner(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_MINER") != "1" {
		t.Skip("helper process")
	}
	time.Sleep(time.Minute)
}

// startHelperMiner runs a copy of the test binary under name so the detector can find it.
func startHelperMiner(t *testing.T, name string) *exec.Cmd {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(self)
	if err != nil {
		t.Fatal(err)
	}
	bin := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(bin, data, 0o755); err != nil {
		t.Fatal(err)
	}
	cmd := exec.Command(bin, "-test.run=^TestHelperMiner$")
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_MINER=1")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestRunWatchdog_FatalLoopEnds(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a unix shell")
	}
	const miner = "mmfatalminer"
	helper := startHelperMiner(t, miner)
	time.Sleep(200 * time.Millisecond)

	// start_miner_command "true" never brings the miner back
	p := writeMinerConfig(t, miner, `
startup_grace = "10ms"
start_grace = "10ms"
stop_grace = "10ms"
`)
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runWatchdog(context.Background(), p, nil, &out) }()

	time.Sleep(400 * time.Millisecond)
	_ = helper.Process.Kill()
	_ = helper.Wait()

	select {
	case err := <-done:
		if !errors.Is(err, minermon.ErrFatal) {
			t.Fatalf("expected ErrFatal, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("watchdog did not end after recovery failed")
	}
	if got := out.String(); !strings.Contains(got, "reason=loop_ended") {
		t.Fatalf("expected the listener to notice the loop ended: %s", got)
	}
}
