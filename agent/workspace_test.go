package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestWorkspaceResolve(t *testing.T) {
	ws := testWorkspace(t)

	resolved, err := ws.Resolve("read_file", "sub/file.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != filepath.Join(ws.Root(), "sub", "file.txt") {
		t.Errorf("unexpected resolution: %s", resolved)
	}

	for _, bad := range []string{"", "/etc/passwd", "..", "../x", "a/../../x"} {
		if _, err := ws.Resolve("read_file", bad); err == nil {
			t.Errorf("expected rejection for %q", bad)
		} else {
			var te *ToolError
			if !errors.As(err, &te) || te.Code != ToolErrInvalidInput {
				t.Errorf("%q: expected invalid_input, got %v", bad, err)
			}
		}
	}
}

func TestWorkspaceRootMustExist(t *testing.T) {
	if _, err := NewWorkspace(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for nonexistent root")
	}
}

func TestExecCommandKillsProcessGroup(t *testing.T) {
	ws := testWorkspace(t)
	pidFile := filepath.Join(ws.Root(), "child.pid")

	// The command spawns a background child and then outlives the timeout.
	// After the timeout the whole process group must be dead.
	result, err := ws.ExecCommand(context.Background(),
		"sleep 30 & echo $! > child.pid; sleep 30", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut {
		t.Fatal("expected the command to time out")
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("child pid not recorded: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("bad pid: %v", err)
	}

	// Give the kernel a moment to reap, then check the child is gone.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if syscall.Kill(pid, 0) != nil {
			return // dead, as expected
		}
		// A zombie still answers signal 0; confirm via its state.
		if state, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat"); err != nil ||
			strings.Contains(string(state), ") Z ") {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("background child %d survived the process-group kill", pid)
}

func TestExecCommandCancelledContext(t *testing.T) {
	ws := testWorkspace(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	// Cancellation is not a command outcome: no result, the context error
	// surfaces so the caller stops.
	result, err := ws.ExecCommand(ctx, "sleep 30", 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got result=%v err=%v", result, err)
	}
	if result != nil {
		t.Errorf("expected no result for a cancelled command, got %+v", result)
	}
}

func TestExecCommandCapturesStreams(t *testing.T) {
	ws := testWorkspace(t)
	result, err := ws.ExecCommand(context.Background(), "echo out; echo err >&2", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "out" {
		t.Errorf("unexpected stdout: %q", result.Stdout)
	}
	if strings.TrimSpace(result.Stderr) != "err" {
		t.Errorf("unexpected stderr: %q", result.Stderr)
	}
	if result.ExitCode != 0 {
		t.Errorf("unexpected exit code: %d", result.ExitCode)
	}
}

func TestGrepMaxResults(t *testing.T) {
	ws := testWorkspace(t)
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "match me")
	}
	if err := os.WriteFile(filepath.Join(ws.Root(), "big.txt"), []byte(strings.Join(lines, "\n")), 0644); err != nil {
		t.Fatal(err)
	}

	matches, err := ws.Grep(context.Background(), "match", "", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 5 {
		t.Errorf("expected 5 matches, got %d", len(matches))
	}
}
