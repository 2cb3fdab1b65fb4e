package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slighter12/ae-bridge-go/logger"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "companion.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func waitDone(t *testing.T, s *Supervisor) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for companion exit")
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *lockedBuffer {
	t.Helper()
	buf := &lockedBuffer{}
	previous := logger.Default()
	logger.SetDefault(logger.New(slog.LevelDebug, logger.FormatText, buf))
	t.Cleanup(func() { logger.SetDefault(previous) })
	return buf
}

// outputLines returns the forwarded child output lines in the log.
func outputLines(logs string) []string {
	var out []string
	for _, line := range strings.Split(logs, "\n") {
		if strings.Contains(line, `msg="Companion output"`) {
			out = append(out, line)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func newSupervisor() *Supervisor {
	return New(Options{Module: "server.fastmcp_server", Port: 8000, BridgeURL: "http://127.0.0.1:8080"})
}

func TestArgs(t *testing.T) {
	want := []string{"-m", "server.fastmcp_server", "--transport", "http", "--port", "8000", "--bridge-url", "http://127.0.0.1:8080"}
	if got := newSupervisor().Args(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected args %v", got)
	}
	bare := New(Options{Port: 9000, BridgeURL: "http://x"})
	if got := bare.Args(); got[0] != "--transport" {
		t.Fatalf("expected module flag to be omitted, got %v", got)
	}
}

func TestLaunchPassesArgsAndEnv(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.txt")
	script := writeScript(t, `printf '%s\n' "$*" > `+out+`
echo "$AE_BRIDGE_URL" >> `+out)

	s := newSupervisor()
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitDone(t, s)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", data)
	}
	if lines[0] != strings.Join(s.Args(), " ") {
		t.Fatalf("unexpected args %q", lines[0])
	}
	if lines[1] != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected AE_BRIDGE_URL %q", lines[1])
	}
}

func TestLaunchTwiceSpawnsOnce(t *testing.T) {
	count := filepath.Join(t.TempDir(), "count.txt")
	script := writeScript(t, "echo started >> "+count+"\nexec sleep 30")

	s := newSupervisor()
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("first launch: %v", err)
	}
	first := s.Snapshot()
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("second launch: %v", err)
	}
	if second := s.Snapshot(); second.PID != first.PID {
		t.Fatalf("expected the same process, got %d and %d", first.PID, second.PID)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitDone(t, s)

	data, _ := os.ReadFile(count)
	if strings.Count(string(data), "started") > 1 {
		t.Fatalf("expected a single spawn, got %q", data)
	}
}

func TestLaunchFallsBackPastMissingBinary(t *testing.T) {
	script := writeScript(t, "exec sleep 30")

	s := newSupervisor()
	if err := s.Launch([]string{"/bad/path", script}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	proc := s.Snapshot()
	if proc.Binary != script || proc.State != StateRunning || proc.PID == 0 {
		t.Fatalf("unexpected process %+v", proc)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	waitDone(t, s)
	if proc := s.Snapshot(); proc.State != StateExited || proc.ShutdownRequested {
		t.Fatalf("unexpected process after stop %+v", proc)
	}
}

func TestLaunchStopsOnNonNotFoundError(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}
	notExecutable := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(notExecutable, []byte("#!/bin/sh\n"), 0644); err != nil {
		t.Fatal(err)
	}
	count := filepath.Join(t.TempDir(), "count.txt")
	script := writeScript(t, "echo started >> "+count)

	s := newSupervisor()
	err := s.Launch([]string{notExecutable, script})
	launchErr, ok := errors.AsType[*LaunchError](err)
	if !ok || launchErr.Binary != notExecutable {
		t.Fatalf("expected launch error for %s, got %v", notExecutable, err)
	}
	if _, statErr := os.Stat(count); statErr == nil {
		t.Fatal("later candidates must not be tried after a non not-found error")
	}
	if state := s.Snapshot().State; state != StateIdle {
		t.Fatalf("expected idle state, got %s", state)
	}
}

func TestLaunchAllMissing(t *testing.T) {
	s := newSupervisor()
	err := s.Launch([]string{"/bad/one", "/bad/two"})
	if !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, ok := errors.AsType[*LaunchError](err); !ok {
		t.Fatalf("expected *LaunchError, got %T", err)
	}
}

func TestLaunchEmptyCandidates(t *testing.T) {
	err := newSupervisor().Launch(nil)
	if _, ok := errors.AsType[*LaunchError](err); !ok {
		t.Fatalf("expected *LaunchError, got %v", err)
	}
}

func TestUnexpectedExitClearsInstance(t *testing.T) {
	logs := captureLogs(t)
	script := writeScript(t, "echo\necho '   '\necho hello\necho oops >&2\nexit 3")

	s := newSupervisor()
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitDone(t, s)
	if proc := s.Snapshot(); proc.State != StateExited || proc.PID != 0 {
		t.Fatalf("unexpected process %+v", proc)
	}

	waitFor(t, "forwarded output", func() bool { return len(outputLines(logs.String())) >= 2 })
	var sawStdout, sawStderr bool
	for _, line := range outputLines(logs.String()) {
		switch {
		case strings.Contains(line, "stream=stdout") && strings.Contains(line, "line=hello"):
			sawStdout = true
		case strings.Contains(line, "stream=stderr") && strings.Contains(line, "line=oops"):
			sawStderr = true
		default:
			t.Errorf("unexpected forwarded line %q", line)
		}
	}
	if !sawStdout || !sawStderr {
		t.Fatalf("expected hello on stdout and oops on stderr, got:\n%s", logs.String())
	}
	waitFor(t, "the unexpected exit log", func() bool {
		return strings.Contains(logs.String(), "Companion exited unexpectedly")
	})

	// An exited companion can be launched again.
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	waitDone(t, s)
}

func TestExitDetectedWhileGrandchildHoldsOutput(t *testing.T) {
	script := writeScript(t, "sleep 20 &\nexit 0")

	s := newSupervisor()
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("exit not observed while the background child holds stdout: %+v", s.Snapshot())
	}
	if proc := s.Snapshot(); proc.State != StateExited || proc.PID != 0 {
		t.Fatalf("unexpected process %+v", proc)
	}

	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	waitDone(t, s)
}

func TestShutdownKillsWithinDeadline(t *testing.T) {
	ready := filepath.Join(t.TempDir(), "ready")
	script := writeScript(t, "trap '' TERM\nsleep 20 &\ntouch "+ready+"\nexec sleep 30")

	s := newSupervisor()
	if err := s.Launch([]string{script}); err != nil {
		t.Fatalf("launch: %v", err)
	}
	waitFor(t, "the companion to ignore SIGTERM", func() bool {
		_, err := os.Stat(ready)
		return err == nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := s.Shutdown(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond+killGrace+time.Second {
		t.Fatalf("shutdown took %s", elapsed)
	}
	if proc := s.Snapshot(); proc.State != StateExited {
		t.Fatalf("expected the killed companion to be reaped, got %+v", proc)
	}
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	s := newSupervisor()
	if err := s.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed when idle")
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from State
		ev   event
		want State
		ok   bool
	}{
		{StateIdle, eventLaunch, StateLaunching, true},
		{StateExited, eventLaunch, StateLaunching, true},
		{StateLaunching, eventNotFound, StateLaunching, true},
		{StateLaunching, eventStarted, StateRunning, true},
		{StateLaunching, eventFailed, StateIdle, true},
		{StateRunning, eventExited, StateExited, true},
		{StateRunning, eventLaunch, StateRunning, false},
		{StateIdle, eventExited, StateIdle, false},
	}
	for _, tt := range tests {
		got, err := transition(tt.from, tt.ev)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("transition(%s, %s) = %s, %v", tt.from, tt.ev, got, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates(Env{
		Override:   "/opt/py/bin/python3",
		Python:     "python3",
		ProjectDir: "/work/ae",
		Home:       "/home/me",
		GOOS:       "linux",
	})
	want := []string{
		"/opt/py/bin/python3",
		"python3",
		filepath.Join("/work/ae", ".venv", "bin", "python"),
		filepath.Join("/home/me", ".pyenv", "shims", "python3"),
		"python",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected candidates\n got %v\nwant %v", got, want)
	}

	windows := Candidates(Env{ProjectDir: "proj", GOOS: "windows"})
	if windows[0] != filepath.Join("proj", ".venv", "Scripts", "python.exe") {
		t.Fatalf("unexpected windows venv candidate %v", windows)
	}
}
