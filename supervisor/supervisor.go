// Package supervisor launches and stops the companion agent protocol server:
// at most one child process, started from the first usable interpreter of a
// candidate list.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/slighter12/ae-bridge-go/logger"
)

const maxLineBytes = 1 << 20

// killGrace bounds the wait for a killed process to be reaped.
const killGrace = 2 * time.Second

// Options fixes how the companion is invoked.
type Options struct {
	Module    string
	Port      int
	BridgeURL string
	// Dir is the child's working directory; empty inherits ours.
	Dir string
}

// Process is a snapshot of the supervised process.
type Process struct {
	Binary            string `json:"binary,omitempty"`
	PID               int    `json:"pid,omitempty"`
	State             State  `json:"state"`
	ShutdownRequested bool   `json:"shutdownRequested"`
}

// LaunchError reports why no candidate could be started.
type LaunchError struct {
	Binary string
	Tried  []string
	Err    error
}

func (e *LaunchError) Error() string {
	switch {
	case len(e.Tried) == 0 && e.Binary == "":
		return "no interpreter candidates to launch"
	case e.Binary != "":
		return fmt.Sprintf("failed to launch %s: %v", e.Binary, e.Err)
	}
	return fmt.Sprintf("no usable interpreter among [%s]: %v", strings.Join(e.Tried, ", "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Supervisor owns the single companion process.
type Supervisor struct {
	opts Options

	mu   sync.Mutex
	proc Process
	cmd  *exec.Cmd
	done chan struct{}
}

func New(opts Options) *Supervisor {
	return &Supervisor{opts: opts}
}

// Args is the argument list passed after the interpreter.
func (s *Supervisor) Args() []string {
	var args []string
	if s.opts.Module != "" {
		args = append(args, "-m", s.opts.Module)
	}
	return append(args,
		"--transport", "http",
		"--port", strconv.Itoa(s.opts.Port),
		"--bridge-url", s.opts.BridgeURL,
	)
}

// Launch starts the companion from the first candidate that exists. It is a
// no-op while a process is live. A missing binary moves on to the next
// candidate; any other start error ends the attempt.
func (s *Supervisor) Launch(candidates []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc.State.Live() {
		logger.Debug("Companion already running", "binary", s.proc.Binary, "pid", s.proc.PID)
		return nil
	}
	if len(candidates) == 0 {
		err := &LaunchError{}
		logger.Error("Companion launch failed", "error", err)
		return err
	}
	if err := s.apply(eventLaunch); err != nil {
		return err
	}

	args := s.Args()
	for _, binary := range candidates {
		cmd, stdout, stderr, err := s.start(binary, args)
		if err != nil {
			if isNotFound(err) {
				logger.Debug("Companion interpreter not found", "binary", binary)
				_ = s.apply(eventNotFound)
				continue
			}
			_ = s.apply(eventFailed)
			launchErr := &LaunchError{Binary: binary, Tried: candidates, Err: err}
			logger.Error("Companion launch failed", "error", launchErr)
			return launchErr
		}

		_ = s.apply(eventStarted)
		pid := cmd.Process.Pid
		s.cmd = cmd
		s.done = make(chan struct{})
		s.proc = Process{Binary: binary, PID: pid, State: StateRunning}
		logger.Info("Companion started", "binary", binary, "pid", pid, "args", strings.Join(args, " "))

		go forward(stdout, "stdout", pid)
		go forward(stderr, "stderr", pid)
		go s.supervise(cmd, s.done)
		return nil
	}

	_ = s.apply(eventFailed)
	launchErr := &LaunchError{Tried: candidates, Err: exec.ErrNotFound}
	logger.Error("Companion launch failed", "error", launchErr)
	return launchErr
}

// start runs binary with its output on plain os pipes. The child only gets
// the write ends, so Wait returns when the process exits even if a
// grandchild still holds them; the readers hit EOF once every writer is gone.
func (s *Supervisor) start(binary string, args []string) (*exec.Cmd, *os.File, *os.File, error) {
	cmd := exec.Command(binary, args...)
	cmd.Dir = s.opts.Dir
	cmd.Env = append(os.Environ(), "AE_BRIDGE_URL="+s.opts.BridgeURL)

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, nil, nil, err
	}
	return cmd, stdoutR, stderrR, nil
}

// supervise reaps the process and records its exit.
func (s *Supervisor) supervise(cmd *exec.Cmd, done chan struct{}) {
	pid := cmd.Process.Pid
	waitErr := cmd.Wait()

	s.mu.Lock()
	requested := s.proc.ShutdownRequested
	if err := s.apply(eventExited); err != nil {
		logger.Warn("Unexpected companion state on exit", "error", err)
	}
	s.proc.ShutdownRequested = false
	s.proc.PID = 0
	s.cmd = nil
	s.mu.Unlock()
	close(done)

	if requested {
		logger.Info("Companion stopped", "pid", pid)
		return
	}
	logger.Warn("Companion exited unexpectedly", "pid", pid, "error", waitErr)
}

// forward logs each non-blank line of r until EOF, then closes it.
func forward(r io.ReadCloser, stream string, pid int) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		logger.Info("Companion output", "stream", stream, "pid", pid, "line", line)
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debug("Companion output stream ended", "stream", stream, "error", err)
		// Drain so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

// Stop asks the running companion to exit. It does nothing when no process is
// running; the exit itself is observed through Done.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc.State != StateRunning || s.cmd == nil {
		return nil
	}
	s.proc.ShutdownRequested = true
	logger.Info("Stopping companion", "pid", s.proc.PID)
	if runtime.GOOS == "windows" {
		return s.cmd.Process.Kill()
	}
	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal companion: %w", err)
	}
	return nil
}

// Shutdown stops the companion and waits for it to exit, killing it when ctx
// ends first. After a kill it waits at most killGrace.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil {
		logger.Warn("Companion did not stop in time, killing it", "pid", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		timer := time.NewTimer(killGrace)
		defer timer.Stop()
		select {
		case <-s.Done():
		case <-timer.C:
			logger.Error("Companion did not exit after kill", "pid", cmd.Process.Pid)
		}
	}
	return ctx.Err()
}

// Done is closed when the current process exits. It is already closed when
// nothing is running.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil || s.proc.State != StateRunning {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

func (s *Supervisor) Snapshot() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// apply must be called with mu held.
func (s *Supervisor) apply(ev event) error {
	next, err := transition(s.proc.State, ev)
	if err != nil {
		return err
	}
	s.proc.State = next
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
