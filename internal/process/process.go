// Package process runs shell commands for task bodies. Each command runs in
// its own process group so cancellation and shutdown reach its whole tree.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tasksched/internal/scheduler"
)

// waitDelay bounds how long Wait lingers on open pipes after the group is killed.
const waitDelay = 2 * time.Second

// Result is the captured output of a finished command.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Manager starts commands and tracks the running ones.
type Manager struct {
	mu    sync.Mutex
	procs map[int]*exec.Cmd
	shell string
	log   zerolog.Logger
}

// NewManager creates a manager that runs commands with /bin/sh -c.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		procs: make(map[int]*exec.Cmd),
		shell: "/bin/sh",
		log:   log,
	}
}

// newCommand creates a command in a new process group. Cancelling ctx kills
// the group, not only the shell.
func (m *Manager) newCommand(ctx context.Context, command string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, m.shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	cmd.WaitDelay = waitDelay
	return cmd
}

// Run executes command and waits for it. A non-zero exit is returned as an
// error carrying the command's stderr. When called from a task body the log
// lines carry the task ID.
func (m *Manager) Run(ctx context.Context, command string) (Result, error) {
	cmd := m.newCommand(ctx, command)

	log := m.log.With().Str("command", command).Logger()
	if t := scheduler.Current(ctx); t != nil {
		log = log.With().Str("task_id", string(t.ID())).Logger()
	}

	start := time.Now()
	res, err := m.execute(cmd)
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		// Killed by cancellation; report that instead of the signal exit
		err = fmt.Errorf("command interrupted: %w", ctxErr)
	}

	log.Debug().
		Err(err).
		Dur("elapsed", time.Since(start)).
		Int("stdout_bytes", len(res.Stdout)).
		Msg("command finished")
	return res, err
}

// execute starts cmd, drains both pipes concurrently, then waits. Draining
// before Wait keeps large outputs from filling the pipe buffer.
func (m *Manager) execute(cmd *exec.Cmd) (Result, error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start command: %w", err)
	}
	m.track(cmd)
	defer m.untrack(cmd)

	var (
		wg                   sync.WaitGroup
		stdoutBuf, stderrBuf bytes.Buffer
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(&stdoutBuf, stdoutPipe)
	}()
	go func() {
		defer wg.Done()
		io.Copy(&stderrBuf, stderrPipe)
	}()
	wg.Wait()

	waitErr := cmd.Wait()
	res := Result{Stdout: stdoutBuf.Bytes(), Stderr: stderrBuf.Bytes()}

	if waitErr != nil {
		if stderr := bytes.TrimSpace(res.Stderr); len(stderr) > 0 {
			return res, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, stderr)
		}
		return res, fmt.Errorf("command failed: %w", waitErr)
	}
	return res, nil
}

// killProcessGroup sends SIGKILL to cmd's whole process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	// Negative PID addresses the group
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill process group: %w", err)
	}
	return nil
}

func (m *Manager) track(cmd *exec.Cmd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.procs[cmd.Process.Pid] = cmd
}

func (m *Manager) untrack(cmd *exec.Cmd) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.procs, cmd.Process.Pid)
}

// KillAll kills the process group of every running command.
func (m *Manager) KillAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for pid, cmd := range m.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, fmt.Errorf("process %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of running commands.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.procs)
}
