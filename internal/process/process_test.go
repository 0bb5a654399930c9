package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/tasksched/internal/logger"
	"github.com/aristath/tasksched/internal/scheduler"
)

func TestRun_CapturesOutput(t *testing.T) {
	m := NewManager(zerolog.Nop())

	res, err := m.Run(context.Background(), "echo hello; echo oops >&2")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(string(res.Stdout)) != "hello" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "oops" {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	m := NewManager(zerolog.Nop())

	res, err := m.Run(context.Background(), "echo partial; echo broken pipe >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for exit 3")
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("err = %v, want exit code 3", err)
	}
	if !strings.Contains(err.Error(), "broken pipe") {
		t.Errorf("error missing stderr: %v", err)
	}
	// Output is kept on failure
	if !strings.Contains(string(res.Stdout), "partial") {
		t.Errorf("stdout = %q", res.Stdout)
	}
}

// Output well above the pipe buffer must not deadlock.
func TestRun_LargeOutput(t *testing.T) {
	m := NewManager(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := m.Run(ctx, "yes x | head -n 100000")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Stdout) != 200000 {
		t.Errorf("stdout length = %d, want 200000", len(res.Stdout))
	}
}

func TestRun_CancelKillsProcessGroup(t *testing.T) {
	m := NewManager(zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The background sleep holds the pipes open unless the whole group dies
	start := time.Now()
	_, err := m.Run(ctx, "sleep 30 & sleep 30; wait")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run returned after %v", elapsed)
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d after Run returned", m.Count())
	}
}

func TestKillAll(t *testing.T) {
	m := NewManager(zerolog.Nop())

	done := make(chan error, 1)
	go func() {
		_, err := m.Run(context.Background(), "sleep 30")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("command never tracked")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.KillAll(); err != nil {
		t.Fatalf("KillAll: %v", err)
	}

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected error from killed command")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command survived KillAll")
	}
	if m.Count() != 0 {
		t.Errorf("Count() = %d, want 0", m.Count())
	}
}

func TestRun_LogsCurrentTask(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(logger.New("debug", "json", &buf))

	s := scheduler.New()
	s.Submit(scheduler.NewTask(scheduler.TaskSpec{
		ID: "build",
		Body: func(ctx context.Context) error {
			_, err := m.Run(ctx, "true")
			return err
		},
	}))
	if err := scheduler.Worker(context.Background(), s); err != nil {
		t.Fatalf("Worker: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"task_id":"build"`) || !strings.Contains(out, `"command":"true"`) {
		t.Errorf("log = %s", out)
	}
}
