package resilience

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/aristath/tasksched/internal/config"
)

// flakyBody fails the first failures calls and succeeds afterwards.
type flakyBody struct {
	failures int32
	err      error
	calls    atomic.Int32
}

func (f *flakyBody) run(ctx context.Context) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return f.err
	}
	return nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialInterval:     time.Millisecond,
		MaxInterval:         5 * time.Millisecond,
		MaxElapsedTime:      time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.InitialInterval != 100*time.Millisecond {
		t.Errorf("InitialInterval = %v, want 100ms", cfg.InitialInterval)
	}
	if cfg.MaxInterval != 10*time.Second {
		t.Errorf("MaxInterval = %v, want 10s", cfg.MaxInterval)
	}
	if cfg.MaxElapsedTime != 2*time.Minute {
		t.Errorf("MaxElapsedTime = %v, want 2m", cfg.MaxElapsedTime)
	}
	if cfg.Multiplier != 2.0 || cfg.RandomizationFactor != 0.5 {
		t.Errorf("Multiplier/RandomizationFactor = %v/%v, want 2.0/0.5", cfg.Multiplier, cfg.RandomizationFactor)
	}
}

func TestFromConfig(t *testing.T) {
	got := FromConfig(config.RetryConfig{
		InitialInterval: config.Duration(5 * time.Millisecond),
		Multiplier:      3,
	})
	if got.InitialInterval != 5*time.Millisecond || got.Multiplier != 3 {
		t.Errorf("overrides not applied: %+v", got)
	}
	if got.MaxInterval != 10*time.Second || got.RandomizationFactor != 0.5 {
		t.Errorf("defaults not kept: %+v", got)
	}
}

func TestWrap_TransientThenSuccess(t *testing.T) {
	body := &flakyBody{failures: 2, err: errors.New("transient")}
	p := Policy{Retry: fastRetry(), Breakers: NewBreakerRegistry(zerolog.Nop()), Log: zerolog.Nop()}

	if err := p.Wrap("tile", body.run)(context.Background()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := body.calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestWrap_PermanentErrorNotRetried(t *testing.T) {
	cause := errors.New("bad input")
	body := &flakyBody{failures: 10, err: Permanent(cause)}
	p := Policy{Retry: fastRetry(), Log: zerolog.Nop()}

	err := p.Wrap("tile", body.run)(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want %v", err, cause)
	}
	if got := body.calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestWrap_GivesUpAfterMaxElapsed(t *testing.T) {
	cause := errors.New("always fails")
	body := &flakyBody{failures: 1 << 20, err: cause}
	cfg := fastRetry()
	cfg.MaxElapsedTime = 20 * time.Millisecond
	p := Policy{Retry: cfg, Log: zerolog.Nop()}

	err := p.Wrap("io", body.run)(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want %v", err, cause)
	}
	if body.calls.Load() < 2 {
		t.Errorf("calls = %d, want at least 2", body.calls.Load())
	}
}

func TestWrap_CircuitOpen(t *testing.T) {
	breakers := NewBreakerRegistry(zerolog.Nop())
	cb := breakers.Get("composite")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("boom") })
	}
	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %v, want open", cb.State())
	}

	body := &flakyBody{}
	p := Policy{Retry: fastRetry(), Breakers: breakers, Log: zerolog.Nop()}

	err := p.Wrap("composite", body.run)(context.Background())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if got := body.calls.Load(); got != 0 {
		t.Errorf("body called %d times through an open breaker", got)
	}
}

func TestWrap_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	body := &flakyBody{}
	p := Policy{Retry: fastRetry(), Log: zerolog.Nop()}

	err := p.Wrap("tile", body.run)(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := body.calls.Load(); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestWrap_NilBody(t *testing.T) {
	if got := (Policy{}).Wrap("tile", nil); got != nil {
		t.Error("expected nil body to stay nil")
	}
}

func TestBreakerRegistry_PerKind(t *testing.T) {
	reg := NewBreakerRegistry(zerolog.Nop())

	if reg.Get("tile") != reg.Get("tile") {
		t.Error("expected the same breaker for the same kind")
	}
	if reg.Get("tile") == reg.Get("io") {
		t.Error("expected distinct breakers for different kinds")
	}
}

func TestBreakerRegistry_CancellationDoesNotTrip(t *testing.T) {
	reg := NewBreakerRegistry(zerolog.Nop())
	cb := reg.Get("tile")

	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("breaker state = %v, want closed", cb.State())
	}
}

func TestBreakerRegistry_LogsStateChange(t *testing.T) {
	var buf bytes.Buffer
	reg := NewBreakerRegistry(zerolog.New(&buf))
	cb := reg.Get("io")

	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("disk full") })
	}

	out := buf.String()
	if !strings.Contains(out, "circuit breaker state change") || !strings.Contains(out, `"kind":"io"`) {
		t.Errorf("missing state change log: %q", out)
	}
}
