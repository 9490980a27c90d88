package resilience_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sceneloom/costumier/internal/resilience"
)

var errHost = errors.New("host did not ack")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newBreaker(clock *fakeClock) *resilience.Breaker {
	return resilience.New(resilience.Config{
		Name:         "switch",
		MaxFailures:  3,
		ResetTimeout: 30 * time.Second,
	}, clock.Now)
}

func fail() error    { return errHost }
func succeed() error { return nil }

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	t.Parallel()
	b := newBreaker(newFakeClock())

	for i := 0; i < 10; i++ {
		if err := b.Do(succeed); err != nil {
			t.Fatalf("Do() error = %v", err)
		}
	}
	if got := b.State(); got != resilience.StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := newBreaker(newFakeClock())

	for i := 0; i < 3; i++ {
		if err := b.Do(fail); !errors.Is(err, errHost) {
			t.Fatalf("Do() error = %v, want the call's own error", err)
		}
	}
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("State() = %v, want open after 3 failures", got)
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Do() while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("Do() while open still invoked the call")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := newBreaker(newFakeClock())

	_ = b.Do(fail)
	_ = b.Do(fail)
	_ = b.Do(succeed)
	_ = b.Do(fail)
	_ = b.Do(fail)

	if got := b.State(); got != resilience.StateClosed {
		t.Errorf("State() = %v, want closed; failures were not consecutive", got)
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	b := newBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}
	clock.Advance(31 * time.Second)

	if err := b.Do(succeed); err != nil {
		t.Fatalf("probe Do() error = %v", err)
	}
	if got := b.State(); got != resilience.StateClosed {
		t.Errorf("State() = %v, want closed after successful probe", got)
	}
}

func TestBreakerProbeReopensOnFailure(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	b := newBreaker(clock)

	for i := 0; i < 3; i++ {
		_ = b.Do(fail)
	}
	clock.Advance(31 * time.Second)

	if err := b.Do(fail); !errors.Is(err, errHost) {
		t.Fatalf("probe Do() error = %v", err)
	}
	if got := b.State(); got != resilience.StateOpen {
		t.Fatalf("State() = %v, want re-opened after failed probe", got)
	}

	// The failed probe restarts the reset window.
	if err := b.Do(succeed); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("Do() right after failed probe error = %v, want ErrOpen", err)
	}
	clock.Advance(31 * time.Second)
	if err := b.Do(succeed); err != nil {
		t.Errorf("Do() after second window error = %v", err)
	}
}
