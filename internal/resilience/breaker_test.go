package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing() error { return errBoom }
func succeeding() error { return nil }

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})

	for i := 0; i < 10; i++ {
		if err := b.Execute(succeeding); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreaker_ClassifierSkipsBenignErrors(t *testing.T) {
	errBenign := errors.New("resource gone")
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Hour,
		IsFailure:    func(err error) bool { return !errors.Is(err, errBenign) },
	})

	// Unclassified errors pass through without opening the breaker.
	for i := 0; i < 10; i++ {
		if err := b.Execute(func() error { return errBenign }); !errors.Is(err, errBenign) {
			t.Fatalf("Execute: %v, want the benign error surfaced", err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Fatalf("state = %v, want closed after benign errors", got)
	}

	for i := 0; i < 2; i++ {
		_ = b.Execute(failing)
	}
	if got := b.State(); got != StateOpen {
		t.Errorf("state = %v, want open after classified failures", got)
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		if err := b.Execute(failing); !errors.Is(err, errBoom) {
			t.Fatalf("Execute = %v, want errBoom", err)
		}
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	// Calls are now rejected without running fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Execute = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn ran while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: time.Hour})

	_ = b.Execute(failing)
	_ = b.Execute(failing)
	_ = b.Execute(succeeding)
	_ = b.Execute(failing)
	_ = b.Execute(failing)

	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (streak broken by success)", got)
	}
}

func TestBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	_ = b.Execute(failing)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(20 * time.Millisecond)
	if got := b.State(); got != StateHalfOpen {
		t.Errorf("state = %v, want half-open after reset timeout", got)
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: time.Millisecond,
		HalfOpenMax:  2,
	})

	_ = b.Execute(failing)
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := b.Execute(succeeding); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed after probe budget succeeded", got)
	}
}

func TestBreaker_ReopensOnHalfOpenFailure(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:         "test",
		MaxFailures:  1,
		ResetTimeout: time.Millisecond,
		HalfOpenMax:  3,
	})

	_ = b.Execute(failing)
	time.Sleep(5 * time.Millisecond)

	if err := b.Execute(failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe = %v, want errBoom", err)
	}
	// Immediately open again; next call rejected.
	if err := b.Execute(succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("Execute = %v, want ErrOpen", err)
	}
}

func TestBreaker_Reset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour})

	_ = b.Execute(failing)
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	b.Reset()
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed after Reset", got)
	}
	if err := b.Execute(succeeding); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(42), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q, want %q", tc.state, got, tc.want)
		}
	}
}
