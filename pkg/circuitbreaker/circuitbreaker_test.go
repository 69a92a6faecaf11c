package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTestError = errors.New("test error")

func newTestBreaker(cfg Config) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := New("backend", cfg)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func failN(cb *CircuitBreaker, n int) {
	for i := 0; i < n; i++ {
		_ = cb.Do(func() error { return errTestError })
	}
}

func TestCircuitBreaker_ClosedPassesThrough(t *testing.T) {
	cb, _ := newTestBreaker(DefaultConfig())

	got, err := Execute(cb, func() (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("Execute() = %d, %v; want 7, nil", got, err)
	}

	err = cb.Do(func() error { return errTestError })
	if !errors.Is(err, errTestError) {
		t.Errorf("Expected the function's error, got: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})
	failN(cb, 3)

	if cb.State() != StateOpen {
		t.Fatalf("Expected state open, got: %v", cb.State())
	}

	called := false
	err := cb.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen, got: %v", err)
	}
	if called {
		t.Error("Function must not run while open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute})

	failN(cb, 2)
	_ = cb.Do(func() error { return nil })
	failN(cb, 2)

	if cb.State() != StateClosed {
		t.Errorf("Expected state closed, got: %v", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute, MaxRequestsHalfOpen: 1})

	var mu sync.Mutex
	var transitions []State
	cb.OnStateChange(func(_ string, _, to State) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	failN(cb, 1)
	*now = now.Add(time.Minute)

	if err := cb.Do(func() error { return nil }); err != nil {
		t.Fatalf("Half-open request should be allowed, got: %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open after one success, got: %v", cb.State())
	}
	if err := cb.Do(func() error { return nil }); err != nil {
		t.Fatalf("Second half-open request should be allowed, got: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed, got: %v", cb.State())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})

	failN(cb, 1)
	*now = now.Add(time.Minute)
	failN(cb, 1)

	if cb.State() != StateOpen {
		t.Errorf("Expected open, got: %v", cb.State())
	}
	if err := cb.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("Expected ErrOpen right after reopening, got: %v", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb, _ := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Hour})
	failN(cb, 1)
	cb.Reset()

	if cb.State() != StateClosed {
		t.Errorf("Expected closed after reset, got: %v", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
