package resilience

import (
	"errors"
	"testing"
	"time"
)

func newStringGroup(maxFailures int, resetTimeout time.Duration) *FallbackGroup[string] {
	fg := NewFallbackGroup("elevenlabs", "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  maxFailures,
			ResetTimeout: resetTimeout,
		},
	})
	fg.AddFallback("coqui", "coqui")
	return fg
}

func TestFallbackGroup_PrimaryWins(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, time.Hour)

	var called string
	if err := fg.Execute(func(v string) error {
		called = v
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "elevenlabs" {
		t.Fatalf("called = %q, want elevenlabs", called)
	}
}

func TestFallbackGroup_FailureMovesToNext(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, time.Hour)

	var called string
	if err := fg.Execute(func(v string) error {
		if v == "elevenlabs" {
			return errBackend
		}
		called = v
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if called != "coqui" {
		t.Fatalf("called = %q, want coqui", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(3, time.Hour)

	err := fg.Execute(func(string) error { return errBackend })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenPrimaryIsSkipped(t *testing.T) {
	t.Parallel()

	fg := newStringGroup(2, time.Hour)

	// Trip the primary's breaker; the fallback keeps these calls green.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "elevenlabs" {
				return errBackend
			}
			return nil
		})
	}

	var primaryCalls int
	var called string
	if err := fg.Execute(func(v string) error {
		if v == "elevenlabs" {
			primaryCalls++
		}
		called = v
		return nil
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if primaryCalls != 0 {
		t.Error("tripped primary was still invoked")
	}
	if called != "coqui" {
		t.Fatalf("called = %q, want coqui", called)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup(16000, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("fallback", 22050)

	t.Run("primary result", func(t *testing.T) {
		rate, err := ExecuteWithResult(fg, func(v int) (int, error) {
			return v, nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
		if rate != 16000 {
			t.Fatalf("rate = %d, want 16000", rate)
		}
	})

	t.Run("failover result", func(t *testing.T) {
		rate, err := ExecuteWithResult(fg, func(v int) (int, error) {
			if v == 16000 {
				return 0, errBackend
			}
			return v, nil
		})
		if err != nil {
			t.Fatalf("ExecuteWithResult: %v", err)
		}
		if rate != 22050 {
			t.Fatalf("rate = %d, want 22050", rate)
		}
	})
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	t.Parallel()

	fg := NewFallbackGroup("only", "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
