package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"budgetflow/internal/core"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialDelay: time.Millisecond, BackoffFactor: 1.0}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return core.MarkTransient(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnNonTransient(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-transient error must not be retried, got %d calls", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(4).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return core.MarkTransient(errors.New("still down"))
	})
	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if !core.IsTransient(err) {
		t.Fatalf("exhausted error should stay transient: %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestDoHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Policy{MaxAttempts: 10, InitialDelay: time.Hour, BackoffFactor: 2.0}.
		Do(ctx, nil, "op", func(context.Context) error {
			calls++
			cancel()
			return core.MarkTransient(errors.New("down"))
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestDoTreatsZeroAttemptsAsOne(t *testing.T) {
	calls := 0
	_ = Policy{MaxAttempts: 0, InitialDelay: time.Millisecond, BackoffFactor: 2.0}.
		Do(context.Background(), nil, "op", func(context.Context) error {
			calls++
			return core.MarkTransient(errors.New("down"))
		})
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}
