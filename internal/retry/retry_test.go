package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoStopsAfterAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), Policy{Attempts: 3, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoSucceedsAfterFailure(t *testing.T) {
	calls := 0
	var retried []int
	err := Do(context.Background(), Policy{
		Attempts:  3,
		BaseDelay: time.Millisecond,
		OnError:   func(attempt int, err error) { retried = append(retried, attempt) },
	}, func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 || len(retried) != 1 || retried[0] != 1 {
		t.Fatalf("calls=%d retried=%v", calls, retried)
	}
}

func TestDoPermanent(t *testing.T) {
	calls := 0
	fatal := errors.New("fatal")
	err := Do(context.Background(), Policy{Attempts: 5, BaseDelay: time.Millisecond}, func(context.Context) error {
		calls++
		return Permanent(fatal)
	})
	if err != fatal {
		t.Fatalf("expected unwrapped fatal error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Policy{Attempts: 3, BaseDelay: time.Hour}, func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
