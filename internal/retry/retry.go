package retry

import (
	"context"
	"errors"
	"time"
)

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values below 1 mean 1.
	Attempts int
	// BaseDelay is the wait before the second try; it doubles afterwards.
	BaseDelay time.Duration
	// OnError is called after every failed try that will be retried.
	OnError func(attempt int, err error)
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the context ends, or
// the attempts are used up. The last error is returned.
func Do(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= attempts {
			return err
		}
		if policy.OnError != nil {
			policy.OnError(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
