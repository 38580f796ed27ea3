package ai

import (
	"context"
	"errors"
	"time"

	"book-rag-backend/internal/logger"
)

// ErrNotRetryable marks failures that must never be retried, such as an
// embedding dimension mismatch against the configured vector size. Wrap it
// with %w so retry loops can detect it via errors.Is.
var ErrNotRetryable = errors.New("not retryable")

// retryPolicy bounds transient-failure retries. The delay starts at baseDelay
// and doubles after every failed attempt.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

// do runs fn up to maxAttempts times and returns the last error. Failures
// wrapping ErrNotRetryable abort immediately. The terminal action (propagate
// vs. degrade to a fallback value) is the caller's policy, not do's.
func (p retryPolicy) do(ctx context.Context, op string, fn func() error) error {
	delay := p.baseDelay
	var err error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrNotRetryable) {
			return err
		}
		if attempt == p.maxAttempts {
			break
		}

		logger.Warn("transient failure, retrying",
			"op", op,
			"attempt", attempt,
			"max_attempts", p.maxAttempts,
			"delay", delay.String(),
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	logger.Error("operation failed after retries", "op", op, "attempts", p.maxAttempts, "error", err)
	return err
}
