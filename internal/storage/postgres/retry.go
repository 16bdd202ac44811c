package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"stakeVault/internal/storage"
)

const (
	defaultRetryBackoff = 100 * time.Millisecond
	maxRetryBackoff     = 10 * time.Second
)

// retryPolicy retries database writes that failed for transient reasons.
// Constraint violations and other statement errors are returned at once.
type retryPolicy struct {
	maxRetries int
	backoff    time.Duration
}

func newRetryPolicy(opts Options) retryPolicy {
	p := retryPolicy{maxRetries: opts.MaxRetries, backoff: opts.RetryBackoff}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.backoff <= 0 {
		p.backoff = defaultRetryBackoff
	}
	return p
}

func (p retryPolicy) do(ctx context.Context, fn func(context.Context) error) error {
	delay := p.backoff
	for attempt := 0; ; attempt++ {
		err := classify(fn(ctx))
		if err == nil {
			return nil
		}
		if attempt >= p.maxRetries || !retryable(err) {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}

// classify maps unique violations to storage.ErrAuditConflict.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", storage.ErrAuditConflict, err)
	}
	return err
}

// retryable reports whether err is worth another attempt: connection loss,
// serialization failures, deadlocks, lock timeouts and server shutdowns.
func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, storage.ErrAuditConflict) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "57P01", "57P02", "57P03":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "53")
	}
	return true
}
