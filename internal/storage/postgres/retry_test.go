package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"stakeVault/internal/storage"
)

func TestRetryPolicyEventuallySucceeds(t *testing.T) {
	calls := 0
	policy := newRetryPolicy(Options{MaxRetries: 3, RetryBackoff: time.Millisecond})
	err := policy.do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestRetryPolicyGivesUp(t *testing.T) {
	want := errors.New("down")
	calls := 0
	policy := newRetryPolicy(Options{MaxRetries: 2, RetryBackoff: time.Millisecond})
	err := policy.do(context.Background(), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if calls != 3 {
		t.Fatalf("calls mismatch: %d", calls)
	}
}

func TestRetryPolicyHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := newRetryPolicy(Options{MaxRetries: 5, RetryBackoff: time.Hour})
	err := policy.do(ctx, func(context.Context) error {
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestDuplicateAuditSeqFailsWithoutRetry(t *testing.T) {
	calls := 0
	policy := newRetryPolicy(Options{MaxRetries: 5, RetryBackoff: time.Millisecond})
	err := policy.do(context.Background(), func(context.Context) error {
		calls++
		return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint \"audit_records_pkey\""}
	})
	if !errors.Is(err, storage.ErrAuditConflict) {
		t.Fatalf("expected audit conflict, got %v", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatalf("expected pg error to stay wrapped, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("conflict retried: %d calls", calls)
	}
}

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&pgconn.PgError{Code: "40001"}, true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "08006"}, true},
		{&pgconn.PgError{Code: "53300"}, true},
		{&pgconn.PgError{Code: "42P01"}, false},
		{&pgconn.PgError{Code: "22003"}, false},
		{context.DeadlineExceeded, false},
		{errors.New("dial tcp: connection refused"), true},
	}
	for _, tc := range cases {
		if got := retryable(classify(tc.err)); got != tc.want {
			t.Fatalf("retryable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestNumericRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 1 << 63, ^uint64(0)} {
		got, err := parseNumeric(numeric(v))
		if err != nil {
			t.Fatalf("parse %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("round-trip mismatch: %d != %d", got, v)
		}
	}
}
