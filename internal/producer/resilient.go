package producer

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/steveyegge/issuelens/internal/types"
)

// DefaultRetryMaxElapsed bounds retries of transient remote failures.
const DefaultRetryMaxElapsed = 30 * time.Second

// TransientError marks a producer failure as worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so resilient wrappers retry it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a temporary remote failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"service unavailable",
		"too many requests",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

func newRetryBackoff(maxElapsed time.Duration) backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	if maxElapsed <= 0 {
		maxElapsed = DefaultRetryMaxElapsed
	}
	bo.MaxElapsedTime = maxElapsed
	return bo
}

// withRetry executes op, retrying transient errors with exponential backoff.
func withRetry(ctx context.Context, maxElapsed time.Duration, logger *slog.Logger, what, key string, op func() error) error {
	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err != nil && IsTransient(err) {
			logger.Debug("retrying transient failure", "op", what, "resource", key, "attempt", attempt, "error", err)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(newRetryBackoff(maxElapsed), ctx))
}

// await runs fn once per key across concurrent callers and waits for the
// shared result unless ctx ends first.
func await[T any](ctx context.Context, g *singleflight.Group, key string, fn func() (T, error)) (T, bool, error) {
	ch := g.DoChan(key, func() (interface{}, error) {
		return fn()
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Shared, res.Err
	}
}

// ResilientExclusions retries transient exclusion-query failures and
// coalesces concurrent queries for the same resource.
type ResilientExclusions struct {
	Inner      ExclusionQuerier
	MaxElapsed time.Duration
	Logger     *slog.Logger

	group singleflight.Group
}

func (r *ResilientExclusions) QueryExclusions(ctx context.Context, key string) ([]*types.Issue, error) {
	logger := orDefault(r.Logger)
	issues, shared, err := await(ctx, &r.group, key, func() ([]*types.Issue, error) {
		var out []*types.Issue
		err := withRetry(ctx, r.MaxElapsed, logger, "query-exclusions", key, func() error {
			var qerr error
			out, qerr = r.Inner.QueryExclusions(ctx, key)
			return qerr
		})
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if shared {
		return cloneIssues(issues), nil
	}
	return issues, nil
}

// ResilientReference retries transient reference fetch failures and coalesces
// concurrent fetches for the same resource.
type ResilientReference struct {
	Inner      ReferenceSource
	MaxElapsed time.Duration
	Logger     *slog.Logger

	group singleflight.Group
}

func (r *ResilientReference) FetchReferenceSource(ctx context.Context, key string, force bool) (string, error) {
	flightKey := key
	if force {
		flightKey = "force\x00" + key
	}
	logger := orDefault(r.Logger)
	text, _, err := await(ctx, &r.group, flightKey, func() (string, error) {
		var out string
		err := withRetry(ctx, r.MaxElapsed, logger, "fetch-reference", key, func() error {
			var ferr error
			out, ferr = r.Inner.FetchReferenceSource(ctx, key, force)
			return ferr
		})
		return out, err
	})
	return text, err
}

// LastModified forwards to the wrapped source when it can probe; otherwise
// the modification time is unknown.
func (r *ResilientReference) LastModified(ctx context.Context, key string) (time.Time, error) {
	prober, ok := r.Inner.(ModificationProber)
	if !ok {
		return time.Time{}, nil
	}
	var t time.Time
	err := withRetry(ctx, r.MaxElapsed, orDefault(r.Logger), "last-modified", key, func() error {
		var perr error
		t, perr = prober.LastModified(ctx, key)
		return perr
	})
	return t, err
}

func cloneIssues(issues []*types.Issue) []*types.Issue {
	if issues == nil {
		return nil
	}
	out := make([]*types.Issue, len(issues))
	for i, issue := range issues {
		out[i] = issue.Clone()
	}
	return out
}

func orDefault(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
