package registry

import (
	"context"
	"log/slog"
	"time"
)

const (
	// DefaultRetryAttempts is how many times a registry operation is
	// attempted before the error is surfaced.
	DefaultRetryAttempts = 3
	// DefaultRetryBackoff is the initial delay between attempts; it
	// doubles on each retry.
	DefaultRetryBackoff = 50 * time.Millisecond
)

// RetryingStore decorates a Store with bounded retry and backoff. A
// persistence failure is a degraded-durability condition, never a reason
// to drop live traffic, so callers that still see an error after the
// retries are expected to log and continue in memory.
type RetryingStore struct {
	inner    Store
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// RetryOption configures a RetryingStore.
type RetryOption func(*RetryingStore)

// WithRetryAttempts overrides the attempt count.
func WithRetryAttempts(attempts int) RetryOption {
	return func(r *RetryingStore) {
		if attempts > 0 {
			r.attempts = attempts
		}
	}
}

// WithRetryBackoff overrides the initial backoff.
func WithRetryBackoff(backoff time.Duration) RetryOption {
	return func(r *RetryingStore) {
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

// WithRetryLogger sets a custom logger.
func WithRetryLogger(logger *slog.Logger) RetryOption {
	return func(r *RetryingStore) {
		r.logger = logger
	}
}

// NewRetryingStore wraps inner with retry behavior.
func NewRetryingStore(inner Store, opts ...RetryOption) *RetryingStore {
	r := &RetryingStore{
		inner:    inner,
		attempts: DefaultRetryAttempts,
		backoff:  DefaultRetryBackoff,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// retry runs op until it succeeds, fails with ErrNotFound, or exhausts
// the attempt budget. ErrNotFound is a definitive answer, not an IO
// failure, so it is never retried.
func (r *RetryingStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := r.backoff

	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		err = op()
		if err == nil || IsNotFound(err) {
			return err
		}

		r.logger.Warn("registry operation failed",
			"operation", name,
			"attempt", attempt,
			"error", err)

		if attempt == r.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// Get returns the record for a conversation, or ErrNotFound.
func (r *RetryingStore) Get(ctx context.Context, conversationID string) (*SessionRecord, error) {
	var record *SessionRecord
	err := r.retry(ctx, "get", func() error {
		var opErr error
		record, opErr = r.inner.Get(ctx, conversationID)
		return opErr
	})
	return record, err
}

// Put inserts or replaces a record.
func (r *RetryingStore) Put(ctx context.Context, record *SessionRecord) error {
	return r.retry(ctx, "put", func() error {
		return r.inner.Put(ctx, record)
	})
}

// Touch updates the record's last-activity timestamp.
func (r *RetryingStore) Touch(ctx context.Context, conversationID string, at time.Time) error {
	return r.retry(ctx, "touch", func() error {
		return r.inner.Touch(ctx, conversationID, at)
	})
}

// SetResumeToken updates the record's resume token.
func (r *RetryingStore) SetResumeToken(ctx context.Context, conversationID, token string) error {
	return r.retry(ctx, "set_resume_token", func() error {
		return r.inner.SetResumeToken(ctx, conversationID, token)
	})
}

// List returns all records ordered by most recent activity.
func (r *RetryingStore) List(ctx context.Context) ([]*SessionRecord, error) {
	var records []*SessionRecord
	err := r.retry(ctx, "list", func() error {
		var opErr error
		records, opErr = r.inner.List(ctx)
		return opErr
	})
	return records, err
}

// Delete removes a record.
func (r *RetryingStore) Delete(ctx context.Context, conversationID string) error {
	return r.retry(ctx, "delete", func() error {
		return r.inner.Delete(ctx, conversationID)
	})
}

// Close closes the underlying store.
func (r *RetryingStore) Close() error {
	return r.inner.Close()
}
