package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jschaf/switchboard/internal/tier"
)

// flakyStore wraps a MemoryStore and fails the first failures calls of
// every operation.
type flakyStore struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("disk io error")
	}
	return nil
}

func (s *flakyStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *flakyStore) Get(ctx context.Context, conversationID string) (*SessionRecord, error) {
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, conversationID)
}

func (s *flakyStore) Put(ctx context.Context, record *SessionRecord) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.MemoryStore.Put(ctx, record)
}

func (s *flakyStore) SetResumeToken(ctx context.Context, conversationID, token string) error {
	if err := s.fail(); err != nil {
		return err
	}
	return s.MemoryStore.SetResumeToken(ctx, conversationID, token)
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore(), failures: failures}
}

func TestRetryingStoreRecoversFromTransientFailures(t *testing.T) {
	inner := newFlakyStore(2)
	store := NewRetryingStore(inner, WithRetryBackoff(time.Millisecond))

	now := time.Now()
	err := store.Put(context.Background(), &SessionRecord{
		ConversationID: "conv-1",
		Tier:           tier.Family,
		CreatedAt:      now,
		LastActivityAt: now,
	})
	if err != nil {
		t.Fatalf("put should succeed after retries: %v", err)
	}
	if got := inner.callCount(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestRetryingStoreExhaustsAttempts(t *testing.T) {
	inner := newFlakyStore(100)
	store := NewRetryingStore(inner,
		WithRetryAttempts(2),
		WithRetryBackoff(time.Millisecond))

	err := store.SetResumeToken(context.Background(), "conv-1", "tok")
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if got := inner.callCount(); got != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", got)
	}
}

func TestRetryingStoreDoesNotRetryNotFound(t *testing.T) {
	inner := newFlakyStore(0)
	store := NewRetryingStore(inner, WithRetryBackoff(time.Millisecond))

	_, err := store.Get(context.Background(), "conv-none")
	if !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := inner.callCount(); got != 1 {
		t.Errorf("a definitive miss must not be retried, got %d attempts", got)
	}
}

func TestRetryingStoreHonorsContextCancellation(t *testing.T) {
	inner := newFlakyStore(100)
	store := NewRetryingStore(inner,
		WithRetryAttempts(10),
		WithRetryBackoff(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- store.Put(ctx, &SessionRecord{ConversationID: "conv-1", Tier: tier.Family})
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not observe cancellation")
	}
}
