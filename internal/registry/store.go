// Package registry persists one durable record per conversation so that
// session context survives idle reaps, forced restarts, and process
// restarts.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jschaf/switchboard/internal/tier"
)

// ErrNotFound is returned when no record exists for a conversation.
var ErrNotFound = errors.New("session record not found")

// IsNotFound reports whether err means the record is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// SessionRecord is the persisted state of one conversation. It outlives
// any in-memory session created for the conversation and is deleted only
// by an explicit administrative reset.
type SessionRecord struct {
	ConversationID string
	DisplayName    string
	Tier           tier.Tier
	// ResumeToken restores prior conversational context on the next
	// backend start. Written only on a clean stop or a periodic
	// checkpoint; it always reflects the backend's own notion of
	// resumable state.
	ResumeToken        string
	CreatedAt          time.Time
	LastActivityAt     time.Time
	ExemptFromIdleReap bool
}

// Store is the durable session registry. Every operation is atomic per
// record; no cross-record transactions exist because records are
// independent.
type Store interface {
	// Get returns the record for a conversation, or ErrNotFound.
	Get(ctx context.Context, conversationID string) (*SessionRecord, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, record *SessionRecord) error

	// Touch updates the record's last-activity timestamp.
	Touch(ctx context.Context, conversationID string, at time.Time) error

	// SetResumeToken updates the record's resume token.
	SetResumeToken(ctx context.Context, conversationID, token string) error

	// List returns all records ordered by most recent activity.
	List(ctx context.Context) ([]*SessionRecord, error)

	// Delete removes a record. Administrative reset only.
	Delete(ctx context.Context, conversationID string) error

	// Close releases the underlying storage.
	Close() error
}
