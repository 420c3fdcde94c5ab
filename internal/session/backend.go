package session

import (
	"context"
	"time"

	"github.com/jschaf/switchboard/internal/tier"
)

// Message is one inbound message bound for the backend, carrying the
// sender attribution used for permission-scoped prompting downstream. In
// group conversations the tier can differ message to message.
type Message struct {
	ID            string
	Sender        string
	DisplayName   string
	Body          string
	Tier          tier.Tier
	Profile       tier.Profile
	SourceChannel string
	ReceivedAt    time.Time
}

// Backend starts opaque long-lived agent conversations. The core never
// interprets the backend's protocol; it only starts, feeds, and
// supervises handles.
type Backend interface {
	// Start launches or resumes a backend conversation. An empty resume
	// token starts fresh. The returned handle is exclusively owned by a
	// single session and must never be shared.
	Start(ctx context.Context, resumeToken string) (Handle, error)
}

// Handle is a running backend conversation.
type Handle interface {
	// Send forwards one message to the backend. Fire-and-forget:
	// responses reach the user through the backend's own delivery path,
	// and turn results are reported on Events. Backends that accept
	// input mid-turn incorporate it into their current reasoning.
	Send(ctx context.Context, msg Message) error

	// Events reports turn completions and failures, one event per
	// forwarded message. The channel closes when the backend connection
	// is lost.
	Events() <-chan TurnEvent

	// ResumeToken returns the backend's current notion of resumable
	// state, or empty if none exists yet.
	ResumeToken() string
}

// TurnEvent is the asynchronous result of one forwarded message.
type TurnEvent struct {
	MessageID string
	Err       error
}
