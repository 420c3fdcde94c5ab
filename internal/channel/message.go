// Package channel defines the normalized envelope that channel adapters
// deliver to the router, and the ingress sources that carry it.
package channel

import (
	"time"

	"github.com/google/uuid"
)

// SourceChannel identifies which adapter produced a message.
type SourceChannel string

const (
	// ChannelDesktop is the desktop messaging application adapter.
	ChannelDesktop SourceChannel = "desktop"
	// ChannelSecure is the secure messenger adapter.
	ChannelSecure SourceChannel = "secure"
)

// Attachment describes a file carried alongside a message body.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type,omitempty"`
	Path     string `json:"path"`
}

// NormalizedMessage is the channel-independent inbound envelope. Adapters
// are responsible for de-duplication and per-channel ordering before
// pushing these to the router.
type NormalizedMessage struct {
	ID             string        `json:"id"`
	SenderID       string        `json:"sender_id"`
	DisplayName    string        `json:"display_name,omitempty"`
	ConversationID string        `json:"conversation_id"`
	IsGroup        bool          `json:"is_group"`
	Participants   []string      `json:"participants,omitempty"`
	Body           string        `json:"body"`
	Attachments    []Attachment  `json:"attachments,omitempty"`
	SourceChannel  SourceChannel `json:"source_channel"`
	ReceivedAt     time.Time     `json:"received_at"`
}

// NewDirect builds an envelope for a direct message. The conversation is
// keyed by the sender identity.
func NewDirect(senderID, displayName, body string, source SourceChannel) NormalizedMessage {
	return NormalizedMessage{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		DisplayName:    displayName,
		ConversationID: senderID,
		Body:           body,
		SourceChannel:  source,
		ReceivedAt:     time.Now(),
	}
}

// NewGroup builds an envelope for a group message keyed by the stable
// group identifier.
func NewGroup(groupID, senderID, displayName string, participants []string, body string, source SourceChannel) NormalizedMessage {
	return NormalizedMessage{
		ID:             uuid.NewString(),
		SenderID:       senderID,
		DisplayName:    displayName,
		ConversationID: groupID,
		IsGroup:        true,
		Participants:   participants,
		Body:           body,
		SourceChannel:  source,
		ReceivedAt:     time.Now(),
	}
}

// ConversationKey returns the routing key: the stable group identifier for
// group conversations, otherwise the sender identity.
func (m NormalizedMessage) ConversationKey() string {
	if m.ConversationID != "" {
		return m.ConversationID
	}
	return m.SenderID
}
