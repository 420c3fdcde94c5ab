package channel

import "testing"

func TestNewDirect(t *testing.T) {
	msg := NewDirect("+15550100", "Alice", "hello", ChannelSecure)

	if msg.ID == "" {
		t.Error("direct message should get a generated id")
	}
	if msg.IsGroup {
		t.Error("direct message must not be a group")
	}
	if msg.ConversationID != "+15550100" {
		t.Errorf("direct conversation keys by sender, got %q", msg.ConversationID)
	}
	if msg.ReceivedAt.IsZero() {
		t.Error("received timestamp should be set")
	}
}

func TestNewGroup(t *testing.T) {
	participants := []string{"+15550100", "+15550200"}
	msg := NewGroup("group-1", "+15550100", "Alice", participants, "hi all", ChannelDesktop)

	if !msg.IsGroup {
		t.Error("group message must be a group")
	}
	if msg.ConversationID != "group-1" {
		t.Errorf("group conversation keys by group id, got %q", msg.ConversationID)
	}
	if len(msg.Participants) != 2 {
		t.Errorf("expected 2 participants, got %d", len(msg.Participants))
	}
}

func TestConversationKey(t *testing.T) {
	tests := []struct {
		name string
		msg  NormalizedMessage
		want string
	}{
		{"group id wins", NormalizedMessage{SenderID: "+1555", ConversationID: "group-1"}, "group-1"},
		{"sender fallback", NormalizedMessage{SenderID: "+1555"}, "+1555"},
	}

	for _, tt := range tests {
		if got := tt.msg.ConversationKey(); got != tt.want {
			t.Errorf("%s: ConversationKey() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
