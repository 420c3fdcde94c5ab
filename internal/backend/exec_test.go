package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jschaf/switchboard/internal/session"
	"github.com/jschaf/switchboard/internal/tier"
)

// echoScript acknowledges every inbound message frame with a successful
// turn, announces a resume token on startup, and exits when stdin closes.
const echoScript = `
echo '{"type":"resume_token","token":"tok-live"}'
while IFS= read -r line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  echo "{\"type\":\"turn\",\"message_id\":\"$id\"}"
done
`

func newExecBackend(t *testing.T, script string) *Exec {
	t.Helper()
	backend, err := NewExec(ExecConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", script},
	})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return backend
}

func receiveEvent(t *testing.T, events <-chan session.TurnEvent) session.TurnEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return event
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for turn event")
	}
	return session.TurnEvent{}
}

func TestExecRequiresCommand(t *testing.T) {
	if _, err := NewExec(ExecConfig{}); err == nil {
		t.Error("expected error for empty command")
	}
}

func TestExecRoundTrip(t *testing.T) {
	backend := newExecBackend(t, echoScript)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := backend.Start(ctx, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	msg := session.Message{
		ID:     "msg-1",
		Sender: "+15550100",
		Body:   "hello",
		Tier:   tier.Family,
	}
	if err := handle.Send(ctx, msg); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	event := receiveEvent(t, handle.Events())
	if event.MessageID != "msg-1" {
		t.Errorf("expected echo of msg-1, got %q", event.MessageID)
	}
	if event.Err != nil {
		t.Errorf("expected successful turn, got %v", event.Err)
	}
}

func TestExecCapturesResumeToken(t *testing.T) {
	backend := newExecBackend(t, echoScript)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := backend.Start(ctx, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if handle.ResumeToken() == "tok-live" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("resume token never captured, got %q", handle.ResumeToken())
}

func TestExecPassesResumeFlag(t *testing.T) {
	// The script reports its own arguments back as the resume token.
	script := `echo "{\"type\":\"resume_token\",\"token\":\"$1 $2\"}"; cat >/dev/null`
	backend, err := NewExec(ExecConfig{
		Command: "/bin/sh",
		Args:    []string{"-c", script, "sh"},
	})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := backend.Start(ctx, "tok-old")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if handle.ResumeToken() == "--resume tok-old" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("resume flag not passed, token %q", handle.ResumeToken())
}

func TestExecTurnErrors(t *testing.T) {
	script := `
echo '{"type":"turn","message_id":"m1","error":"model overloaded"}'
echo '{"type":"turn","message_id":"m2","error":"context window exhausted","fatal":true}'
cat >/dev/null
`
	backend := newExecBackend(t, script)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := backend.Start(ctx, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	first := receiveEvent(t, handle.Events())
	if first.Err == nil || session.IsFatal(first.Err) {
		t.Errorf("expected transient error, got %v", first.Err)
	}

	second := receiveEvent(t, handle.Events())
	if !session.IsFatal(second.Err) {
		t.Errorf("expected fatal error, got %v", second.Err)
	}

	var fatal *session.FatalError
	if !errors.As(second.Err, &fatal) || fatal.Message != "context window exhausted" {
		t.Errorf("fatal error message lost: %v", second.Err)
	}
}

func TestExecEventsCloseWhenProcessExits(t *testing.T) {
	backend := newExecBackend(t, `exit 0`)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := backend.Start(ctx, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case _, ok := <-handle.Events():
		if ok {
			t.Error("expected closed channel, got event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed after process exit")
	}
}

func TestExecIgnoresMalformedOutput(t *testing.T) {
	script := `
echo 'garbage not json'
echo '{"type":"mystery"}'
echo '{"type":"turn","message_id":"m1"}'
cat >/dev/null
`
	backend := newExecBackend(t, script)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handle, err := backend.Start(ctx, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	event := receiveEvent(t, handle.Events())
	if event.MessageID != "m1" {
		t.Errorf("expected the valid turn frame, got %+v", event)
	}
}
