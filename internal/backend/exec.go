// Package backend adapts an external agent process into the session
// backend contract. Each conversation gets its own long-lived process
// speaking newline-delimited JSON on stdio; the core never interprets the
// agent's reasoning, only its turn results and resume tokens.
package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/jschaf/switchboard/internal/session"
)

const (
	// readBufferInitial is the initial scanner buffer for agent output.
	readBufferInitial = 64 * 1024
	// readBufferMax bounds a single output line.
	readBufferMax = 10 * 1024 * 1024
	// eventDepth buffers turn events between the reader and the session.
	eventDepth = 16
)

// ExecConfig describes how to launch the agent process.
type ExecConfig struct {
	// Command is the agent executable path.
	Command string
	// Args are passed on every start.
	Args []string
	// ResumeFlag is appended with the resume token when one exists.
	ResumeFlag string
	Logger     *slog.Logger
}

// Exec launches one agent process per session.
type Exec struct {
	cfg    ExecConfig
	logger *slog.Logger
}

// NewExec creates an exec-based backend.
func NewExec(cfg ExecConfig) (*Exec, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("backend command cannot be empty")
	}
	if cfg.ResumeFlag == "" {
		cfg.ResumeFlag = "--resume"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Exec{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "backend")),
	}, nil
}

// Start launches the agent process, resuming from the token when one is
// provided. The process lives until ctx is cancelled; termination is an
// abandonment, with the runtime killing the process rather than the
// session joining it.
func (e *Exec) Start(ctx context.Context, resumeToken string) (session.Handle, error) {
	args := append([]string{}, e.cfg.Args...)
	if resumeToken != "" {
		args = append(args, e.cfg.ResumeFlag, resumeToken)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open agent stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start agent process: %w", err)
	}

	handle := &execHandle{
		ctx:    ctx,
		stdin:  stdin,
		events: make(chan session.TurnEvent, eventDepth),
		logger: e.logger,
	}

	go handle.readLoop(stdout)
	go handle.logStderr(stderr)
	// Reap the process once the context kills it; nothing waits on this.
	go func() { _ = cmd.Wait() }()

	e.logger.Debug("agent process started",
		"command", e.cfg.Command,
		"pid", cmd.Process.Pid,
		"resumed", resumeToken != "")
	return handle, nil
}

// execHandle is one running agent process.
type execHandle struct {
	ctx    context.Context
	stdin  io.WriteCloser
	events chan session.TurnEvent
	logger *slog.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	resumeToken string
}

// outboundFrame is one message written to the agent's stdin.
type outboundFrame struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Sender      string `json:"sender"`
	DisplayName string `json:"display_name,omitempty"`
	Body        string `json:"body"`
	Tier        string `json:"tier"`
	Tools       bool   `json:"tools"`
	Admin       bool   `json:"admin"`
	Channel     string `json:"channel,omitempty"`
}

// inboundFrame is one line of agent output.
type inboundFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Fatal     bool   `json:"fatal,omitempty"`
	Token     string `json:"token,omitempty"`
}

// Send writes one message frame. Fire-and-forget: the turn result arrives
// later on Events.
func (h *execHandle) Send(_ context.Context, msg session.Message) error {
	frame := outboundFrame{
		Type:        "message",
		ID:          msg.ID,
		Sender:      msg.Sender,
		DisplayName: msg.DisplayName,
		Body:        msg.Body,
		Tier:        msg.Tier.String(),
		Tools:       msg.Profile.Tools,
		Admin:       msg.Profile.Admin,
		Channel:     msg.SourceChannel,
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal message frame: %w", err)
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	if _, err := fmt.Fprintf(h.stdin, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write to agent: %w", err)
	}
	return nil
}

// Events reports turn results. Closed when the agent's stdout ends.
func (h *execHandle) Events() <-chan session.TurnEvent {
	return h.events
}

// ResumeToken returns the last token the agent announced.
func (h *execHandle) ResumeToken() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resumeToken
}

// readLoop parses agent output into turn events and resume tokens.
func (h *execHandle) readLoop(stdout io.Reader) {
	defer close(h.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, readBufferInitial), readBufferMax)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			h.logger.Warn("discarding malformed agent frame", "error", err)
			continue
		}

		switch frame.Type {
		case "turn":
			event := session.TurnEvent{MessageID: frame.MessageID}
			switch {
			case frame.Fatal:
				event.Err = &session.FatalError{Message: frame.Error}
			case frame.Error != "":
				event.Err = &session.TransientError{Message: frame.Error}
			}

			select {
			case h.events <- event:
			case <-h.ctx.Done():
				return
			}

		case "resume_token":
			h.mu.Lock()
			h.resumeToken = frame.Token
			h.mu.Unlock()

		default:
			h.logger.Debug("ignoring unknown agent frame", "type", frame.Type)
		}
	}

	if err := scanner.Err(); err != nil && h.ctx.Err() == nil {
		h.logger.Warn("agent output stream failed", "error", err)
	}
}

// logStderr forwards agent diagnostics to the log.
func (h *execHandle) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, readBufferInitial), readBufferMax)
	for scanner.Scan() {
		h.logger.Debug("agent stderr", "line", scanner.Text())
	}
}
