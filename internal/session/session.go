// Package session owns the per-conversation run loop: an exclusively
// owned inbound queue drained into an opaque agent backend, with an
// explicit lifecycle state machine supervised by the pool.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jschaf/switchboard/internal/registry"
	"github.com/jschaf/switchboard/internal/tier"
)

const (
	// DefaultQueueWarnDepth is the queue depth that triggers a logged
	// warning. Enqueue never blocks the ingress path; the warning is the
	// only back-pressure signal.
	DefaultQueueWarnDepth = 100

	// DefaultCheckpointInterval is how often a live session persists its
	// resume token.
	DefaultCheckpointInterval = 5 * time.Minute

	// DefaultStartRetryBackoff is the pause before re-attempting a
	// failed backend start.
	DefaultStartRetryBackoff = 5 * time.Second
)

// Config controls a session's run loop.
type Config struct {
	// SerializeTurns forwards one message per completed turn instead of
	// eagerly. Set it when the backend cannot accept input mid-turn.
	SerializeTurns bool

	QueueWarnDepth     int
	CheckpointInterval time.Duration
	StartRetryBackoff  time.Duration

	Logger *slog.Logger
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.QueueWarnDepth <= 0 {
		c.QueueWarnDepth = DefaultQueueWarnDepth
	}
	if c.CheckpointInterval <= 0 {
		c.CheckpointInterval = DefaultCheckpointInterval
	}
	if c.StartRetryBackoff <= 0 {
		c.StartRetryBackoff = DefaultStartRetryBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session is one live conversation. The queue and backend handle are
// owned exclusively by the session's own run loop; no cross-session
// locking exists.
type Session struct {
	conversationID string
	displayName    string
	tier           tier.Tier
	exemptFromReap bool

	backend Backend
	store   registry.Store
	cfg     Config
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// notify wakes the run loop after an enqueue; capacity one because a
	// single pending wakeup is enough to drain any backlog.
	notify chan struct{}
	// turnDone paces the run loop in serialized mode.
	turnDone chan struct{}

	mu           sync.Mutex
	state        State
	queue        []Message
	errorCount   int
	lastActivity time.Time
	resumeToken  string
	handle       Handle
}

// New creates a session for the given record. The session goroutines do
// not run until Start is called.
func New(ctx context.Context, record *registry.SessionRecord, backend Backend, store registry.Store, cfg Config) *Session {
	cfg = cfg.withDefaults()
	sessionCtx, cancel := context.WithCancel(ctx)

	return &Session{
		conversationID: record.ConversationID,
		displayName:    record.DisplayName,
		tier:           record.Tier,
		exemptFromReap: record.ExemptFromIdleReap,
		backend:        backend,
		store:          store,
		cfg:            cfg,
		logger: cfg.Logger.With(
			slog.String("component", "session"),
			slog.String("conversation", record.ConversationID),
		),
		ctx:          sessionCtx,
		cancel:       cancel,
		done:         make(chan struct{}),
		notify:       make(chan struct{}, 1),
		turnDone:     make(chan struct{}, 1),
		state:        StateUninitialized,
		lastActivity: time.Now(),
		resumeToken:  record.ResumeToken,
	}
}

// Start launches the run loop and the checkpoint loop.
func (s *Session) Start() {
	go s.run()
	go s.checkpointLoop()
}

// Enqueue appends a message to the inbound queue. It never blocks and is
// never rejected by an in-progress turn. ErrTerminated is the only
// failure; callers then recreate the session through the pool.
func (s *Session) Enqueue(msg Message) error {
	s.mu.Lock()
	if s.state == StateTerminated || s.state == StateIdlePendingKill {
		s.mu.Unlock()
		return ErrTerminated
	}
	s.queue = append(s.queue, msg)
	depth := len(s.queue)
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if depth >= s.cfg.QueueWarnDepth {
		s.logger.Warn("inbound queue depth over threshold",
			"depth", depth,
			"threshold", s.cfg.QueueWarnDepth)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// run drains the queue into the backend, preserving enqueue order. This
// is the only place the session blocks.
func (s *Session) run() {
	defer close(s.done)

	for {
		msg, ok := s.next()
		if !ok {
			return
		}

		if err := s.ensureStarted(); err != nil {
			// Put the message back at the head so ordering survives the
			// retry, then back off before the next start attempt.
			s.requeueFront(msg)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(s.cfg.StartRetryBackoff):
			}
			continue
		}

		s.touchRecord()

		if err := s.forward(msg); err != nil {
			continue
		}

		if s.cfg.SerializeTurns {
			select {
			case <-s.ctx.Done():
				return
			case <-s.turnDone:
			}
		}
	}
}

// next blocks until a message is queued or the session is terminated.
func (s *Session) next() (Message, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return msg, true
		}
		s.mu.Unlock()

		select {
		case <-s.ctx.Done():
			return Message{}, false
		case <-s.notify:
		}
	}
}

// requeueFront restores a message to the head of the queue.
func (s *Session) requeueFront(msg Message) {
	s.mu.Lock()
	s.queue = append([]Message{msg}, s.queue...)
	s.mu.Unlock()
}

// ensureStarted starts the backend if the session has no live handle,
// passing the persisted resume token so prior context is restored.
func (s *Session) ensureStarted() error {
	s.mu.Lock()
	if s.handle != nil {
		s.mu.Unlock()
		return nil
	}
	s.transitionLocked(StateStarting)
	token := s.resumeToken
	s.mu.Unlock()

	handle, err := s.backend.Start(s.ctx, token)
	if err != nil {
		s.recordFailure(fmt.Errorf("backend start failed: %w", err))
		return err
	}

	s.mu.Lock()
	s.handle = handle
	s.transitionLocked(StateRunning)
	s.mu.Unlock()

	s.logger.Info("backend started", "resumed", token != "")

	go s.consumeEvents(handle)
	return nil
}

// forward hands one message to the backend in enqueue order.
func (s *Session) forward(msg Message) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return ErrTerminated
	}

	if err := handle.Send(s.ctx, msg); err != nil {
		s.recordFailure(fmt.Errorf("backend send failed: %w", err))
		return err
	}
	return nil
}

// consumeEvents tracks asynchronous turn results for one handle. A closed
// event stream means the backend connection was lost; the handle is
// dropped so the next message triggers a lazy restart.
func (s *Session) consumeEvents(handle Handle) {
	for {
		select {
		case <-s.ctx.Done():
			return

		case event, ok := <-handle.Events():
			if !ok {
				s.mu.Lock()
				if s.handle == handle {
					s.handle = nil
				}
				s.mu.Unlock()
				s.recordFailure(&TransientError{Message: "backend connection lost"})
				s.notifyTurnDone()
				return
			}

			if event.Err != nil {
				s.recordFailure(event.Err)
			} else {
				s.recordSuccess()
			}
			s.notifyTurnDone()
		}
	}
}

// notifyTurnDone unblocks a serialized run loop without ever blocking the
// event consumer.
func (s *Session) notifyTurnDone() {
	select {
	case s.turnDone <- struct{}{}:
	default:
	}
}

// recordSuccess resets the consecutive error count and recovers a
// degraded session.
func (s *Session) recordSuccess() {
	s.mu.Lock()
	s.errorCount = 0
	if s.state == StateDegraded {
		s.transitionLocked(StateRunning)
	}
	s.mu.Unlock()
}

// recordFailure increments the consecutive error count and degrades the
// session. A fatal backend error terminates immediately, regardless of
// the health sweep threshold.
func (s *Session) recordFailure(err error) {
	fatal := IsFatal(err)

	s.mu.Lock()
	s.errorCount++
	count := s.errorCount
	if s.state != StateTerminated {
		if s.state != StateDegraded {
			s.transitionLocked(StateDegraded)
		}
		if fatal {
			s.transitionLocked(StateTerminated)
		}
	}
	s.mu.Unlock()

	if fatal {
		s.logger.Error("fatal backend error, terminating session", "error", err)
		s.cancel()
		return
	}
	s.logger.Warn("backend turn failed",
		"consecutive_errors", count,
		"error", err)
}

// transitionLocked applies a state change if the machine allows it.
// Callers hold s.mu.
func (s *Session) transitionLocked(to State) {
	if !CanTransition(s.state, to) {
		s.logger.Warn("invalid state transition ignored",
			"from", string(s.state),
			"to", string(to))
		return
	}
	s.state = to
}

// touchRecord persists last-activity. Persistence failures degrade
// durability only; they never affect live traffic. A missing record means
// an earlier registry outage swallowed the first-contact write, so it is
// restored wholesale.
func (s *Session) touchRecord() {
	err := s.store.Touch(s.ctx, s.conversationID, time.Now())
	if registry.IsNotFound(err) {
		s.mu.Lock()
		token := s.resumeToken
		s.mu.Unlock()
		err = s.persistRecord(s.ctx, token)
	}
	if err != nil && s.ctx.Err() == nil {
		s.logger.Warn("session activity not persisted, durability degraded", "error", err)
	}
}

// persistRecord writes a full record, restoring one lost to a registry
// outage or an administrative reset.
func (s *Session) persistRecord(ctx context.Context, token string) error {
	now := time.Now()
	return s.store.Put(ctx, &registry.SessionRecord{
		ConversationID:     s.conversationID,
		DisplayName:        s.displayName,
		Tier:               s.tier,
		ResumeToken:        token,
		CreatedAt:          now,
		LastActivityAt:     now,
		ExemptFromIdleReap: s.exemptFromReap,
	})
}

// checkpointLoop periodically persists the backend's resume token.
func (s *Session) checkpointLoop() {
	ticker := time.NewTicker(s.cfg.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_ = s.Checkpoint(s.ctx)
		}
	}
}

// Checkpoint persists the backend's current resume token. It is a no-op
// when no handle is live or the backend has nothing resumable yet.
func (s *Session) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	handle := s.handle
	s.mu.Unlock()
	if handle == nil {
		return nil
	}

	token := handle.ResumeToken()
	if token == "" {
		return nil
	}

	s.mu.Lock()
	s.resumeToken = token
	s.mu.Unlock()

	err := s.store.SetResumeToken(ctx, s.conversationID, token)
	if registry.IsNotFound(err) {
		err = s.persistRecord(ctx, token)
	}
	if err != nil {
		s.logger.Warn("resume token not persisted, durability degraded", "error", err)
		return err
	}
	return nil
}

// Reap performs a clean idle stop: the final resume token is persisted,
// then the session is terminated. The backend handle is abandoned, never
// joined; the next inbound message recreates the session with the
// persisted token, restoring continuity transparently.
func (s *Session) Reap(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StateIdlePendingKill)
	s.mu.Unlock()

	_ = s.Checkpoint(ctx)

	s.mu.Lock()
	s.transitionLocked(StateTerminated)
	s.mu.Unlock()

	s.cancel()
	s.logger.Info("session idle reaped")
}

// ForceTerminate abandons the session without a checkpoint: the handle
// and run loop are dropped without waiting for in-flight backend work.
// The persisted record survives for the next lazy recreation.
func (s *Session) ForceTerminate(reason string) {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.transitionLocked(StateTerminated)
	s.mu.Unlock()

	s.cancel()
	s.logger.Info("session force terminated", "reason", reason)
}

// ConversationID returns the session's conversation key.
func (s *Session) ConversationID() string {
	return s.conversationID
}

// Tier returns the trust tier recorded at session creation.
func (s *Session) Tier() tier.Tier {
	return s.tier
}

// ExemptFromIdleReap reports whether idle sweeps must skip this session.
func (s *Session) ExemptFromIdleReap() bool {
	return s.exemptFromReap
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ErrorCount returns the consecutive backend failures since the last
// success.
func (s *Session) ErrorCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorCount
}

// LastActivity returns the time of the most recent enqueue.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// QueueDepth returns the number of pending messages.
func (s *Session) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Done is closed when the run loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
