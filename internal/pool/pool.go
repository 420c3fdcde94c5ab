// Package pool supervises the set of live conversation sessions: lazy
// creation, lookup, health and idle sweeps, and forced restarts. The pool
// is the single owner of the live set; no other component holds session
// internals.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jschaf/switchboard/internal/registry"
	"github.com/jschaf/switchboard/internal/session"
	"github.com/jschaf/switchboard/internal/tier"
)

const (
	// DefaultErrorThreshold is the consecutive-failure count at which a
	// health sweep terminates a degraded session.
	DefaultErrorThreshold = 3

	// DefaultIdleTimeout is how long a session may sit without traffic
	// before an idle sweep reclaims it.
	DefaultIdleTimeout = 2 * time.Hour
)

// Config controls pool supervision.
type Config struct {
	ErrorThreshold int
	IdleTimeout    time.Duration
	Session        session.Config
	Logger         *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = DefaultErrorThreshold
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SessionInfo is a read-only snapshot row: the persisted record merged
// with live runtime state for the operational front end.
type SessionInfo struct {
	Record     registry.SessionRecord
	State      session.State
	QueueDepth int
	ErrorCount int
	Live       bool
}

// Pool owns all live sessions. A terminated session and an absent one are
// treated identically: both trigger lazy recreation.
type Pool struct {
	ctx     context.Context
	store   registry.Store
	backend session.Backend
	cfg     Config
	logger  *slog.Logger

	mu   sync.Mutex
	live map[string]*session.Session
}

// New creates a pool. Sessions it creates are children of ctx and stop
// when it is cancelled.
func New(ctx context.Context, store registry.Store, backend session.Backend, cfg Config) *Pool {
	cfg = cfg.withDefaults()
	return &Pool{
		ctx:     ctx,
		store:   store,
		backend: backend,
		cfg:     cfg,
		logger:  cfg.Logger.With(slog.String("component", "pool")),
		live:    make(map[string]*session.Session),
	}
}

// GetOrCreate returns the live session for a conversation, creating (or
// recreating) it when absent or terminated. Idempotent: concurrent calls
// for the same conversation yield the same session. Registry failures
// degrade durability, never availability: the session starts on an
// in-memory record and re-persists it as traffic flows.
func (p *Pool) GetOrCreate(ctx context.Context, conversationID string, senderTier tier.Tier, displayName string) *session.Session {
	p.mu.Lock()
	if existing, ok := p.live[conversationID]; ok && existing.State() != session.StateTerminated {
		p.mu.Unlock()
		return existing
	}
	p.mu.Unlock()

	// Record IO runs outside the pool lock so one conversation's registry
	// latency never stalls ingress for the others.
	record := p.ensureRecord(ctx, conversationID, senderTier, displayName)

	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.live[conversationID]; ok && existing.State() != session.StateTerminated {
		return existing
	}

	created := session.New(p.ctx, record, p.backend, p.store, p.cfg.Session)
	created.Start()
	p.live[conversationID] = created

	p.logger.Info("session created",
		"conversation", conversationID,
		"tier", record.Tier.String(),
		"resumed", record.ResumeToken != "")
	return created
}

// ensureRecord loads the persisted record, creating it on first contact.
// A registry outage yields an in-memory record with no resume token; the
// session restores it once the registry recovers.
func (p *Pool) ensureRecord(ctx context.Context, conversationID string, senderTier tier.Tier, displayName string) *registry.SessionRecord {
	record, err := p.store.Get(ctx, conversationID)
	if err == nil {
		return record
	}

	now := time.Now()
	record = &registry.SessionRecord{
		ConversationID: conversationID,
		DisplayName:    displayName,
		Tier:           senderTier,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	if !registry.IsNotFound(err) {
		p.logger.Warn("session record unavailable, continuing without durable resume token",
			"conversation", conversationID,
			"error", err)
		return record
	}

	if err := p.store.Put(ctx, record); err != nil {
		p.logger.Warn("session record not persisted, durability degraded",
			"conversation", conversationID,
			"error", err)
	}
	return record
}

// Dispatch enqueues a message, transparently recreating the session if it
// loses the race against a sweep. The message is never lost, merely
// delayed by one recreation cycle.
func (p *Pool) Dispatch(ctx context.Context, conversationID string, senderTier tier.Tier, displayName string, msg session.Message) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		live := p.GetOrCreate(ctx, conversationID, senderTier, displayName)

		lastErr = live.Enqueue(msg)
		if lastErr == nil {
			return nil
		}

		// Terminated underneath us, possibly mid-reap. Wait for the old
		// run loop to exit so its final resume-token checkpoint has landed
		// before the replacement reads the record.
		select {
		case <-live.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		p.removeIf(conversationID, live)
	}
	return fmt.Errorf("failed to enqueue after recreation: %w", lastErr)
}

// Exists reports whether a conversation has a live session or a persisted
// record. Used by the group acceptance cascade.
func (p *Pool) Exists(ctx context.Context, conversationID string) bool {
	p.mu.Lock()
	live, ok := p.live[conversationID]
	p.mu.Unlock()
	if ok && live.State() != session.StateTerminated {
		return true
	}

	if _, err := p.store.Get(ctx, conversationID); err == nil {
		return true
	}
	return false
}

// removeIf drops a session from the live set only if it is still the
// registered one, so a recreated session is never evicted by a stale
// reference.
func (p *Pool) removeIf(conversationID string, expected *session.Session) {
	p.mu.Lock()
	if current, ok := p.live[conversationID]; ok && current == expected {
		delete(p.live, conversationID)
	}
	p.mu.Unlock()
}

// HealthSweep terminates degraded sessions at or over the error
// threshold, and clears already-terminated entries. Running and starting
// sessions are never touched. Returns the number of sessions removed.
func (p *Pool) HealthSweep(_ context.Context) int {
	removed := 0
	for conversationID, live := range p.snapshotLive() {
		switch live.State() {
		case session.StateTerminated:
			p.removeIf(conversationID, live)
			removed++

		case session.StateDegraded:
			if live.ErrorCount() >= p.cfg.ErrorThreshold {
				live.ForceTerminate("error threshold reached")
				p.removeIf(conversationID, live)
				removed++
			}

		default:
			// Running, starting, and mid-reap sessions are left alone.
		}
	}

	if removed > 0 {
		p.logger.Info("health sweep removed sessions", "removed", removed)
	}
	return removed
}

// IdleSweep reaps running sessions whose idle time exceeds the timeout,
// persisting the final resume token first. Exempt sessions are skipped.
// Returns the number of sessions reaped.
func (p *Pool) IdleSweep(ctx context.Context) int {
	reaped := 0
	now := time.Now()

	for conversationID, live := range p.snapshotLive() {
		if live.State() != session.StateRunning || live.ExemptFromIdleReap() {
			continue
		}
		if now.Sub(live.LastActivity()) <= p.cfg.IdleTimeout {
			continue
		}

		live.Reap(ctx)
		p.removeIf(conversationID, live)
		reaped++
	}

	if reaped > 0 {
		p.logger.Info("idle sweep reaped sessions", "reaped", reaped)
	}
	return reaped
}

// snapshotLive copies the live map so sweeps iterate without holding the
// pool lock across session calls.
func (p *Pool) snapshotLive() map[string]*session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make(map[string]*session.Session, len(p.live))
	for conversationID, live := range p.live {
		snapshot[conversationID] = live
	}
	return snapshot
}

// ForceRestart terminates a session immediately; the next inbound message
// recreates it. Returns false when no live session exists.
func (p *Pool) ForceRestart(conversationID string) bool {
	p.mu.Lock()
	live, ok := p.live[conversationID]
	if ok {
		delete(p.live, conversationID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	live.ForceTerminate("administrative restart")
	return true
}

// ForceIdle reaps a session as if its idle timeout had elapsed,
// persisting the final resume token. Returns false when no live session
// exists.
func (p *Pool) ForceIdle(ctx context.Context, conversationID string) bool {
	p.mu.Lock()
	live, ok := p.live[conversationID]
	if ok {
		delete(p.live, conversationID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	live.Reap(ctx)
	return true
}

// Snapshot returns every persisted record merged with live runtime state.
func (p *Pool) Snapshot(ctx context.Context) ([]SessionInfo, error) {
	records, err := p.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}

	liveSet := p.snapshotLive()

	infos := make([]SessionInfo, 0, len(records))
	for _, record := range records {
		info := SessionInfo{
			Record: *record,
			State:  session.StateTerminated,
		}
		if live, ok := liveSet[record.ConversationID]; ok {
			info.State = live.State()
			info.QueueDepth = live.QueueDepth()
			info.ErrorCount = live.ErrorCount()
			info.Live = info.State != session.StateTerminated
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// LiveCount returns the number of sessions in the live set.
func (p *Pool) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Close reaps every live session, persisting resume tokens. Used on
// process shutdown; run loops are abandoned, not joined.
func (p *Pool) Close(ctx context.Context) {
	for conversationID, live := range p.snapshotLive() {
		live.Reap(ctx)
		p.removeIf(conversationID, live)
	}
}
