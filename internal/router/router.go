// Package router is the ingress entry point: it classifies every inbound
// envelope by sender tier, applies the group acceptance cascade, and
// dispatches accepted messages into the session pool.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jschaf/switchboard/internal/channel"
	"github.com/jschaf/switchboard/internal/pool"
	"github.com/jschaf/switchboard/internal/session"
	"github.com/jschaf/switchboard/internal/tier"
)

// Outcome is the result of routing one envelope.
type Outcome string

const (
	// OutcomeAccepted means the message was enqueued to a session.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeDropped means the message was rejected with zero side
	// effects: no reply, no record, no session.
	OutcomeDropped Outcome = "dropped"
)

// Router routes normalized envelopes into the pool.
type Router struct {
	pool     *pool.Pool
	resolver tier.Resolver
	logger   *slog.Logger
}

// Option configures the router.
type Option func(*Router)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a router.
func New(sessionPool *pool.Pool, resolver tier.Resolver, opts ...Option) (*Router, error) {
	if sessionPool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("tier resolver is required")
	}

	r := &Router{
		pool:     sessionPool,
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "router"))
	return r, nil
}

// Route classifies and dispatches one envelope. A rejected message is
// indistinguishable from one that was never received: Route creates
// nothing and replies to no one.
func (r *Router) Route(ctx context.Context, msg channel.NormalizedMessage) (Outcome, error) {
	senderTier := r.resolveTier(ctx, msg.SenderID)

	if msg.IsGroup {
		if !r.acceptGroup(ctx, msg, senderTier) {
			r.logger.Debug("group message dropped",
				"conversation", msg.ConversationKey(),
				"tier", senderTier.String())
			return OutcomeDropped, nil
		}
	} else {
		if decision := tier.Evaluate(senderTier); !decision.Allow {
			r.logger.Debug("direct message dropped",
				"tier", senderTier.String())
			return OutcomeDropped, nil
		}
	}

	inbound := session.Message{
		ID:            msg.ID,
		Sender:        msg.SenderID,
		DisplayName:   msg.DisplayName,
		Body:          msg.Body,
		Tier:          senderTier,
		Profile:       tier.ProfileFor(senderTier),
		SourceChannel: string(msg.SourceChannel),
		ReceivedAt:    msg.ReceivedAt,
	}

	if err := r.pool.Dispatch(ctx, msg.ConversationKey(), senderTier, msg.DisplayName, inbound); err != nil {
		return OutcomeDropped, fmt.Errorf("failed to dispatch message: %w", err)
	}
	return OutcomeAccepted, nil
}

// resolveTier never fails: resolver errors degrade to Unknown so the hot
// path keeps moving.
func (r *Router) resolveTier(ctx context.Context, identity string) tier.Tier {
	resolved, err := r.resolver.ResolveTier(ctx, identity)
	if err != nil {
		r.logger.Warn("tier resolution failed, defaulting to unknown",
			"identity", identity,
			"error", err)
		return tier.Unknown
	}
	return resolved
}

// acceptGroup applies the cascading acceptance checks in order,
// short-circuiting on the first match:
//
//  1. the sender's own tier is trusted;
//  2. the conversation was previously bootstrapped (group membership, not
//     per-message sender trust, is the unit of access once established);
//  3. any participant resolves to a trusted tier, bootstrapping the group.
//
// Rule 2 precedes rule 3 so an active group never re-resolves every
// participant, and rule 1 precedes both so a trusted sender is never
// blocked by stale group state.
func (r *Router) acceptGroup(ctx context.Context, msg channel.NormalizedMessage, senderTier tier.Tier) bool {
	if senderTier.Trusted() {
		return true
	}

	if r.pool.Exists(ctx, msg.ConversationKey()) {
		return true
	}

	for _, participant := range msg.Participants {
		if participant == msg.SenderID {
			continue
		}
		if r.resolveTier(ctx, participant).Trusted() {
			return true
		}
	}
	return false
}

// Run pumps a source's envelopes through Route until ctx ends. Routing
// errors are contained per message; one conversation's failure never
// stops ingress.
func (r *Router) Run(ctx context.Context, source channel.Source) error {
	messages, err := source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", source.Name(), err)
	}

	r.logger.Info("ingress started", "source", source.Name())

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-messages:
			if !ok {
				r.logger.Info("ingress closed", "source", source.Name())
				return nil
			}

			outcome, routeErr := r.Route(ctx, msg)
			if routeErr != nil {
				r.logger.Error("routing failed",
					"source", source.Name(),
					"conversation", msg.ConversationKey(),
					"error", routeErr)
				continue
			}
			r.logger.Debug("message routed",
				"source", source.Name(),
				"outcome", string(outcome))
		}
	}
}
