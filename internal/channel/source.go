package channel

import "context"

// Source is an ingress stream of normalized envelopes. Implementations
// must be safe for concurrent use.
type Source interface {
	// Name identifies the source for logging.
	Name() string

	// Subscribe returns a channel of inbound envelopes. The channel is
	// closed when the context is cancelled.
	Subscribe(ctx context.Context) (<-chan NormalizedMessage, error)
}
