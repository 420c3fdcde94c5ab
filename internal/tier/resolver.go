package tier

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// Resolver maps a sender identity to a trust tier, typically backed by an
// external address book. Implementations must be safe for concurrent use.
type Resolver interface {
	ResolveTier(ctx context.Context, identity string) (Tier, error)
}

// StaticResolver resolves from a fixed identity-to-tier table.
type StaticResolver map[string]Tier

// ResolveTier returns the configured tier, or Unknown for absent entries.
func (r StaticResolver) ResolveTier(_ context.Context, identity string) (Tier, error) {
	if t, ok := r[identity]; ok {
		return t, nil
	}
	return Unknown, nil
}

// LoadContactsFile reads a JSON file mapping identities to tier names and
// returns a StaticResolver over it.
func LoadContactsFile(path string) (StaticResolver, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read contacts file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse contacts file: %w", err)
	}

	resolver := make(StaticResolver, len(raw))
	for identity, name := range raw {
		resolver[identity] = Parse(name)
	}
	return resolver, nil
}
