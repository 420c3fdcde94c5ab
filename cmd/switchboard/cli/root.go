// Package cli wires the switchboard commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jschaf/switchboard/internal/config"
	"github.com/jschaf/switchboard/internal/registry"
)

// RootCmd is the top-level switchboard command.
var RootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Route messenger traffic into per-conversation agent sessions",
	Long: `switchboard routes inbound messages from channel adapters into
long-lived per-conversation agent sessions, enforcing a tiered trust
policy per sender and keeping the session pool healthy over weeks of
uninterrupted operation.`,
	SilenceUsage: true,
}

// openRegistry opens the configured registry with retry semantics.
func openRegistry(ctx context.Context, cfg config.Config) (registry.Store, error) {
	store, err := registry.NewSQLiteStore(ctx, cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry at %s: %w", cfg.RegistryPath, err)
	}
	return registry.NewRetryingStore(store), nil
}

// exitErr prints a command failure and exits non-zero.
func exitErr(action string, err error) {
	fmt.Fprintf(os.Stderr, "switchboard: %s: %v\n", action, err)
	os.Exit(1)
}
