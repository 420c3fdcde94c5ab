package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jschaf/switchboard/internal/config"
	"github.com/jschaf/switchboard/internal/registry"
)

func init() {
	cmd := &cobra.Command{
		Use:   "reset <conversation-id>",
		Short: "Delete a conversation's persisted record, discarding its resume token",
		Args:  cobra.ExactArgs(1),
		Run:   runReset,
	}
	RootCmd.AddCommand(cmd)
}

func runReset(cmd *cobra.Command, args []string) {
	conversationID := args[0]

	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}

	store, err := openRegistry(cmd.Context(), cfg)
	if err != nil {
		exitErr("open registry", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.Get(cmd.Context(), conversationID); err != nil {
		if registry.IsNotFound(err) {
			exitErr("reset", fmt.Errorf("no record for conversation %s", conversationID))
		}
		exitErr("reset", err)
	}

	if err := store.Delete(cmd.Context(), conversationID); err != nil {
		exitErr("reset", err)
	}
	fmt.Printf("conversation %s reset\n", conversationID)
}
