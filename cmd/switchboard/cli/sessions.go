package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jschaf/switchboard/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List persisted conversations and their last-activity age",
		Run:   runSessions,
	}
	cmd.Flags().Bool("json", false, "Output JSON instead of a table")
	RootCmd.AddCommand(cmd)
}

// sessionRow is the JSON output shape.
type sessionRow struct {
	ConversationID string    `json:"conversation_id"`
	DisplayName    string    `json:"display_name,omitempty"`
	Tier           string    `json:"tier"`
	Resumable      bool      `json:"resumable"`
	LastActivityAt time.Time `json:"last_activity_at"`
	IdleFor        string    `json:"idle_for"`
	ExemptIdleReap bool      `json:"exempt_idle_reap"`
}

func runSessions(cmd *cobra.Command, _ []string) {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		exitErr("load config", err)
	}

	store, err := openRegistry(cmd.Context(), cfg)
	if err != nil {
		exitErr("open registry", err)
	}
	defer func() { _ = store.Close() }()

	records, err := store.List(cmd.Context())
	if err != nil {
		exitErr("list sessions", err)
	}

	now := time.Now()
	rows := make([]sessionRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, sessionRow{
			ConversationID: record.ConversationID,
			DisplayName:    record.DisplayName,
			Tier:           record.Tier.String(),
			Resumable:      record.ResumeToken != "",
			LastActivityAt: record.LastActivityAt,
			IdleFor:        now.Sub(record.LastActivityAt).Round(time.Second).String(),
			ExemptIdleReap: record.ExemptFromIdleReap,
		})
	}

	if asJSON {
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONVERSATION\tNAME\tTIER\tIDLE\tRESUMABLE\tEXEMPT")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n",
			row.ConversationID,
			row.DisplayName,
			row.Tier,
			row.IdleFor,
			row.Resumable,
			row.ExemptIdleReap,
		)
	}
	_ = w.Flush()
}
