package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"custodia/internal/audit"
)

func init() {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit entries",
		Run:   runAudit,
	}

	cmd.Flags().StringP("session", "s", "", "Filter by session id")
	cmd.Flags().IntP("limit", "l", 50, "Max entries")

	RootCmd.AddCommand(cmd)
}

func runAudit(cmd *cobra.Command, args []string) {
	session, _ := cmd.Flags().GetString("session")
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openDB(cmd)
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	store := audit.NewSQLiteStore(db)

	var entries []audit.Entry
	if session != "" {
		entries, err = store.ListBySession(cmd.Context(), session)
	} else {
		entries, err = store.List(cmd.Context(), limit)
	}
	if err != nil {
		exitErr("list audit entries", err)
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-9s  %-9s", e.Timestamp.Format("2006-01-02 15:04:05"), e.Action, e.Level)
		if e.SessionID != "" {
			line += "  session=" + e.SessionID
		}
		if e.Reason != "" {
			line += "  reason=" + e.Reason
		}
		if e.Preview != "" {
			line += "  " + e.Preview
		}
		fmt.Println(line)
	}
}
