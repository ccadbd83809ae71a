package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"custodia/internal/audit"
	"custodia/internal/platform/logger"
	"custodia/internal/revocation"
)

func init() {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge soft-deleted entries whose recovery window has lapsed",
		Run:   runPurge,
	}

	RootCmd.AddCommand(cmd)
}

func runPurge(cmd *cobra.Command, args []string) {
	db, err := openDB(cmd)
	if err != nil {
		exitErr("open database", err)
	}
	defer db.Close()

	auditor := audit.NewPublisher(audit.NewSQLiteStore(db))
	defer auditor.Close()

	ledger := revocation.NewLedger(revocation.NewSQLiteStore(db), auditor, logger.New())

	purged, err := ledger.PurgeSoftDeleted(cmd.Context())
	if err != nil {
		exitErr("purge", err)
	}

	fmt.Printf("purged %d entries\n", purged)
}
