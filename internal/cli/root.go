// Package cli implements the custodiactl admin commands. They operate
// directly on the SQLite stores and rule files, bypassing the HTTP surface.
package cli

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"custodia/internal/platform/database"
)

var RootCmd = &cobra.Command{
	Use:   "custodiactl",
	Short: "Admin tooling for the custodia consent engine",
	Long:  "custodiactl inspects and maintains a custodia deployment: audit trail queries, recovery-window purges, and sanitization rule checks.",
}

func init() {
	RootCmd.PersistentFlags().String("db", "", "path to the custodia database (defaults to $CUSTODIA_DB_PATH or custodia.db)")
}

func openDB(cmd *cobra.Command) (*sql.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = os.Getenv("CUSTODIA_DB_PATH")
	}
	if path == "" {
		path = "custodia.db"
	}
	return database.Open(path)
}

func exitErr(context string, err error) {
	fmt.Fprintf(os.Stderr, "custodiactl: %s: %v\n", context, err)
	os.Exit(1)
}
