// Command apolon is the reference CLI for the Apolon migration engine.
//
// The binary ships with an empty migration set; applications typically embed
// the commands from cmd/apolon/migrate into their own cobra root with their
// own provider and entity registry wired in.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/apolondb/apolon/cmd/apolon/migrate"
	"github.com/apolondb/apolon/migration/migrator"
)

var rootCmd = &cobra.Command{
	Use:   "apolon",
	Short: "Apolon is a PostgreSQL schema migration and diffing tool",
	Long: `Apolon compares a desired schema built from entity metadata against the
live database catalog, plans the DDL that reconciles them, and runs named
migrations transactionally with a history table.`,
	SilenceUsage: true,
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	rootCmd.AddCommand(migrate.NewMigrateCommand(migrate.Deps{
		Provider: migrator.NewRegisteredMigrationProvider(),
	}))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
