// Package migrate provides the migration commands of the apolon CLI.
//
// The commands are parameterized by the application's migration provider and
// entity registry, so applications embed them into their own cobra root with
// their own migrations wired in.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apolondb/apolon/config"
	"github.com/apolondb/apolon/core/model"
	"github.com/apolondb/apolon/core/operation"
	"github.com/apolondb/apolon/dbschema"
	"github.com/apolondb/apolon/migration/migrator"
)

const (
	dbURLFlag          = "db-url"
	targetFlag         = "target"
	dryRunFlag         = "dry-run"
	productVersionFlag = "product-version"
)

var migrateFlags = map[string]cobraflags.Flag{
	dbURLFlag: &cobraflags.StringFlag{
		Name:  dbURLFlag,
		Value: "",
		Usage: "PostgreSQL connection URL (defaults to APOLON_DB_URL)",
	},
	targetFlag: &cobraflags.StringFlag{
		Name:  targetFlag,
		Value: "",
		Usage: "Target migration name (up: stop after it; down: roll back to it)",
	},
	dryRunFlag: &cobraflags.BoolFlag{
		Name:  dryRunFlag,
		Value: false,
		Usage: "Print the plan without executing anything",
	},
	productVersionFlag: &cobraflags.StringFlag{
		Name:  productVersionFlag,
		Value: "",
		Usage: "Product version recorded with applied migrations",
	},
}

// Deps carries the application-owned collaborators the commands run against.
type Deps struct {
	Provider migrator.MigrationProvider
	Registry *model.Registry
}

// NewMigrateCommand creates the migrate command tree: up, down, status, sync.
func NewMigrateCommand(deps Deps) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back and inspect database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations, optionally up to a target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUp(cmd.Context(), deps)
		},
	}
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations to a target",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDown(cmd.Context(), deps)
		},
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), deps)
		},
	}
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the live schema with the entity model, bypassing history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), deps)
		},
	}

	for _, cmd := range []*cobra.Command{upCmd, downCmd, statusCmd, syncCmd} {
		cobraflags.RegisterMap(cmd, migrateFlags)
		migrateCmd.AddCommand(cmd)
	}
	return migrateCmd
}

// databaseURL resolves the connection URL from the flag or the APOLON_DB_URL
// environment variable.
func databaseURL() (string, error) {
	if url := migrateFlags[dbURLFlag].GetString(); url != "" {
		return url, nil
	}
	viper.SetEnvPrefix("APOLON")
	viper.AutomaticEnv()
	if url := viper.GetString("db_url"); url != "" {
		return url, nil
	}
	return "", errors.New("no database URL: pass --db-url or set APOLON_DB_URL")
}

// withRunner connects, builds a runner and hands it to fn, closing the
// connection afterwards.
func withRunner(ctx context.Context, deps Deps, fn func(*migrator.Runner) error) error {
	url, err := databaseURL()
	if err != nil {
		return err
	}

	conn, err := dbschema.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	opts := config.DefaultOptions().
		WithProductVersion(migrateFlags[productVersionFlag].GetString())
	return fn(migrator.NewRunner(conn, deps.Provider, opts))
}

func runUp(ctx context.Context, deps Deps) error {
	return withRunner(ctx, deps, func(r *migrator.Runner) error {
		target := migrateFlags[targetFlag].GetString()

		if migrateFlags[dryRunFlag].GetBool() {
			pending, err := r.Pending(ctx)
			if err != nil {
				return err
			}
			printPlan(pending, target)
			return nil
		}

		if target != "" {
			return r.UpTo(ctx, target)
		}
		return r.Up(ctx)
	})
}

func runDown(ctx context.Context, deps Deps) error {
	target := migrateFlags[targetFlag].GetString()
	if target == "" {
		return errors.New("down requires --target")
	}
	return withRunner(ctx, deps, func(r *migrator.Runner) error {
		return r.DownTo(ctx, target)
	})
}

func runStatus(ctx context.Context, deps Deps) error {
	return withRunner(ctx, deps, func(r *migrator.Runner) error {
		status, err := r.Status(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Applied migrations: %d\n", len(status.Applied))
		for _, name := range status.Applied {
			fmt.Printf("  [x] %s\n", name)
		}
		fmt.Printf("Pending migrations: %d\n", len(status.Pending))
		for _, name := range status.Pending {
			fmt.Printf("  [ ] %s\n", name)
		}
		if status.Latest != "" {
			fmt.Printf("Latest: %s\n", status.Latest)
		}
		return nil
	})
}

func runSync(ctx context.Context, deps Deps) error {
	if deps.Registry == nil || len(deps.Registry.Entities()) == 0 {
		return errors.New("refusing to sync: no entity model is registered")
	}
	return withRunner(ctx, deps, func(r *migrator.Runner) error {
		if migrateFlags[dryRunFlag].GetBool() {
			ops, err := r.PlanSync(ctx, deps.Registry)
			if err != nil {
				return err
			}
			summary := operation.Summary(ops)
			if !strings.HasSuffix(summary, "\n") {
				summary += "\n"
			}
			fmt.Print(summary)
			return nil
		}
		return r.Sync(ctx, deps.Registry)
	})
}

func printPlan(pending []string, target string) {
	var lines []string
	for _, name := range pending {
		if target != "" && name > target {
			break
		}
		lines = append(lines, "  "+name)
	}
	if len(lines) == 0 {
		fmt.Println("no pending migrations")
		return
	}
	fmt.Printf("would apply %d migration(s):\n%s\n", len(lines), strings.Join(lines, "\n"))
}
