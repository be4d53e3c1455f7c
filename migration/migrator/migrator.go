// Package migrator applies named migrations to a live database and keeps
// the migration history table.
//
// Each migration runs in its own transaction together with its history row,
// so a failed migration leaves no trace and later pending migrations are not
// attempted. Sync bypasses history entirely: it diffs the live schema
// against an entity model and applies the result in one transaction.
package migrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apolondb/apolon/config"
	"github.com/apolondb/apolon/core/convert/frommodel"
	"github.com/apolondb/apolon/core/model"
	"github.com/apolondb/apolon/core/operation"
	"github.com/apolondb/apolon/core/sqlgen"
	"github.com/apolondb/apolon/dbschema"
	"github.com/apolondb/apolon/migration/builder"
	"github.com/apolondb/apolon/migration/schemadiff"
)

var (
	// ErrUnknownMigration is returned when a target name is not provided
	// by the migration provider.
	ErrUnknownMigration = errors.New("unknown migration")

	// ErrNotApplied is returned when a rollback target has not been
	// applied yet.
	ErrNotApplied = errors.New("migration not applied")

	// ErrNoDownMigration is returned when a rollback reaches a migration
	// without a Down.
	ErrNoDownMigration = errors.New("migration has no down")
)

// Status describes the migration state of a database.
type Status struct {
	Applied           []string `json:"applied"`
	Pending           []string `json:"pending"`
	Latest            string   `json:"latest"`
	TotalMigrations   int      `json:"total_migrations"`
	HasPendingChanges bool     `json:"has_pending_changes"`
}

// Runner executes migrations against a database connection.
type Runner struct {
	conn        dbschema.Conn
	provider    MigrationProvider
	opts        *config.Options
	hist        history
	logger      *slog.Logger
	initialized bool
}

// NewRunner creates a runner with the given connection and provider.
func NewRunner(conn dbschema.Conn, provider MigrationProvider, opts *config.Options) *Runner {
	if opts == nil {
		opts = config.DefaultOptions()
	}
	return &Runner{
		conn:     conn,
		provider: provider,
		opts:     opts,
		hist:     history{schema: opts.HistorySchema, table: opts.HistoryTable},
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the runner.
func (r *Runner) WithLogger(l *slog.Logger) *Runner {
	tmp := *r
	tmp.logger = l
	return &tmp
}

// Initialize creates the history schema and table if they don't exist.
func (r *Runner) Initialize(ctx context.Context) error {
	if r.initialized {
		return nil
	}
	if _, err := r.conn.ExecContext(ctx, r.hist.createSchema()); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	if _, err := r.conn.ExecContext(ctx, r.hist.createTable()); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	r.initialized = true
	return nil
}

// Applied returns the names of applied migrations in ascending order.
func (r *Runner) Applied(ctx context.Context) ([]string, error) {
	if err := r.Initialize(ctx); err != nil {
		return nil, err
	}

	rows, err := r.conn.QueryContext(ctx, r.hist.listApplied())
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration name: %w", err)
		}
		applied = append(applied, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}
	return applied, nil
}

// Pending returns the names of registered migrations not yet applied, in
// ascending order.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	appliedSet := toSet(applied)

	var pending []string
	for _, m := range r.provider.Migrations() {
		if !appliedSet[m.Name] {
			pending = append(pending, m.Name)
		}
	}
	return pending, nil
}

// Status reports the applied and pending migrations.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var latest string
	if len(applied) > 0 {
		latest = applied[len(applied)-1]
	}
	return &Status{
		Applied:           applied,
		Pending:           pending,
		Latest:            latest,
		TotalMigrations:   len(r.provider.Migrations()),
		HasPendingChanges: len(pending) > 0,
	}, nil
}

// Up applies every pending migration in ascending order.
func (r *Runner) Up(ctx context.Context) error {
	return r.up(ctx, "")
}

// UpTo applies pending migrations up to and including target.
func (r *Runner) UpTo(ctx context.Context, target string) error {
	if r.lookup(target) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownMigration, target)
	}
	return r.up(ctx, target)
}

func (r *Runner) up(ctx context.Context, target string) error {
	migrations := r.provider.Migrations()
	if err := validate(migrations); err != nil {
		return err
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	appliedSet := toSet(applied)

	r.logger.Info("Migrating up",
		"applied", len(applied), "totalMigrations", len(migrations))

	for _, m := range migrations {
		if target != "" && m.Name > target {
			break
		}
		if appliedSet[m.Name] {
			continue
		}
		if err := r.applyUp(ctx, m); err != nil {
			return err
		}
	}

	r.logger.Info("All migrations applied successfully")
	return nil
}

// DownTo rolls back every applied migration after target, most recent
// first, leaving target applied. Target must be an applied migration.
func (r *Runner) DownTo(ctx context.Context, target string) error {
	migrations := r.provider.Migrations()
	if err := validate(migrations); err != nil {
		return err
	}
	if r.lookup(target) == nil {
		return fmt.Errorf("%w: %q", ErrUnknownMigration, target)
	}

	applied, err := r.Applied(ctx)
	if err != nil {
		return err
	}
	if !toSet(applied)[target] {
		return fmt.Errorf("%w: %q", ErrNotApplied, target)
	}

	byName := make(map[string]*Migration, len(migrations))
	for _, m := range migrations {
		byName[m.Name] = m
	}

	// Every migration scheduled for rollback must be known and have a
	// Down before any DDL runs.
	var rollback []*Migration
	for i := len(applied) - 1; i >= 0; i-- {
		name := applied[i]
		if name <= target {
			continue
		}
		m := byName[name]
		if m == nil {
			return fmt.Errorf("%w: %q is applied but not registered", ErrUnknownMigration, name)
		}
		if m.Down == nil {
			return fmt.Errorf("%w: %q", ErrNoDownMigration, name)
		}
		rollback = append(rollback, m)
	}

	r.logger.Info("Rolling back", "target", target, "migrations", len(rollback))

	for _, m := range rollback {
		if err := r.applyDown(ctx, m); err != nil {
			return err
		}
	}

	r.logger.Info("All migrations rolled back successfully")
	return nil
}

// applyUp runs one migration's Up and its history row in one transaction.
func (r *Runner) applyUp(ctx context.Context, m *Migration) error {
	r.logger.Info("Applying migration", "name", m.Name, "description", m.Description)

	b := builder.New()
	m.Up(b)

	var productVersion any
	if r.opts.ProductVersion != "" {
		productVersion = r.opts.ProductVersion
	}

	err := r.inTransaction(ctx, m.Name, b.Operations(), func(tx dbschema.Tx) error {
		if _, err := tx.ExecContext(ctx, r.hist.record(), m.Name, productVersion); err != nil {
			return fmt.Errorf("failed to record migration %q: %w", m.Name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Applied migration", "name", m.Name)
	return nil
}

// applyDown runs one migration's Down and removes its history row in one
// transaction.
func (r *Runner) applyDown(ctx context.Context, m *Migration) error {
	r.logger.Info("Rolling back migration", "name", m.Name, "description", m.Description)

	b := builder.New()
	m.Down(b)

	err := r.inTransaction(ctx, m.Name, b.Operations(), func(tx dbschema.Tx) error {
		if _, err := tx.ExecContext(ctx, r.hist.delete(), m.Name); err != nil {
			return fmt.Errorf("failed to delete migration record %q: %w", m.Name, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Info("Rolled back migration", "name", m.Name)
	return nil
}

// inTransaction compiles and executes an operation list plus a history
// update in one transaction, rolling back on any failure.
func (r *Runner) inTransaction(ctx context.Context, name string, ops []operation.MigrationOperation, record func(dbschema.Tx) error) error {
	statements, err := sqlgen.CompileAll(ops)
	if err != nil {
		return fmt.Errorf("failed to compile migration %q: %w", name, err)
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %q: %w", name, err)
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute migration %q: %w\nSQL: %s", name, err, stmt)
		}
	}
	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction for migration %q: %w", name, err)
	}
	return nil
}

// PlanSync computes the operations that would reconcile the live schema
// with the entity model, without executing anything.
func (r *Runner) PlanSync(ctx context.Context, reg *model.Registry) ([]operation.MigrationOperation, error) {
	expected, err := frommodel.Build(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to build model snapshot: %w", err)
	}

	actual, err := dbschema.NewSnapshotReader(r.conn, r.opts).ReadSchema(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read database schema: %w", err)
	}

	return schemadiff.Diff(expected, actual), nil
}

// Sync reconciles the live schema with the entity model directly, in one
// transaction, without consulting or updating migration history.
func (r *Runner) Sync(ctx context.Context, reg *model.Registry) error {
	ops, err := r.PlanSync(ctx, reg)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		r.logger.Info("Schema is up to date")
		return nil
	}

	r.logger.Info("Syncing schema", "operations", len(ops))

	statements, err := sqlgen.CompileAll(ops)
	if err != nil {
		return fmt.Errorf("failed to compile sync plan: %w", err)
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin sync transaction: %w", err)
	}
	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to execute sync statement: %w\nSQL: %s", err, stmt)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sync transaction: %w", err)
	}

	r.logger.Info("Schema synced successfully")
	return nil
}

func (r *Runner) lookup(name string) *Migration {
	for _, m := range r.provider.Migrations() {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
