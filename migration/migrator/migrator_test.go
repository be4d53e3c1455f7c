package migrator_test

import (
	"context"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/apolondb/apolon/config"
	"github.com/apolondb/apolon/migration/builder"
	"github.com/apolondb/apolon/migration/migrator"
)

const (
	m1 = "20260801120000_create_users"
	m2 = "20260802120000_add_email"
	m3 = "20260803120000_create_posts"
)

func testProvider() *migrator.RegisteredMigrationProvider {
	return migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{
			Name: m1,
			Up: func(b *builder.MigrationBuilder) {
				b.CreateTable("public", "users").
					Column("id", "BIGINT").PrimaryKey().Identity()
			},
			Down: func(b *builder.MigrationBuilder) {
				b.DropTable("public", "users")
			},
		},
		&migrator.Migration{
			Name: m3,
			Up: func(b *builder.MigrationBuilder) {
				b.CreateTable("public", "posts").
					Column("id", "BIGINT").PrimaryKey().Identity()
			},
			Down: func(b *builder.MigrationBuilder) {
				b.DropTable("public", "posts")
			},
		},
		&migrator.Migration{
			Name: m2,
			Up: func(b *builder.MigrationBuilder) {
				b.Table("public", "users").
					Column("email", "VARCHAR(255)").NotNull()
			},
			Down: func(b *builder.MigrationBuilder) {
				b.Table("public", "users").DropColumn("email")
			},
		},
	)
}

func newTestRunner(c *qt.C) (*migrator.Runner, *memStore) {
	store := &memStore{}
	conn := openFakeConn(c, store)
	return migrator.NewRunner(conn, testProvider(), config.DefaultOptions()), store
}

// logIndex returns the position of the first committed statement containing
// substr, or -1.
func logIndex(log []string, substr string) int {
	for i, stmt := range log {
		if strings.Contains(stmt, substr) {
			return i
		}
	}
	return -1
}

func TestProviderSortsByName(t *testing.T) {
	c := qt.New(t)

	migrations := testProvider().Migrations()
	c.Assert(migrations, qt.HasLen, 3)
	c.Assert(migrations[0].Name, qt.Equals, m1)
	c.Assert(migrations[1].Name, qt.Equals, m2)
	c.Assert(migrations[2].Name, qt.Equals, m3)
}

func TestRunnerUp(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	runner, store := newTestRunner(c)
	c.Assert(runner.Up(ctx), qt.IsNil)

	c.Assert(store.Applied(), qt.DeepEquals, []string{m1, m2, m3})

	log := store.Log()
	createUsers := logIndex(log, `CREATE TABLE "public"."users"`)
	addEmail := logIndex(log, `ADD COLUMN "email"`)
	createPosts := logIndex(log, `CREATE TABLE "public"."posts"`)
	c.Assert(createUsers >= 0, qt.IsTrue)
	c.Assert(createUsers < addEmail, qt.IsTrue)
	c.Assert(addEmail < createPosts, qt.IsTrue)
}

func TestRunnerUp_SecondRunIsNoop(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	runner, store := newTestRunner(c)
	c.Assert(runner.Up(ctx), qt.IsNil)
	before := len(store.Log())

	c.Assert(runner.Up(ctx), qt.IsNil)
	c.Assert(store.Log(), qt.HasLen, before)
	c.Assert(store.Applied(), qt.DeepEquals, []string{m1, m2, m3})
}

func TestRunnerUpTo(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	runner, store := newTestRunner(c)
	c.Assert(runner.UpTo(ctx, m2), qt.IsNil)

	c.Assert(store.Applied(), qt.DeepEquals, []string{m1, m2})
	c.Assert(logIndex(store.Log(), `"posts"`), qt.Equals, -1)
}

func TestRunnerUpTo_UnknownTarget(t *testing.T) {
	c := qt.New(t)

	runner, _ := newTestRunner(c)
	err := runner.UpTo(context.Background(), "20990101000000_missing")
	c.Assert(err, qt.ErrorIs, migrator.ErrUnknownMigration)
}

func TestRunnerDownTo(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	// Apply all three, then roll back to the first: only the first stays
	// applied and the rollbacks run most recent first.
	runner, store := newTestRunner(c)
	c.Assert(runner.Up(ctx), qt.IsNil)
	c.Assert(runner.DownTo(ctx, m1), qt.IsNil)

	c.Assert(store.Applied(), qt.DeepEquals, []string{m1})

	log := store.Log()
	dropPosts := logIndex(log, `DROP TABLE "public"."posts"`)
	dropEmail := logIndex(log, `DROP COLUMN "email"`)
	c.Assert(dropPosts >= 0, qt.IsTrue)
	c.Assert(dropEmail >= 0, qt.IsTrue)
	c.Assert(dropPosts < dropEmail, qt.IsTrue,
		qt.Commentf("rollbacks must run most recent first"))
}

func TestRunnerDownTo_TargetNotApplied(t *testing.T) {
	c := qt.New(t)

	runner, _ := newTestRunner(c)
	err := runner.DownTo(context.Background(), m2)
	c.Assert(err, qt.ErrorIs, migrator.ErrNotApplied)
}

func TestRunnerDownTo_UnknownTarget(t *testing.T) {
	c := qt.New(t)

	runner, _ := newTestRunner(c)
	err := runner.DownTo(context.Background(), "20990101000000_missing")
	c.Assert(err, qt.ErrorIs, migrator.ErrUnknownMigration)
}

func TestRunnerUp_FailedMigrationRollsBack(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	// The second migration fails mid-transaction: its history row is
	// absent and the third migration is never attempted.
	runner, store := newTestRunner(c)
	store.FailOn(`ADD COLUMN "email"`)

	err := runner.Up(ctx)
	c.Assert(err, qt.ErrorMatches, `(?s).*injected failure.*`)

	c.Assert(store.Applied(), qt.DeepEquals, []string{m1})
	c.Assert(logIndex(store.Log(), `"posts"`), qt.Equals, -1,
		qt.Commentf("later pending migrations must not run after a failure"))
}

func TestRunnerStatus(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	runner, _ := newTestRunner(c)
	c.Assert(runner.UpTo(ctx, m1), qt.IsNil)

	status, err := runner.Status(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Applied, qt.DeepEquals, []string{m1})
	c.Assert(status.Pending, qt.DeepEquals, []string{m2, m3})
	c.Assert(status.Latest, qt.Equals, m1)
	c.Assert(status.TotalMigrations, qt.Equals, 3)
	c.Assert(status.HasPendingChanges, qt.IsTrue)
}

func TestRunnerUp_DuplicateNames(t *testing.T) {
	c := qt.New(t)

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Name: m1, Up: migrator.NoopBuildFunc},
		&migrator.Migration{Name: m1, Up: migrator.NoopBuildFunc},
	)
	store := &memStore{}
	runner := migrator.NewRunner(openFakeConn(c, store), provider, nil)

	err := runner.Up(context.Background())
	c.Assert(err, qt.ErrorMatches, `migration .* registered twice`)
}

func TestRunnerDownTo_MissingDown(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	provider := migrator.NewRegisteredMigrationProvider(
		&migrator.Migration{Name: m1, Up: migrator.NoopBuildFunc, Down: migrator.NoopBuildFunc},
		&migrator.Migration{Name: m2, Up: migrator.NoopBuildFunc},
	)
	store := &memStore{}
	runner := migrator.NewRunner(openFakeConn(c, store), provider, nil)

	c.Assert(runner.Up(ctx), qt.IsNil)
	err := runner.DownTo(ctx, m1)
	c.Assert(err, qt.ErrorIs, migrator.ErrNoDownMigration)

	// Validation happens before any rollback DDL runs.
	c.Assert(store.Applied(), qt.DeepEquals, []string{m1, m2})
}

func TestRunnerInitialize(t *testing.T) {
	c := qt.New(t)

	runner, store := newTestRunner(c)
	c.Assert(runner.Initialize(context.Background()), qt.IsNil)

	log := store.Log()
	c.Assert(logIndex(log, `CREATE SCHEMA IF NOT EXISTS "apolon"`) >= 0, qt.IsTrue)
	c.Assert(logIndex(log, `CREATE TABLE IF NOT EXISTS "apolon"."__apolon_migrations"`) >= 0, qt.IsTrue)

	// Repeated initialization does nothing.
	before := len(log)
	c.Assert(runner.Initialize(context.Background()), qt.IsNil)
	c.Assert(store.Log(), qt.HasLen, before)
}
