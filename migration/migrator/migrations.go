package migrator

import (
	"fmt"
	"sort"

	"github.com/apolondb/apolon/migration/builder"
)

// BuildFunc populates a migration builder with the operations of one
// migration direction.
type BuildFunc func(*builder.MigrationBuilder)

// Migration is one named migration unit. Names carry an embedded timestamp
// prefix (e.g. "20260815120000_create_users") and order migrations
// lexically; Up and Down describe the two directions through the fluent
// builder.
type Migration struct {
	Name        string
	Description string
	Up          BuildFunc
	Down        BuildFunc
}

// NoopBuildFunc is a build function that records no operations.
func NoopBuildFunc(*builder.MigrationBuilder) {}

// MigrationProvider provides a list of migrations.
type MigrationProvider interface {
	// Migrations provides the migrations sorted by name in ascending order.
	Migrations() []*Migration
}

// RegisteredMigrationProvider is a simple in-memory implementation of
// MigrationProvider.
type RegisteredMigrationProvider struct {
	migrations []*Migration
	sorted     bool
}

// NewRegisteredMigrationProvider creates a new in-memory migration provider
// with the given migrations. The migrations are sorted by name when accessed
// through the Migrations() method.
func NewRegisteredMigrationProvider(migrations ...*Migration) *RegisteredMigrationProvider {
	return &RegisteredMigrationProvider{
		migrations: migrations,
	}
}

// Register adds a migration to the provider.
func (p *RegisteredMigrationProvider) Register(migration *Migration) {
	p.migrations = append(p.migrations, migration)
	p.sorted = false
}

// Migrations returns the list of migrations sorted by name in ascending order.
func (p *RegisteredMigrationProvider) Migrations() []*Migration {
	p.maybeSort()
	return p.migrations
}

// maybeSort sorts the migrations if they haven't been sorted yet.
func (p *RegisteredMigrationProvider) maybeSort() {
	if p.sorted {
		return
	}
	sort.Slice(p.migrations, func(i, j int) bool {
		return p.migrations[i].Name < p.migrations[j].Name
	})
	p.sorted = true
}

// validate checks a migration set for usability before any SQL runs.
func validate(migrations []*Migration) error {
	seen := make(map[string]bool, len(migrations))
	for _, m := range migrations {
		if m.Name == "" {
			return fmt.Errorf("migration with empty name")
		}
		if seen[m.Name] {
			return fmt.Errorf("migration %q registered twice", m.Name)
		}
		seen[m.Name] = true
		if m.Up == nil {
			return fmt.Errorf("migration %q has no Up", m.Name)
		}
	}
	return nil
}
