package migrator

import (
	_ "embed"
	"fmt"

	"github.com/lib/pq"
)

//go:embed base/create_schema.sql
var createHistorySchemaSQL string

//go:embed base/create_table.sql
var createHistoryTableSQL string

//go:embed base/list_applied.sql
var listAppliedSQL string

//go:embed base/record_migration.sql
var recordMigrationSQL string

//go:embed base/delete_migration.sql
var deleteMigrationSQL string

// history renders the embedded history statements for one configured
// schema/table location. Identifiers are interpolated quoted; values travel
// as query parameters.
type history struct {
	schema string
	table  string
}

func (h history) tableRef() string {
	return pq.QuoteIdentifier(h.schema) + "." + pq.QuoteIdentifier(h.table)
}

func (h history) createSchema() string {
	return fmt.Sprintf(createHistorySchemaSQL, pq.QuoteIdentifier(h.schema))
}

func (h history) createTable() string {
	return fmt.Sprintf(createHistoryTableSQL, h.tableRef())
}

func (h history) listApplied() string {
	return fmt.Sprintf(listAppliedSQL, h.tableRef())
}

func (h history) record() string {
	return fmt.Sprintf(recordMigrationSQL, h.tableRef())
}

func (h history) delete() string {
	return fmt.Sprintf(deleteMigrationSQL, h.tableRef())
}
