// Package config provides configuration options for the Apolon schema
// migration engine.
//
// This package provides a simple, programmatic API for configuring migration
// history placement and schema introspection behavior when using Apolon as a
// library. It focuses on clean Go APIs rather than external configuration
// file management.
package config

// Options contains configuration for the migration engine.
type Options struct {
	// HistorySchema is the schema holding the migration history table.
	// The schema is created on first use and excluded from every snapshot
	// the engine reads.
	HistorySchema string

	// HistoryTable is the name of the migration history table inside
	// HistorySchema.
	HistoryTable string

	// ProductVersion, when set, is recorded with every applied migration.
	ProductVersion string

	// IgnoredSchemas lists schemas the snapshot reader skips in addition
	// to the PostgreSQL system schemas and HistorySchema.
	IgnoredSchemas []string
}

// DefaultOptions returns the default engine options.
func DefaultOptions() *Options {
	return &Options{
		HistorySchema: "apolon",
		HistoryTable:  "__apolon_migrations",
	}
}

// WithProductVersion returns a copy of the options with the product version
// set.
func (o *Options) WithProductVersion(version string) *Options {
	out := o.clone()
	out.ProductVersion = version
	return out
}

// WithHistoryLocation returns a copy of the options with the history schema
// and table overridden. Empty arguments keep the current values.
func (o *Options) WithHistoryLocation(schema, table string) *Options {
	out := o.clone()
	if schema != "" {
		out.HistorySchema = schema
	}
	if table != "" {
		out.HistoryTable = table
	}
	return out
}

// WithIgnoredSchemas returns a copy of the options with the given schemas
// appended to the ignore list.
func (o *Options) WithIgnoredSchemas(schemas ...string) *Options {
	out := o.clone()
	out.IgnoredSchemas = append(out.IgnoredSchemas, schemas...)
	return out
}

// IsSchemaIgnored reports whether the snapshot reader should skip the given
// schema.
func (o *Options) IsSchemaIgnored(schema string) bool {
	if schema == o.HistorySchema {
		return true
	}
	for _, ignored := range o.IgnoredSchemas {
		if ignored == schema {
			return true
		}
	}
	return false
}

func (o *Options) clone() *Options {
	out := *o
	out.IgnoredSchemas = append([]string(nil), o.IgnoredSchemas...)
	return &out
}
