package config_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/apolondb/apolon/config"
)

func TestDefaultOptions(t *testing.T) {
	c := qt.New(t)

	opts := config.DefaultOptions()

	c.Assert(opts, qt.IsNotNil)
	c.Assert(opts.HistorySchema, qt.Equals, "apolon")
	c.Assert(opts.HistoryTable, qt.Equals, "__apolon_migrations")
	c.Assert(opts.ProductVersion, qt.Equals, "")
	c.Assert(opts.IgnoredSchemas, qt.HasLen, 0)
}

func TestWithProductVersion(t *testing.T) {
	c := qt.New(t)

	base := config.DefaultOptions()
	opts := base.WithProductVersion("1.4.2")

	c.Assert(opts.ProductVersion, qt.Equals, "1.4.2")
	// The original is not mutated.
	c.Assert(base.ProductVersion, qt.Equals, "")
}

func TestWithHistoryLocation(t *testing.T) {
	tests := []struct {
		name           string
		schema         string
		table          string
		expectedSchema string
		expectedTable  string
	}{
		{
			name:           "both overridden",
			schema:         "migrations",
			table:          "history",
			expectedSchema: "migrations",
			expectedTable:  "history",
		},
		{
			name:           "schema only",
			schema:         "migrations",
			expectedSchema: "migrations",
			expectedTable:  "__apolon_migrations",
		},
		{
			name:           "empty arguments keep defaults",
			expectedSchema: "apolon",
			expectedTable:  "__apolon_migrations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			opts := config.DefaultOptions().WithHistoryLocation(tt.schema, tt.table)
			c.Assert(opts.HistorySchema, qt.Equals, tt.expectedSchema)
			c.Assert(opts.HistoryTable, qt.Equals, tt.expectedTable)
		})
	}
}

func TestIsSchemaIgnored(t *testing.T) {
	c := qt.New(t)

	opts := config.DefaultOptions().WithIgnoredSchemas("legacy", "scratch")

	// The history schema is always ignored.
	c.Assert(opts.IsSchemaIgnored("apolon"), qt.IsTrue)
	c.Assert(opts.IsSchemaIgnored("legacy"), qt.IsTrue)
	c.Assert(opts.IsSchemaIgnored("scratch"), qt.IsTrue)
	c.Assert(opts.IsSchemaIgnored("public"), qt.IsFalse)
}

func TestOptionsChaining(t *testing.T) {
	c := qt.New(t)

	opts := config.DefaultOptions().
		WithProductVersion("2.0.0").
		WithHistoryLocation("meta", "").
		WithIgnoredSchemas("legacy")

	c.Assert(opts.ProductVersion, qt.Equals, "2.0.0")
	c.Assert(opts.HistorySchema, qt.Equals, "meta")
	c.Assert(opts.HistoryTable, qt.Equals, "__apolon_migrations")
	c.Assert(opts.IsSchemaIgnored("legacy"), qt.IsTrue)
	c.Assert(opts.IsSchemaIgnored("apolon"), qt.IsFalse,
		qt.Commentf("overriding the history schema moves the implicit ignore with it"))
}
