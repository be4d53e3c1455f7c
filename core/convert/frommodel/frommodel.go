// Package frommodel builds the desired-state schema snapshot from a
// resolved entity metadata registry.
//
// The transform is pure: it reads descriptors, runs every name, type and
// default through core/normalize and produces snapshot values. Metadata
// errors surface immediately and no partial snapshot is returned.
package frommodel

import (
	"fmt"
	"strings"

	"github.com/apolondb/apolon/core/model"
	"github.com/apolondb/apolon/core/normalize"
	"github.com/apolondb/apolon/core/snapshot"
)

// DefaultSchema is assumed when an entity does not name one.
const DefaultSchema = "public"

// Build produces the expected schema snapshot for every entity in the
// registry, in registration order.
func Build(reg *model.Registry) (*snapshot.SchemaSnapshot, error) {
	snap := &snapshot.SchemaSnapshot{}
	for _, entity := range reg.Entities() {
		table, err := buildTable(reg, entity)
		if err != nil {
			return nil, err
		}
		if err := snap.AddTable(*table); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func buildTable(reg *model.Registry, entity *model.EntityMetadata) (*snapshot.TableSnapshot, error) {
	schema := entity.Schema
	if schema == "" {
		schema = DefaultSchema
	}
	table := &snapshot.TableSnapshot{
		Schema: normalize.Identifier(schema),
		Name:   normalize.Identifier(entity.Table),
	}

	for _, col := range entity.Columns {
		cs, err := buildColumn(table.Name, entity, col)
		if err != nil {
			return nil, err
		}
		if table.Column(cs.Name) != nil {
			return nil, fmt.Errorf("entity %q: duplicate column %q", entity.Name, cs.Name)
		}
		table.Columns = append(table.Columns, *cs)
	}

	if err := applyForeignKeys(reg, entity, table); err != nil {
		return nil, err
	}
	return table, nil
}

func buildColumn(tableName string, entity *model.EntityMetadata, col model.ColumnMetadata) (*snapshot.ColumnSnapshot, error) {
	if col.DBType == "" {
		return nil, fmt.Errorf("entity %q: column %q has no database type", entity.Name, col.Name)
	}
	details := normalize.ExtractTypeDetails(col.DBType)
	cs := &snapshot.ColumnSnapshot{
		Name:              normalize.Identifier(col.Name),
		DataType:          normalize.DataType(col.DBType),
		NativeType:        col.DBType,
		Length:            details.Length,
		Precision:         details.Precision,
		Scale:             details.Scale,
		DateTimePrecision: details.DateTimePrecision,
		Nullable:          col.Nullable,
		Unique:            col.Unique,
	}
	if col.Default != "" {
		cs.Default = normalize.Default(col.Default)
	}
	if cs.Unique {
		cs.UniqueName = fmt.Sprintf("uq_%s_%s", tableName, cs.Name)
	}
	if entity.PrimaryKey.Column == col.Name {
		cs.PrimaryKey = true
		cs.PrimaryKeyName = fmt.Sprintf("pk_%s", tableName)
		cs.Nullable = false
		if entity.PrimaryKey.AutoIncrement {
			cs.Identity = true
			cs.IdentityGeneration = snapshot.IdentityByDefault
		}
	}
	return cs, nil
}

func applyForeignKeys(reg *model.Registry, entity *model.EntityMetadata, table *snapshot.TableSnapshot) error {
	for _, fk := range entity.ForeignKeys {
		ref, err := reg.Resolve(fk.RefEntity)
		if err != nil {
			return fmt.Errorf("entity %q: foreign key on %q: %w", entity.Name, fk.Column, err)
		}
		refSchema := ref.Schema
		if refSchema == "" {
			refSchema = DefaultSchema
		}
		refColumn := fk.RefColumn
		if refColumn == "" {
			refColumn = ref.PrimaryKey.Column
		}

		col := table.Column(normalize.Identifier(fk.Column))
		if col == nil {
			return fmt.Errorf("entity %q: foreign key column %q is not declared", entity.Name, fk.Column)
		}
		col.ForeignKey = true
		col.ForeignKeyName = fmt.Sprintf("fk_%s_%s", table.Name, col.Name)
		col.RefSchema = normalize.Identifier(refSchema)
		col.RefTable = normalize.Identifier(ref.Table)
		col.RefColumn = normalize.Identifier(refColumn)
		col.OnUpdate = normalizeRule("")
		col.OnDelete = normalizeRule(fk.OnDelete)
	}
	return nil
}

// normalizeRule canonicalizes a referential action; the catalog reports
// "NO ACTION" where models usually leave the rule empty.
func normalizeRule(rule string) string {
	rule = strings.ToUpper(strings.TrimSpace(rule))
	if rule == "" {
		return "NO ACTION"
	}
	return rule
}
