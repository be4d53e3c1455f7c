// Package model defines the resolved entity metadata the engine consumes.
//
// Metadata is constructed explicitly by the caller and collected in a
// Registry owned by the calling context; the engine never inspects Go types
// through reflection. A Registry is built once at startup and treated as
// immutable afterwards.
package model

import (
	"errors"
	"fmt"
)

// Validation errors raised before any snapshot or database work begins.
var (
	ErrNoTableName   = errors.New("entity has no table name")
	ErrNoColumns     = errors.New("entity has no columns")
	ErrNoPrimaryKey  = errors.New("entity has no primary key")
	ErrUnknownEntity = errors.New("unknown entity")
)

// EntityMetadata is the fully resolved description of one model type.
type EntityMetadata struct {
	// Name identifies the entity within the registry; foreign keys
	// reference other entities by this name.
	Name string

	Schema string
	Table  string

	// Columns are kept in declaration order so generated DDL is
	// deterministic and readable.
	Columns []ColumnMetadata

	PrimaryKey  PrimaryKeyMetadata
	ForeignKeys []ForeignKeyMetadata
}

// ColumnMetadata describes one mapped column.
type ColumnMetadata struct {
	Name     string
	DBType   string // provider type spelling, e.g. "VARCHAR(100)"
	Nullable bool

	// Default is a literal value unless DefaultIsExpr is set, in which
	// case it is SQL passed through verbatim (e.g. "now()").
	Default       string
	DefaultIsExpr bool

	Unique bool
}

// PrimaryKeyMetadata names the primary key column of an entity.
type PrimaryKeyMetadata struct {
	Column        string
	AutoIncrement bool
}

// ForeignKeyMetadata describes a reference from a local column to another
// registered entity.
type ForeignKeyMetadata struct {
	Column    string
	RefEntity string // registry name of the referenced entity
	RefColumn string
	OnDelete  string // CASCADE, RESTRICT, SET NULL, NO ACTION; empty means NO ACTION
}

// Validate checks that the metadata is complete enough to build a snapshot
// from. It fails fast; no partial result is produced downstream.
func (e *EntityMetadata) Validate() error {
	if e.Table == "" {
		return fmt.Errorf("entity %q: %w", e.Name, ErrNoTableName)
	}
	if len(e.Columns) == 0 {
		return fmt.Errorf("entity %q: %w", e.Name, ErrNoColumns)
	}
	if e.PrimaryKey.Column == "" {
		return fmt.Errorf("entity %q: %w", e.Name, ErrNoPrimaryKey)
	}
	if e.Column(e.PrimaryKey.Column) == nil {
		return fmt.Errorf("entity %q: primary key column %q is not declared", e.Name, e.PrimaryKey.Column)
	}
	for _, fk := range e.ForeignKeys {
		if e.Column(fk.Column) == nil {
			return fmt.Errorf("entity %q: foreign key column %q is not declared", e.Name, fk.Column)
		}
	}
	return nil
}

// Column returns the column with the given name, or nil.
func (e *EntityMetadata) Column(name string) *ColumnMetadata {
	for i := range e.Columns {
		if e.Columns[i].Name == name {
			return &e.Columns[i]
		}
	}
	return nil
}

// Registry holds the entity descriptors for one engine instance. Its
// lifetime is the engine's lifetime; there is no process-wide cache.
type Registry struct {
	entities []*EntityMetadata
	byName   map[string]*EntityMetadata
}

// NewRegistry creates a registry from the given entities, validating each.
func NewRegistry(entities ...*EntityMetadata) (*Registry, error) {
	r := &Registry{byName: make(map[string]*EntityMetadata)}
	for _, e := range entities {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and adds an entity. Registration order is preserved
// and drives table ordering in generated snapshots.
func (r *Registry) Register(e *EntityMetadata) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if _, exists := r.byName[e.Name]; exists {
		return fmt.Errorf("entity %q registered twice", e.Name)
	}
	r.entities = append(r.entities, e)
	r.byName[e.Name] = e
	return nil
}

// Entities returns the registered entities in registration order.
func (r *Registry) Entities() []*EntityMetadata {
	return r.entities
}

// Resolve returns the entity registered under name.
func (r *Registry) Resolve(name string) (*EntityMetadata, error) {
	e, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return e, nil
}
