package dbschema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/apolondb/apolon/config"
	"github.com/apolondb/apolon/core/normalize"
	"github.com/apolondb/apolon/core/snapshot"
)

// SnapshotReader introspects a live database and produces the actual schema
// snapshot. Every name, type and default passes through core/normalize so
// the result compares directly against model-built snapshots.
//
// The history schema and any configured ignored schemas are excluded, as are
// the PostgreSQL system schemas. Any catalog error fails the whole read; no
// partial snapshot is returned.
type SnapshotReader struct {
	conn Conn
	opts *config.Options
}

// NewSnapshotReader creates a reader over an open connection.
func NewSnapshotReader(conn Conn, opts *config.Options) *SnapshotReader {
	if opts == nil {
		opts = config.DefaultOptions()
	}
	return &SnapshotReader{conn: conn, opts: opts}
}

type tableKey struct {
	schema string
	name   string
}

// ReadSchema reads the complete schema of every non-ignored schema.
func (r *SnapshotReader) ReadSchema(ctx context.Context) (*snapshot.SchemaSnapshot, error) {
	snap := &snapshot.SchemaSnapshot{}

	keys, err := r.readTables(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	if err := r.readColumns(ctx, snap, keys); err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	if err := r.readKeyConstraints(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to read key constraints: %w", err)
	}
	if err := r.readForeignKeys(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to read foreign keys: %w", err)
	}
	return snap, nil
}

func (r *SnapshotReader) ignored(schema string) bool {
	return r.opts.IsSchemaIgnored(schema)
}

func (r *SnapshotReader) readTables(ctx context.Context, snap *snapshot.SchemaSnapshot) (map[tableKey]bool, error) {
	query := `
		SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT LIKE 'pg\_%'
		  AND table_schema <> 'information_schema'
		ORDER BY table_schema, table_name`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	keys := make(map[tableKey]bool)
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		schema = normalize.Identifier(schema)
		name = normalize.Identifier(name)
		if r.ignored(schema) {
			continue
		}
		if err := snap.AddTable(snapshot.TableSnapshot{Schema: schema, Name: name}); err != nil {
			return nil, err
		}
		keys[tableKey{schema, name}] = true
	}
	return keys, rows.Err()
}

func (r *SnapshotReader) readColumns(ctx context.Context, snap *snapshot.SchemaSnapshot, keys map[tableKey]bool) error {
	query := `
		SELECT
			table_schema,
			table_name,
			column_name,
			data_type,
			udt_name,
			is_nullable,
			column_default,
			character_maximum_length,
			numeric_precision,
			numeric_scale,
			datetime_precision,
			is_identity,
			identity_generation,
			is_generated,
			generation_expression
		FROM information_schema.columns
		WHERE table_schema NOT LIKE 'pg\_%'
		  AND table_schema <> 'information_schema'
		ORDER BY table_schema, table_name, ordinal_position`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			schema, tableName, name string
			dataType, udtName       string
			isNullable              string
			columnDefault           sql.NullString
			charMaxLen              sql.NullInt64
			numPrecision, numScale  sql.NullInt64
			dtPrecision             sql.NullInt64
			isIdentity              string
			identityGeneration      sql.NullString
			isGenerated             string
			generationExpr          sql.NullString
		)
		err := rows.Scan(&schema, &tableName, &name, &dataType, &udtName,
			&isNullable, &columnDefault, &charMaxLen, &numPrecision, &numScale,
			&dtPrecision, &isIdentity, &identityGeneration, &isGenerated, &generationExpr)
		if err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}

		schema = normalize.Identifier(schema)
		tableName = normalize.Identifier(tableName)
		if !keys[tableKey{schema, tableName}] {
			continue
		}
		table := snap.Table(schema, tableName)

		col := buildColumn(name, dataType, udtName, isNullable, columnDefault,
			charMaxLen, numPrecision, numScale, dtPrecision,
			isIdentity, identityGeneration, isGenerated, generationExpr)
		table.Columns = append(table.Columns, col)
	}
	return rows.Err()
}

func buildColumn(name, dataType, udtName, isNullable string, columnDefault sql.NullString,
	charMaxLen, numPrecision, numScale, dtPrecision sql.NullInt64,
	isIdentity string, identityGeneration sql.NullString,
	isGenerated string, generationExpr sql.NullString,
) snapshot.ColumnSnapshot {
	spelling := dataType
	if dataType == "USER-DEFINED" || dataType == "ARRAY" {
		spelling = udtName
	}

	details := normalize.ExtractTypeDetails(spelling)
	if charMaxLen.Valid {
		details.Length = int(charMaxLen.Int64)
	}
	if numPrecision.Valid {
		details.Precision = int(numPrecision.Int64)
	}
	if numScale.Valid {
		details.Scale = int(numScale.Int64)
	}
	if dtPrecision.Valid {
		details.DateTimePrecision = int(dtPrecision.Int64)
	}

	col := snapshot.ColumnSnapshot{
		Name:              normalize.Identifier(name),
		DataType:          normalize.DataType(spelling),
		NativeType:        spelling,
		Length:            details.Length,
		Precision:         details.Precision,
		Scale:             details.Scale,
		DateTimePrecision: details.DateTimePrecision,
		Nullable:          isNullable == "YES",
	}

	if isIdentity == "YES" {
		col.Identity = true
		col.IdentityGeneration = snapshot.IdentityGeneration(identityGeneration.String)
	}
	if isGenerated == "ALWAYS" {
		col.Generated = true
		if generationExpr.Valid {
			col.GenerationExpr = normalize.Default(generationExpr.String)
		}
	}

	if columnDefault.Valid && !col.Identity {
		// Serial columns surface as a nextval() default over an owned
		// sequence; treat them like identity columns rather than carrying
		// the sequence expression as a comparable default.
		if isSequenceDefault(columnDefault.String) {
			col.Identity = true
			col.IdentityGeneration = snapshot.IdentityByDefault
		} else {
			col.Default = normalize.Default(columnDefault.String)
		}
	}
	return col
}

func (r *SnapshotReader) readKeyConstraints(ctx context.Context, snap *snapshot.SchemaSnapshot) error {
	query := `
		SELECT
			tc.table_schema,
			tc.table_name,
			tc.constraint_name,
			tc.constraint_type,
			kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_schema = tc.constraint_schema
		 AND kcu.constraint_name = tc.constraint_name
		WHERE tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')
		  AND tc.table_schema NOT LIKE 'pg\_%'
		  AND tc.table_schema <> 'information_schema'
		ORDER BY tc.table_schema, tc.table_name, tc.constraint_name, kcu.ordinal_position`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query key constraints: %w", err)
	}
	defer rows.Close()

	type keyConstraint struct {
		schema, table, name, kind string
		columns                   []string
	}
	var order []string
	byName := make(map[string]*keyConstraint)

	for rows.Next() {
		var schema, table, name, kind, column string
		if err := rows.Scan(&schema, &table, &name, &kind, &column); err != nil {
			return fmt.Errorf("failed to scan key constraint: %w", err)
		}
		id := schema + "." + name
		kc, ok := byName[id]
		if !ok {
			kc = &keyConstraint{
				schema: normalize.Identifier(schema),
				table:  normalize.Identifier(table),
				name:   normalize.Identifier(name),
				kind:   kind,
			}
			byName[id] = kc
			order = append(order, id)
		}
		kc.columns = append(kc.columns, normalize.Identifier(column))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range order {
		kc := byName[id]
		// Multi-column constraints are outside the column-local model and
		// are left invisible to the differ.
		if len(kc.columns) != 1 || r.ignored(kc.schema) {
			continue
		}
		table := snap.Table(kc.schema, kc.table)
		if table == nil {
			continue
		}
		col := table.Column(kc.columns[0])
		if col == nil {
			continue
		}
		switch kc.kind {
		case "PRIMARY KEY":
			col.PrimaryKey = true
			col.PrimaryKeyName = kc.name
		case "UNIQUE":
			col.Unique = true
			col.UniqueName = kc.name
		}
	}
	return nil
}

func (r *SnapshotReader) readForeignKeys(ctx context.Context, snap *snapshot.SchemaSnapshot) error {
	query := `
		SELECT
			tc.table_schema,
			tc.table_name,
			tc.constraint_name,
			kcu.column_name,
			ccu.table_schema,
			ccu.table_name,
			ccu.column_name,
			rc.update_rule,
			rc.delete_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_schema = tc.constraint_schema
		 AND kcu.constraint_name = tc.constraint_name
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_schema = tc.constraint_schema
		 AND rc.constraint_name = tc.constraint_name
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_schema = rc.unique_constraint_schema
		 AND ccu.constraint_name = rc.unique_constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema NOT LIKE 'pg\_%'
		  AND tc.table_schema <> 'information_schema'
		ORDER BY tc.table_schema, tc.table_name, tc.constraint_name, kcu.ordinal_position`

	rows, err := r.conn.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query foreign keys: %w", err)
	}
	defer rows.Close()

	type foreignKey struct {
		schema, table, name    string
		columns                []string
		refSchema, refTable    string
		refColumns             []string
		updateRule, deleteRule string
	}
	var order []string
	byName := make(map[string]*foreignKey)

	for rows.Next() {
		var schema, table, name, column string
		var refSchema, refTable, refColumn string
		var updateRule, deleteRule string
		err := rows.Scan(&schema, &table, &name, &column,
			&refSchema, &refTable, &refColumn, &updateRule, &deleteRule)
		if err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		id := schema + "." + name
		fk, ok := byName[id]
		if !ok {
			fk = &foreignKey{
				schema:     normalize.Identifier(schema),
				table:      normalize.Identifier(table),
				name:       normalize.Identifier(name),
				refSchema:  normalize.Identifier(refSchema),
				refTable:   normalize.Identifier(refTable),
				updateRule: updateRule,
				deleteRule: deleteRule,
			}
			byName[id] = fk
			order = append(order, id)
		}
		fk.columns = append(fk.columns, normalize.Identifier(column))
		fk.refColumns = append(fk.refColumns, normalize.Identifier(refColumn))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range order {
		fk := byName[id]
		if len(fk.columns) != 1 || r.ignored(fk.schema) {
			continue
		}
		table := snap.Table(fk.schema, fk.table)
		if table == nil {
			continue
		}
		col := table.Column(fk.columns[0])
		if col == nil {
			continue
		}
		col.ForeignKey = true
		col.ForeignKeyName = fk.name
		col.RefSchema = fk.refSchema
		col.RefTable = fk.refTable
		col.RefColumn = fk.refColumns[0]
		col.OnUpdate = fk.updateRule
		col.OnDelete = fk.deleteRule
	}
	return nil
}

// isSequenceDefault reports whether a column default is a nextval() call
// over an owned sequence, the shape serial columns produce.
func isSequenceDefault(def string) bool {
	return strings.Contains(def, "nextval(") && strings.Contains(def, "_seq")
}
