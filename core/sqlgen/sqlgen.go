// Package sqlgen compiles migration operations to PostgreSQL DDL.
//
// Each operation kind maps to exactly one statement; the mapping is a pure
// function dispatching on the operation type with no side effects.
// Identifiers and literals are quoted with lib/pq's quoting helpers.
package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/apolondb/apolon/core/operation"
)

// Compile renders one operation as one DDL statement.
func Compile(op operation.MigrationOperation) (string, error) {
	switch op.Type {
	case operation.CreateSchema:
		return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(op.Schema)), nil
	case operation.CreateTable:
		return fmt.Sprintf("CREATE TABLE %s ()", tableRef(op)), nil
	case operation.DropTable:
		return fmt.Sprintf("DROP TABLE %s CASCADE", tableRef(op)), nil
	case operation.AddColumn:
		return compileAddColumn(op), nil
	case operation.DropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", tableRef(op), pq.QuoteIdentifier(op.Column)), nil
	case operation.AlterColumnType:
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s",
			tableRef(op), pq.QuoteIdentifier(op.Column), op.TypeSQL()), nil
	case operation.AlterNullability:
		verb := "SET"
		if op.Nullable {
			verb = "DROP"
		}
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s NOT NULL",
			tableRef(op), pq.QuoteIdentifier(op.Column), verb), nil
	case operation.SetDefault:
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s",
			tableRef(op), pq.QuoteIdentifier(op.Column), op.DefaultSQL), nil
	case operation.DropDefault:
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT",
			tableRef(op), pq.QuoteIdentifier(op.Column)), nil
	case operation.AddUnique:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)",
			tableRef(op), pq.QuoteIdentifier(op.Constraint), pq.QuoteIdentifier(op.Column)), nil
	case operation.DropConstraint:
		return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s",
			tableRef(op), pq.QuoteIdentifier(op.Constraint)), nil
	case operation.AddForeignKey:
		return compileAddForeignKey(op), nil
	default:
		return "", fmt.Errorf("unsupported operation type %q", op.Type)
	}
}

// CompileAll renders an operation list in order.
func CompileAll(ops []operation.MigrationOperation) ([]string, error) {
	statements := make([]string, 0, len(ops))
	for _, op := range ops {
		stmt, err := Compile(op)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

func tableRef(op operation.MigrationOperation) string {
	return pq.QuoteIdentifier(op.Schema) + "." + pq.QuoteIdentifier(op.Table)
}

func compileAddColumn(op operation.MigrationOperation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", tableRef(op), pq.QuoteIdentifier(op.Column), op.TypeSQL())
	if op.Identity {
		mode := "BY DEFAULT"
		if op.IdentityAlways {
			mode = "ALWAYS"
		}
		fmt.Fprintf(&b, " GENERATED %s AS IDENTITY", mode)
	}
	if !op.Nullable {
		b.WriteString(" NOT NULL")
	}
	if op.DefaultSQL != "" {
		fmt.Fprintf(&b, " DEFAULT %s", op.DefaultSQL)
	}
	if op.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	return b.String()
}

func compileAddForeignKey(op operation.MigrationOperation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s (%s)",
		tableRef(op), pq.QuoteIdentifier(op.Constraint), pq.QuoteIdentifier(op.Column),
		pq.QuoteIdentifier(op.RefSchema), pq.QuoteIdentifier(op.RefTable), pq.QuoteIdentifier(op.RefColumn))
	if op.OnDelete != "" && op.OnDelete != "NO ACTION" {
		fmt.Fprintf(&b, " ON DELETE %s", op.OnDelete)
	}
	return b.String()
}

// DefaultExprSQL turns a normalized default value into render-ready SQL.
// Numbers, booleans and function expressions pass through verbatim; plain
// string literals are quoted with pq.QuoteLiteral.
func DefaultExprSQL(normalized string) string {
	if normalized == "" {
		return ""
	}
	lower := strings.ToLower(normalized)
	if lower == "true" || lower == "false" || lower == "null" {
		return lower
	}
	if _, err := strconv.ParseFloat(normalized, 64); err == nil {
		return normalized
	}
	// Function calls and other expressions keep their spelling.
	if strings.ContainsAny(normalized, "()") {
		return normalized
	}
	return pq.QuoteLiteral(normalized)
}
