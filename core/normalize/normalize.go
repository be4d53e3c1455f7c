// Package normalize provides canonicalization helpers for schema comparison.
//
// Every producer of a schema snapshot (the model builder and the database
// reader) passes identifiers, type names and default expressions through this
// package so that two snapshots of an equivalent schema compare equal no
// matter how each side phrased them. PostgreSQL reports "character varying"
// where a model may declare "VARCHAR(255)", and stores defaults like
// "('active'::text)" where a model says "active"; after normalization both
// spellings collapse to the same canonical form.
//
// All functions are pure and idempotent: normalize(normalize(x)) == normalize(x).
package normalize

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// foldCaser performs Unicode case folding so identifiers compare equal
// regardless of how the source cased them.
var foldCaser = cases.Fold()

// typeAliases maps equivalent PostgreSQL type spellings to one canonical
// form. The canonical names follow pg_catalog's internal (udt) names.
var typeAliases = map[string]string{
	"character varying":           "varchar",
	"char varying":                "varchar",
	"character":                   "char",
	"bpchar":                      "char",
	"integer":                     "int4",
	"int":                         "int4",
	"serial":                      "int4",
	"smallint":                    "int2",
	"smallserial":                 "int2",
	"bigint":                      "int8",
	"bigserial":                   "int8",
	"double precision":            "float8",
	"float":                       "float8",
	"real":                        "float4",
	"boolean":                     "bool",
	"decimal":                     "numeric",
	"timestamp without time zone": "timestamp",
	"timestamp with time zone":    "timestamptz",
	"time without time zone":      "time",
	"time with time zone":         "timetz",
}

// Identifier canonicalizes a schema, table, column or constraint name.
// It trims whitespace, strips one layer of double-quote quoting and case
// folds the result.
func Identifier(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return foldCaser.String(s)
}

// DataType canonicalizes a data type spelling to its base type name.
// The parenthesized parameter list, if any, is dropped; use
// ExtractTypeDetails to recover length, precision and scale.
func DataType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if idx := strings.IndexByte(s, '('); idx >= 0 {
		// Keep a possible "with/without time zone" suffix after the
		// parameter list, e.g. "timestamp(3) with time zone".
		suffix := ""
		if end := strings.IndexByte(s[idx:], ')'); end >= 0 {
			suffix = s[idx+end+1:]
		}
		s = strings.TrimSpace(s[:idx] + suffix)
	}
	s = strings.Join(strings.Fields(s), " ")
	if alias, ok := typeAliases[s]; ok {
		return alias
	}
	return s
}

// TypeDetails carries the size parameters of a column type. Zero values
// mean "not applicable" for the base type in question.
type TypeDetails struct {
	Length            int
	Precision         int
	Scale             int
	DateTimePrecision int
}

// ExtractTypeDetails parses the parenthesized parameter list of a type
// spelling and returns length/precision/scale for the base type. When
// parameters are omitted the PostgreSQL defaults are filled in, so that a
// default-rendered model type and a default-rendered catalog type produce
// the same tuple: a bare "varchar" gets length 255, a bare "int4" gets
// precision 32 and scale 0.
func ExtractTypeDetails(s string) TypeDetails {
	base := DataType(s)
	params := typeParams(s)

	var d TypeDetails
	switch base {
	case "varchar":
		d.Length = 255
		if len(params) > 0 {
			d.Length = params[0]
		}
	case "char":
		d.Length = 1
		if len(params) > 0 {
			d.Length = params[0]
		}
	case "bit", "varbit":
		d.Length = 1
		if len(params) > 0 {
			d.Length = params[0]
		}
	case "numeric":
		// A bare numeric is unconstrained in PostgreSQL; both sides
		// normalize to the zero tuple in that case.
		if len(params) > 0 {
			d.Precision = params[0]
		}
		if len(params) > 1 {
			d.Scale = params[1]
		}
	case "int2":
		d.Precision = 16
	case "int4":
		d.Precision = 32
	case "int8":
		d.Precision = 64
	case "float4":
		d.Precision = 24
	case "float8":
		d.Precision = 53
	case "timestamp", "timestamptz", "time", "timetz":
		d.DateTimePrecision = 6
		if len(params) > 0 {
			d.DateTimePrecision = params[0]
		}
	}
	return d
}

// typeParams returns the integer parameters inside the first parenthesized
// group of a type spelling, e.g. "numeric(10,2)" -> [10 2].
func typeParams(s string) []int {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return nil
	}
	closing := strings.IndexByte(s[open:], ')')
	if closing < 0 {
		return nil
	}
	var params []int
	for _, part := range strings.Split(s[open+1:open+closing], ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil
		}
		params = append(params, n)
	}
	return params
}

// nowEquivalents are default expressions that all mean "current timestamp"
// and fold to the canonical now() token.
var nowEquivalents = map[string]bool{
	"now()":                   true,
	"current_timestamp":       true,
	"current_timestamp()":     true,
	"transaction_timestamp()": true,
}

// Default canonicalizes a column default expression so that the catalog
// rendering and the model rendering of the same default compare equal.
// PostgreSQL stores "'active'::text" where a model declares "active", and
// may wrap expressions in redundant parentheses.
//
// The steps, in order: trim, strip fully wrapping parentheses, strip
// trailing ::type casts that sit outside string literals, unquote a plain
// string literal, and fold current-timestamp spellings to "now()".
func Default(s string) string {
	s = strings.TrimSpace(s)
	for {
		next := stripWrappingParens(s)
		next = stripTrailingCast(next)
		next = strings.TrimSpace(next)
		if next == s {
			break
		}
		s = next
	}
	s = unquoteLiteral(s)
	if nowEquivalents[strings.ToLower(s)] {
		return "now()"
	}
	return s
}

// stripWrappingParens removes an outer pair of parentheses only when it
// wraps the entire expression. "(1 + 2)" becomes "1 + 2" but
// "(1) + (2)" is left alone.
func stripWrappingParens(s string) string {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return s
	}
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\'':
			inString = !inString
		case inString:
		case s[i] == '(':
			depth++
		case s[i] == ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s
			}
		}
	}
	if depth != 0 {
		return s
	}
	return strings.TrimSpace(s[1 : len(s)-1])
}

// stripTrailingCast removes a trailing ::type cast when the cast operator
// sits outside any string literal. Only the last cast is removed per call;
// Default loops until the input is stable, which handles stacked casts
// like "'x'::text::varchar".
func stripTrailingCast(s string) string {
	castAt := -1
	inString := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			inString = !inString
			continue
		}
		if !inString && s[i] == ':' && i+1 < len(s) && s[i+1] == ':' {
			castAt = i
			i++
		}
	}
	if castAt < 0 {
		return s
	}
	if !isTypeSuffix(s[castAt+2:]) {
		return s
	}
	return strings.TrimSpace(s[:castAt])
}

// isTypeSuffix reports whether s looks like a type name, optionally schema
// qualified and optionally parameterized, e.g. "public.status" or
// "numeric(10,2)" or "character varying".
func isTypeSuffix(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return false
		}
		if typeParams(s) == nil {
			return false
		}
		s = strings.TrimSpace(s[:open])
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_', r == '.', r == ' ', r == '"':
		default:
			return false
		}
	}
	return true
}

// unquoteLiteral unwraps a complete single-quoted string literal and
// un-doubles embedded quotes. Inputs that are not a single literal, such
// as "'a' || 'b'", are returned unchanged.
func unquoteLiteral(s string) string {
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return s
	}
	var b strings.Builder
	for i := 1; i < len(s)-1; i++ {
		if s[i] != '\'' {
			b.WriteByte(s[i])
			continue
		}
		// A doubled quote is an escaped quote; a lone one means the
		// literal ends before the final character.
		if i+1 < len(s)-1 && s[i+1] == '\'' {
			b.WriteByte('\'')
			i++
			continue
		}
		return s
	}
	return b.String()
}
