// Package ddl holds the dialect-independent pieces of DDL generation shared
// by the bundled drivers: identifier quoting, column definition rendering and
// the default index naming convention.
package ddl

import (
	"fmt"
	"strings"

	"github.com/burugo/mig"
)

// Dialector abstracts the per-dialect syntax details the shared rendering
// needs.
type Dialector interface {
	Quote(identifier string) string
	Placeholder(index int) string
}

// QuoteAll quotes every identifier in the list.
func QuoteAll(d Dialector, identifiers []string) []string {
	quoted := make([]string, len(identifiers))
	for i, id := range identifiers {
		quoted[i] = d.Quote(id)
	}
	return quoted
}

// ColumnSQL renders "name TYPE [NOT NULL] [DEFAULT ...]" given the already
// dialect-mapped type SQL. Columns are NOT NULL unless Options.Null is set.
func ColumnSQL(d Dialector, typeSQL string, col *mig.Column) string {
	parts := []string{d.Quote(col.Name), typeSQL}
	if !col.Options.Null {
		parts = append(parts, "NOT NULL")
	}
	if col.Options.Default != nil {
		parts = append(parts, "DEFAULT "+DefaultSQL(col.Options.Default))
	}
	return strings.Join(parts, " ")
}

// DefaultSQL renders a literal default value. Strings are quoted with
// embedded quotes doubled; everything else is formatted verbatim.
func DefaultSQL(value any) string {
	switch v := value.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IndexName returns the explicit index name when one was set, otherwise the
// conventional default: idx_<table>_<col1>_<colN>, or uniq_... for unique
// indexes.
func IndexName(tableName string, idx *mig.Index) string {
	if idx.Options.Name != "" {
		return idx.Options.Name
	}
	prefix := "idx"
	if idx.Options.Unique {
		prefix = "uniq"
	}
	return fmt.Sprintf("%s_%s_%s", prefix, tableName, strings.Join(idx.Columns, "_"))
}

// CreateIndexSQL renders a CREATE [UNIQUE] INDEX statement for the index.
func CreateIndexSQL(d Dialector, tableName string, idx *mig.Index, ifNotExists bool) string {
	stmt := "CREATE"
	if idx.Options.Unique {
		stmt += " UNIQUE"
	}
	stmt += " INDEX"
	if ifNotExists {
		stmt += " IF NOT EXISTS"
	}
	return fmt.Sprintf("%s %s ON %s (%s)",
		stmt,
		d.Quote(IndexName(tableName, idx)),
		d.Quote(tableName),
		strings.Join(QuoteAll(d, idx.Columns), ", "))
}

// SameColumns reports whether two column lists contain the same names,
// regardless of order.
func SameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, col := range a {
		seen[col]++
	}
	for _, col := range b {
		seen[col]--
		if seen[col] < 0 {
			return false
		}
	}
	return true
}
