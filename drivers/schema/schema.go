// Package schema defines the value types the bundled drivers return from
// database introspection, used to answer HasColumn/HasIndex queries and to
// resolve index names for drops.
package schema

import (
	"context"
)

// ColumnInfo holds metadata for a single column in a table.
type ColumnInfo struct {
	Name       string  // Column name
	DataType   string  // Database type (e.g. INT, VARCHAR(255))
	IsNullable bool    // Whether the column is nullable
	IsPrimary  bool    // Whether this column is the primary key
	IsUnique   bool    // Whether this column has a unique constraint
	Default    *string // Default value (if any)
}

// IndexInfo holds metadata for a single index (normal or unique).
type IndexInfo struct {
	Name    string   // Index name
	Columns []string // Column names, in index order
	Unique  bool     // Is unique index
}

// TableInfo holds the actual schema info introspected from the database.
type TableInfo struct {
	Name       string       // Table name
	Columns    []ColumnInfo // All columns
	Indexes    []IndexInfo  // All indexes (including unique)
	PrimaryKey string       // Primary key column name (if any)
}

// Column returns the column with the given name, or nil.
func (ti *TableInfo) Column(name string) *ColumnInfo {
	for i := range ti.Columns {
		if ti.Columns[i].Name == name {
			return &ti.Columns[i]
		}
	}
	return nil
}

// Index returns the index with the given name, or nil.
func (ti *TableInfo) Index(name string) *IndexInfo {
	for i := range ti.Indexes {
		if ti.Indexes[i].Name == name {
			return &ti.Indexes[i]
		}
	}
	return nil
}

// IndexCovering returns the first index whose column set equals columns,
// regardless of column order, or nil.
func (ti *TableInfo) IndexCovering(columns []string) *IndexInfo {
	for i := range ti.Indexes {
		if sameColumnSet(ti.Indexes[i].Columns, columns) {
			return &ti.Indexes[i]
		}
	}
	return nil
}

func sameColumnSet(a, b []string) bool {
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

// Introspector defines the interface for database schema introspection.
// Implementations return (nil, nil) when the table does not exist.
type Introspector interface {
	GetTableInfo(ctx context.Context, tableName string) (*TableInfo, error)
}
