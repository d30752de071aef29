package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/burugo/mig/drivers/schema"
)

// Introspector implements schema.Introspector for PostgreSQL.
type Introspector struct {
	DB *sqlx.DB
}

// GetTableInfo introspects the given table and returns its schema info.
// Returns (nil, nil) when the table does not exist.
func (pi *Introspector) GetTableInfo(ctx context.Context, tableName string) (*schema.TableInfo, error) {
	if pi.DB == nil {
		return nil, fmt.Errorf("postgres Introspector: DB is nil")
	}

	colQuery := `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
	colRows, err := pi.DB.QueryContext(ctx, colQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("information_schema.columns failed: %w", err)
	}
	defer colRows.Close()

	var columns []schema.ColumnInfo
	for colRows.Next() {
		var name, dataType, isNullable string
		var defaultVal sql.NullString
		if err := colRows.Scan(&name, &dataType, &isNullable, &defaultVal); err != nil {
			return nil, fmt.Errorf("scan columns: %w", err)
		}
		var defPtr *string
		if defaultVal.Valid {
			defPtr = &defaultVal.String
		}
		columns = append(columns, schema.ColumnInfo{
			Name:       name,
			DataType:   dataType,
			IsNullable: isNullable == "YES",
			Default:    defPtr,
		})
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("columns rows: %w", err)
	}
	if len(columns) == 0 {
		return nil, nil
	}

	pkQuery := `SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary`
	var pkCol string
	pkRows, err := pi.DB.QueryContext(ctx, pkQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("pg_index primary key: %w", err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		if err := pkRows.Scan(&pkCol); err != nil {
			return nil, fmt.Errorf("scan pk: %w", err)
		}
		break // composite primary keys keep only the first column here
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("pk rows: %w", err)
	}
	for i := range columns {
		if columns[i].Name == pkCol {
			columns[i].IsPrimary = true
		}
	}

	idxQuery := `SELECT i.relname AS index_name, ix.indisunique, a.attname
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE t.relname = $1 AND NOT ix.indisprimary
		ORDER BY i.relname, array_position(ix.indkey, a.attnum)`
	idxRows, err := pi.DB.QueryContext(ctx, idxQuery, tableName)
	if err != nil {
		return nil, fmt.Errorf("pg_index indexes: %w", err)
	}
	defer idxRows.Close()

	idxMap := make(map[string]*schema.IndexInfo)
	var idxOrder []string
	for idxRows.Next() {
		var name, colName string
		var unique bool
		if err := idxRows.Scan(&name, &unique, &colName); err != nil {
			return nil, fmt.Errorf("scan indexes: %w", err)
		}
		entry, ok := idxMap[name]
		if !ok {
			entry = &schema.IndexInfo{Name: name, Unique: unique}
			idxMap[name] = entry
			idxOrder = append(idxOrder, name)
		}
		entry.Columns = append(entry.Columns, colName)
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("indexes rows: %w", err)
	}

	indexes := make([]schema.IndexInfo, 0, len(idxOrder))
	for _, name := range idxOrder {
		idx := *idxMap[name]
		for _, col := range idx.Columns {
			if idx.Unique && len(idx.Columns) == 1 {
				if ci := columnByName(columns, col); ci != nil {
					ci.IsUnique = true
				}
			}
		}
		indexes = append(indexes, idx)
	}

	return &schema.TableInfo{
		Name:       strings.TrimSpace(tableName),
		Columns:    columns,
		Indexes:    indexes,
		PrimaryKey: pkCol,
	}, nil
}

func columnByName(columns []schema.ColumnInfo, name string) *schema.ColumnInfo {
	for i := range columns {
		if columns[i].Name == name {
			return &columns[i]
		}
	}
	return nil
}
