package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/burugo/mig/drivers/schema"
)

// Introspector implements schema.Introspector for MySQL.
type Introspector struct {
	DB *sqlx.DB
}

// GetTableInfo introspects the given table and returns its schema info.
// Returns (nil, nil) when the table does not exist.
func (mi *Introspector) GetTableInfo(ctx context.Context, tableName string) (*schema.TableInfo, error) {
	if mi.DB == nil {
		return nil, fmt.Errorf("mysql Introspector: DB is nil")
	}

	var exists int
	err := mi.DB.GetContext(ctx, &exists,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", tableName)
	if err != nil {
		return nil, fmt.Errorf("information_schema.tables failed: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	colRows, err := mi.DB.QueryContext(ctx, "SHOW COLUMNS FROM "+dialector.Quote(tableName))
	if err != nil {
		return nil, fmt.Errorf("SHOW COLUMNS failed: %w", err)
	}
	defer colRows.Close()

	var columns []schema.ColumnInfo
	var pkCol string
	for colRows.Next() {
		var field, colType, nullStr, key, extra string
		var def sql.NullString
		if err := colRows.Scan(&field, &colType, &nullStr, &key, &def, &extra); err != nil {
			return nil, fmt.Errorf("scan SHOW COLUMNS: %w", err)
		}
		isPrimary := key == "PRI"
		var defPtr *string
		if def.Valid {
			defPtr = &def.String
		}
		if isPrimary {
			pkCol = field
		}
		columns = append(columns, schema.ColumnInfo{
			Name:       field,
			DataType:   colType,
			IsNullable: nullStr == "YES",
			IsPrimary:  isPrimary,
			IsUnique:   key == "UNI",
			Default:    defPtr,
		})
	}
	if err := colRows.Err(); err != nil {
		return nil, fmt.Errorf("SHOW COLUMNS rows: %w", err)
	}

	idxRows, err := mi.DB.QueryContext(ctx,
		"SELECT Key_name, Non_unique, Column_name FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? ORDER BY Key_name, Seq_in_index", tableName)
	if err != nil {
		return nil, fmt.Errorf("information_schema.statistics failed: %w", err)
	}
	defer idxRows.Close()

	idxMap := make(map[string]*schema.IndexInfo)
	var idxOrder []string
	for idxRows.Next() {
		var keyName, colName string
		var nonUnique int
		if err := idxRows.Scan(&keyName, &nonUnique, &colName); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		if keyName == "" || colName == "" || keyName == "PRIMARY" {
			continue
		}
		entry, ok := idxMap[keyName]
		if !ok {
			entry = &schema.IndexInfo{Name: keyName, Unique: nonUnique == 0}
			idxMap[keyName] = entry
			idxOrder = append(idxOrder, keyName)
		}
		entry.Columns = append(entry.Columns, colName)
	}
	if err := idxRows.Err(); err != nil {
		return nil, fmt.Errorf("statistics rows: %w", err)
	}

	indexes := make([]schema.IndexInfo, 0, len(idxOrder))
	for _, name := range idxOrder {
		indexes = append(indexes, *idxMap[name])
	}

	return &schema.TableInfo{
		Name:       tableName,
		Columns:    columns,
		Indexes:    indexes,
		PrimaryKey: pkCol,
	}, nil
}
