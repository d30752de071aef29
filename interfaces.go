// interfaces.go
// Core interfaces for mig: Adapter, Conn, Tx.
// These are public and intended for use by users and driver developers.

package mig

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Adapter is the dialect-specific executor of schema operations. A Table
// treats its adapter as the single source of truth for "does X already
// exist" and "apply X now"; it never interprets, retries or suppresses
// adapter errors.
//
// Table values are passed by reference to AddColumn, AddIndex and
// CreateTable so the adapter can read full context (name, options, pending
// changes) when emitting SQL.
type Adapter interface {
	HasTable(ctx context.Context, name string) (bool, error)
	DropTable(ctx context.Context, name string) error
	RenameTable(ctx context.Context, oldName, newName string) error

	// ColumnTypes returns the column type vocabulary this adapter supports.
	// Tables validate staged columns against it at staging time.
	ColumnTypes() []ColumnType

	HasColumn(ctx context.Context, tableName, columnName string) (bool, error)
	AddColumn(ctx context.Context, table *Table, column *Column) error
	DropColumn(ctx context.Context, tableName, columnName string) error
	RenameColumn(ctx context.Context, tableName, oldName, newName string) error
	ChangeColumn(ctx context.Context, tableName, oldName string, column *Column) error

	HasIndex(ctx context.Context, tableName string, columns []string, opts *IndexOptions) (bool, error)
	AddIndex(ctx context.Context, table *Table, index *Index) error
	DropIndex(ctx context.Context, tableName string, columns []string, opts *IndexOptions) error

	CreateTable(ctx context.Context, table *Table) error
}

// Conn is the raw statement-execution surface the bundled drivers expose
// alongside Adapter. The migration runner drives script files through it.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	DB() *sqlx.DB
	DialectName() string
}

// Tx is the transaction surface the migration runner uses when a driver
// supports transactional DDL.
type Tx interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Commit() error
	Rollback() error
}
