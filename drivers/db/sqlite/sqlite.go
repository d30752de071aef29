package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/burugo/mig"
	"github.com/burugo/mig/drivers/schema"
	"github.com/burugo/mig/internal/ddl"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Dialector implements ddl.Dialector for SQLite.
type Dialector struct{}

func (Dialector) Quote(identifier string) string {
	return `"` + identifier + `"`
}

func (Dialector) Placeholder(_ int) string {
	return "?"
}

var dialector = Dialector{}

// columnTypes is the column vocabulary this adapter advertises.
var columnTypes = []mig.ColumnType{
	mig.TypePrimaryKey,
	mig.TypeString,
	mig.TypeText,
	mig.TypeInteger,
	mig.TypeFloat,
	mig.TypeDecimal,
	mig.TypeDateTime,
	mig.TypeTimestamp,
	mig.TypeTime,
	mig.TypeDate,
	mig.TypeBinary,
	mig.TypeBoolean,
}

// typeSQL maps a column to its SQLite type SQL, folding in limit and
// precision/scale. primary_key is handled separately in columnSQL.
func typeSQL(col *mig.Column) (string, error) {
	switch col.Type {
	case mig.TypeString:
		if col.Options.Limit > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Options.Limit), nil
		}
		return "VARCHAR", nil
	case mig.TypeText:
		return "TEXT", nil
	case mig.TypeInteger:
		return "INTEGER", nil
	case mig.TypeFloat:
		return "REAL", nil
	case mig.TypeDecimal:
		if col.Options.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", col.Options.Precision, col.Options.Scale), nil
		}
		return "DECIMAL", nil
	case mig.TypeDateTime, mig.TypeTimestamp:
		return "DATETIME", nil
	case mig.TypeTime:
		return "TIME", nil
	case mig.TypeDate:
		return "DATE", nil
	case mig.TypeBinary:
		return "BLOB", nil
	case mig.TypeBoolean:
		return "BOOLEAN", nil
	default:
		return "", fmt.Errorf("sqlite: unsupported column type %q", col.Type)
	}
}

// columnSQL renders a full column definition. SQLite only auto-increments
// INTEGER PRIMARY KEY columns, so primary_key and identity integers collapse
// onto that form.
func columnSQL(col *mig.Column) (string, error) {
	if col.Type == mig.TypePrimaryKey || (col.Options.Identity && col.Type == mig.TypeInteger) {
		return dialector.Quote(col.Name) + " INTEGER PRIMARY KEY AUTOINCREMENT", nil
	}
	base, err := typeSQL(col)
	if err != nil {
		return "", err
	}
	return ddl.ColumnSQL(dialector, base, col), nil
}

// Adapter implements mig.Adapter and mig.Conn for SQLite.
type Adapter struct {
	db      *sqlx.DB
	dsn     string
	closeMx sync.Mutex
	closed  bool
}

var (
	_ mig.Adapter = (*Adapter)(nil)
	_ mig.Conn    = (*Adapter)(nil)
)

// NewAdapter opens a SQLite connection pool and pings it.
func NewAdapter(dsn string) (*Adapter, error) {
	log.Printf("Initializing SQLite adapter with DSN: %s", dsn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	log.Println("SQLite adapter initialized successfully.")
	return &Adapter{db: db, dsn: dsn}, nil
}

// --- Conn surface ---

// Exec executes a statement that doesn't return rows.
func (a *Adapter) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if a.isClosed() {
		return nil, fmt.Errorf("adapter is closed")
	}
	start := time.Now()
	result, err := a.db.ExecContext(ctx, query, args...)
	duration := time.Since(start)
	if err != nil {
		log.Printf("DB Exec Error: %s [%v] (%s) - %v", query, args, duration, err)
		return nil, fmt.Errorf("sqlite ExecContext error: %w", err)
	}
	log.Printf("DB Exec: %s [%v] (%s)", query, args, duration)
	return result, nil
}

// Select executes a query and scans the results into a slice.
func (a *Adapter) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if a.isClosed() {
		return fmt.Errorf("adapter is closed")
	}
	start := time.Now()
	err := a.db.SelectContext(ctx, dest, query, args...)
	duration := time.Since(start)
	if err != nil {
		log.Printf("DB Select Error: %s [%v] (%s) - %v", query, args, duration, err)
		return fmt.Errorf("sqlite Select error: %w", err)
	}
	log.Printf("DB Select: %s [%v] (%s)", query, args, duration)
	return nil
}

// BeginTx starts a new database transaction.
func (a *Adapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (mig.Tx, error) {
	if a.isClosed() {
		return nil, fmt.Errorf("adapter is closed")
	}
	tx, err := a.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin sqlite transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Close closes the connection pool.
func (a *Adapter) Close() error {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	if a.closed {
		return nil
	}
	log.Println("SQLite adapter closed.")
	a.closed = true
	return a.db.Close()
}

func (a *Adapter) isClosed() bool {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	return a.closed
}

// DB returns the underlying *sqlx.DB for advanced use cases.
func (a *Adapter) DB() *sqlx.DB {
	return a.db
}

func (a *Adapter) DialectName() string {
	return "sqlite"
}

// Introspector returns a schema introspector bound to this pool.
func (a *Adapter) Introspector() schema.Introspector {
	return &Introspector{DB: a.db}
}

// --- Tx wrapper ---

// Tx wraps a sqlx.Tx to implement mig.Tx.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		log.Printf("DB Tx Exec Error: %s [%v] - %v", query, args, err)
		return nil, fmt.Errorf("sqlite Tx ExecContext error: %w", err)
	}
	return result, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit error: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return err
		}
		return fmt.Errorf("sqlite rollback error: %w", err)
	}
	return nil
}

// --- Adapter (DDL) surface ---

func (a *Adapter) HasTable(ctx context.Context, name string) (bool, error) {
	if a.isClosed() {
		return false, fmt.Errorf("adapter is closed")
	}
	var count int
	err := a.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, fmt.Errorf("sqlite HasTable error: %w", err)
	}
	return count > 0, nil
}

func (a *Adapter) DropTable(ctx context.Context, name string) error {
	_, err := a.Exec(ctx, "DROP TABLE "+dialector.Quote(name))
	return err
}

func (a *Adapter) RenameTable(ctx context.Context, oldName, newName string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		dialector.Quote(oldName), dialector.Quote(newName)))
	return err
}

func (a *Adapter) ColumnTypes() []mig.ColumnType {
	return append([]mig.ColumnType(nil), columnTypes...)
}

func (a *Adapter) HasColumn(ctx context.Context, tableName, columnName string) (bool, error) {
	info, err := a.Introspector().GetTableInfo(ctx, tableName)
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}
	return info.Column(columnName) != nil, nil
}

func (a *Adapter) AddColumn(ctx context.Context, table *mig.Table, column *mig.Column) error {
	// The After ordering hint is ignored: SQLite always appends columns.
	def, err := columnSQL(column)
	if err != nil {
		return err
	}
	_, err = a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
		dialector.Quote(table.Name()), def))
	return err
}

func (a *Adapter) DropColumn(ctx context.Context, tableName, columnName string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		dialector.Quote(tableName), dialector.Quote(columnName)))
	return err
}

func (a *Adapter) RenameColumn(ctx context.Context, tableName, oldName, newName string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		dialector.Quote(tableName), dialector.Quote(oldName), dialector.Quote(newName)))
	return err
}

// ChangeColumn redefines a column via the copy-rebuild dance: SQLite has no
// ALTER COLUMN, so a shadow table with the new definition is created, data is
// copied across, and the shadow replaces the original. Indexes are recreated
// on the rebuilt table since they drop with it.
func (a *Adapter) ChangeColumn(ctx context.Context, tableName, oldName string, column *mig.Column) error {
	info, err := a.Introspector().GetTableInfo(ctx, tableName)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("sqlite ChangeColumn: table %q does not exist", tableName)
	}
	if info.Column(oldName) == nil {
		return fmt.Errorf("sqlite ChangeColumn: column %q does not exist in table %q", oldName, tableName)
	}

	newDef, err := columnSQL(column)
	if err != nil {
		return err
	}

	var defs, oldCols, newCols []string
	for _, ci := range info.Columns {
		if ci.Name == oldName {
			defs = append(defs, newDef)
			oldCols = append(oldCols, dialector.Quote(oldName))
			newCols = append(newCols, dialector.Quote(column.Name))
			continue
		}
		defs = append(defs, existingColumnSQL(ci, info.PrimaryKey))
		oldCols = append(oldCols, dialector.Quote(ci.Name))
		newCols = append(newCols, dialector.Quote(ci.Name))
	}

	shadow := tableName + "_mig_rebuild"
	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s (%s)", dialector.Quote(shadow), strings.Join(defs, ", ")),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			dialector.Quote(shadow), strings.Join(newCols, ", "),
			strings.Join(oldCols, ", "), dialector.Quote(tableName)),
		fmt.Sprintf("DROP TABLE %s", dialector.Quote(tableName)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", dialector.Quote(shadow), dialector.Quote(tableName)),
	}
	for _, idx := range info.Indexes {
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			if c == oldName {
				c = column.Name
			}
			cols[i] = c
		}
		rebuilt := &mig.Index{Columns: cols, Options: mig.IndexOptions{Unique: idx.Unique, Name: idx.Name}}
		stmts = append(stmts, ddl.CreateIndexSQL(dialector, tableName, rebuilt, true))
	}

	tx, err := a.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite ChangeColumn rebuild: %w", err)
		}
	}
	return tx.Commit()
}

// existingColumnSQL re-renders an introspected column definition for the
// rebuild. The AUTOINCREMENT keyword is not recoverable from PRAGMA output;
// an INTEGER PRIMARY KEY still auto-assigns rowids without it.
func existingColumnSQL(ci schema.ColumnInfo, pkName string) string {
	parts := []string{dialector.Quote(ci.Name), ci.DataType}
	if ci.Name == pkName {
		parts = append(parts, "PRIMARY KEY")
	} else if !ci.IsNullable {
		parts = append(parts, "NOT NULL")
	}
	if ci.Default != nil {
		parts = append(parts, "DEFAULT "+*ci.Default)
	}
	return strings.Join(parts, " ")
}

func (a *Adapter) HasIndex(ctx context.Context, tableName string, columns []string, opts *mig.IndexOptions) (bool, error) {
	info, err := a.Introspector().GetTableInfo(ctx, tableName)
	if err != nil {
		return false, err
	}
	if info == nil {
		return false, nil
	}
	if opts != nil && opts.Name != "" {
		return info.Index(opts.Name) != nil, nil
	}
	return info.IndexCovering(columns) != nil, nil
}

func (a *Adapter) AddIndex(ctx context.Context, table *mig.Table, index *mig.Index) error {
	_, err := a.Exec(ctx, ddl.CreateIndexSQL(dialector, table.Name(), index, true))
	return err
}

func (a *Adapter) DropIndex(ctx context.Context, tableName string, columns []string, opts *mig.IndexOptions) error {
	name := ""
	if opts != nil {
		name = opts.Name
	}
	if name == "" {
		info, err := a.Introspector().GetTableInfo(ctx, tableName)
		if err != nil {
			return err
		}
		if info != nil {
			if idx := info.IndexCovering(columns); idx != nil {
				name = idx.Name
			}
		}
	}
	if name == "" {
		// No matching index on the live table; fall back to the conventional
		// default name so the drop stays idempotent.
		idx := &mig.Index{Columns: columns}
		if opts != nil {
			idx.Options = *opts
		}
		name = ddl.IndexName(tableName, idx)
	}
	_, err := a.Exec(ctx, "DROP INDEX IF EXISTS "+dialector.Quote(name))
	return err
}

func (a *Adapter) CreateTable(ctx context.Context, table *mig.Table) error {
	pending := table.PendingColumns()
	if len(pending) == 0 {
		return fmt.Errorf("sqlite CreateTable: table %q has no columns", table.Name())
	}
	defs := make([]string, 0, len(pending))
	for _, col := range pending {
		def, err := columnSQL(col)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}
	if pk := table.Options()["primary_key"]; pk != "" {
		cols := strings.Split(pk, ",")
		for i := range cols {
			cols[i] = dialector.Quote(strings.TrimSpace(cols[i]))
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(cols, ", ")))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", dialector.Quote(table.Name()), strings.Join(defs, ", "))
	if _, err := a.Exec(ctx, createSQL); err != nil {
		return err
	}
	for _, idx := range table.PendingIndexes() {
		if _, err := a.Exec(ctx, ddl.CreateIndexSQL(dialector, table.Name(), idx, true)); err != nil {
			return err
		}
	}
	return nil
}
