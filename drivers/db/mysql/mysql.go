package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jmoiron/sqlx"

	"github.com/burugo/mig"
	"github.com/burugo/mig/drivers/schema"
	"github.com/burugo/mig/internal/ddl"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Dialector implements ddl.Dialector for MySQL.
type Dialector struct{}

func (Dialector) Quote(identifier string) string {
	return "`" + identifier + "`"
}

func (Dialector) Placeholder(_ int) string {
	return "?"
}

var dialector = Dialector{}

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

func typeSQL(col *mig.Column) (string, error) {
	switch col.Type {
	case mig.TypeString:
		limit := col.Options.Limit
		if limit <= 0 {
			limit = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", limit), nil
	case mig.TypeText:
		return "TEXT", nil
	case mig.TypeInteger:
		return "INT", nil
	case mig.TypeFloat:
		return "FLOAT", nil
	case mig.TypeDecimal:
		if col.Options.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", col.Options.Precision, col.Options.Scale), nil
		}
		return "DECIMAL", nil
	case mig.TypeDateTime:
		return "DATETIME", nil
	case mig.TypeTimestamp:
		return "TIMESTAMP", nil
	case mig.TypeTime:
		return "TIME", nil
	case mig.TypeDate:
		return "DATE", nil
	case mig.TypeBinary:
		return "BLOB", nil
	case mig.TypeBoolean:
		return "TINYINT(1)", nil
	default:
		return "", fmt.Errorf("mysql: unsupported column type %q", col.Type)
	}
}

func columnSQL(col *mig.Column) (string, error) {
	if col.Type == mig.TypePrimaryKey {
		return dialector.Quote(col.Name) + " INT AUTO_INCREMENT PRIMARY KEY", nil
	}
	base, err := typeSQL(col)
	if err != nil {
		return "", err
	}
	def := ddl.ColumnSQL(dialector, base, col)
	if col.Options.Identity {
		def += " AUTO_INCREMENT"
	}
	return def, nil
}

// Adapter implements mig.Adapter and mig.Conn for MySQL.
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

// NewAdapter opens a MySQL connection pool and pings it.
func NewAdapter(dsn string) (*Adapter, error) {
	log.Printf("Initializing MySQL adapter")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, "mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	log.Println("MySQL adapter initialized successfully.")
	return &Adapter{db: db, dsn: dsn}, nil
}

// --- Conn surface ---

func (a *Adapter) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if a.isClosed() {
		return nil, fmt.Errorf("adapter is closed")
	}
	start := time.Now()
	result, err := a.db.ExecContext(ctx, query, args...)
	duration := time.Since(start)
	if err != nil {
		log.Printf("DB Exec Error: %s [%v] (%s) - %v", query, args, duration, err)
		return nil, fmt.Errorf("mysql ExecContext error: %w", err)
	}
	log.Printf("DB Exec: %s [%v] (%s)", query, args, duration)
	return result, nil
}

func (a *Adapter) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if a.isClosed() {
		return fmt.Errorf("adapter is closed")
	}
	start := time.Now()
	err := a.db.SelectContext(ctx, dest, query, args...)
	duration := time.Since(start)
	if err != nil {
		log.Printf("DB Select Error: %s [%v] (%s) - %v", query, args, duration, err)
		return fmt.Errorf("mysql Select error: %w", err)
	}
	log.Printf("DB Select: %s [%v] (%s)", query, args, duration)
	return nil
}

func (a *Adapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (mig.Tx, error) {
	if a.isClosed() {
		return nil, fmt.Errorf("adapter is closed")
	}
	tx, err := a.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin mysql transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

func (a *Adapter) Close() error {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	if a.closed {
		return nil
	}
	log.Println("MySQL adapter closed.")
	a.closed = true
	return a.db.Close()
}

func (a *Adapter) isClosed() bool {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	return a.closed
}

func (a *Adapter) DB() *sqlx.DB {
	return a.db
}

func (a *Adapter) DialectName() string {
	return "mysql"
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
		return nil, fmt.Errorf("mysql Tx ExecContext error: %w", err)
	}
	return result, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("mysql commit error: %w", err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return err
		}
		return fmt.Errorf("mysql rollback error: %w", err)
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
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", name)
	if err != nil {
		return false, fmt.Errorf("mysql HasTable error: %w", err)
	}
	return count > 0, nil
}

func (a *Adapter) DropTable(ctx context.Context, name string) error {
	_, err := a.Exec(ctx, "DROP TABLE "+dialector.Quote(name))
	return err
}

func (a *Adapter) RenameTable(ctx context.Context, oldName, newName string) error {
	_, err := a.Exec(ctx, fmt.Sprintf("RENAME TABLE %s TO %s",
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
	def, err := columnSQL(column)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", dialector.Quote(table.Name()), def)
	if column.Options.After != "" {
		stmt += " AFTER " + dialector.Quote(column.Options.After)
	}
	_, err = a.Exec(ctx, stmt)
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

func (a *Adapter) ChangeColumn(ctx context.Context, tableName, oldName string, column *mig.Column) error {
	def, err := columnSQL(column)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("ALTER TABLE %s CHANGE COLUMN %s %s",
		dialector.Quote(tableName), dialector.Quote(oldName), def)
	if column.Options.After != "" {
		stmt += " AFTER " + dialector.Quote(column.Options.After)
	}
	_, err = a.Exec(ctx, stmt)
	return err
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
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	_, err := a.Exec(ctx, ddl.CreateIndexSQL(dialector, table.Name(), index, false))
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
		idx := &mig.Index{Columns: columns}
		if opts != nil {
			idx.Options = *opts
		}
		name = ddl.IndexName(tableName, idx)
	}
	_, err := a.Exec(ctx, fmt.Sprintf("DROP INDEX %s ON %s",
		dialector.Quote(name), dialector.Quote(tableName)))
	return err
}

func (a *Adapter) CreateTable(ctx context.Context, table *mig.Table) error {
	pending := table.PendingColumns()
	if len(pending) == 0 {
		return fmt.Errorf("mysql CreateTable: table %q has no columns", table.Name())
	}
	defs := make([]string, 0, len(pending))
	for _, col := range pending {
		def, err := columnSQL(col)
		if err != nil {
			return err
		}
		defs = append(defs, def)
	}
	options := table.Options()
	if pk := options["primary_key"]; pk != "" {
		cols := strings.Split(pk, ",")
		for i := range cols {
			cols[i] = dialector.Quote(strings.TrimSpace(cols[i]))
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(cols, ", ")))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", dialector.Quote(table.Name()), strings.Join(defs, ", "))
	if engine := options["engine"]; engine != "" {
		createSQL += " ENGINE=" + engine
	}
	if charset := options["charset"]; charset != "" {
		createSQL += " DEFAULT CHARSET=" + charset
	}
	if collation := options["collation"]; collation != "" {
		createSQL += " COLLATE=" + collation
	}
	if _, err := a.Exec(ctx, createSQL); err != nil {
		return err
	}
	for _, idx := range table.PendingIndexes() {
		if _, err := a.Exec(ctx, ddl.CreateIndexSQL(dialector, table.Name(), idx, false)); err != nil {
			return err
		}
	}
	return nil
}
