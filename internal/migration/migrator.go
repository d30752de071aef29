package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/burugo/mig"
)

const defaultVersionTable = "schema_migrations"

const lockKey = "migrations"

// Locker provides mutual exclusion for migration runs across processes or
// nodes. Acquire returns a release function that must be called when the run
// finishes.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// execer is satisfied by both mig.Conn and mig.Tx.
type execer interface {
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Status describes one discovered migration and whether it has been applied.
type Status struct {
	Version int64
	Name    string
	Applied bool
}

// Migrator applies and reverts versioned SQL script migrations through a
// driver connection, tracking applied versions in a table.
type Migrator struct {
	conn   mig.Conn
	dir    string
	table  string
	locker Locker
	log    *logrus.Logger
}

// NewMigrator creates a Migrator reading scripts from migrationsDir.
func NewMigrator(conn mig.Conn, migrationsDir string) *Migrator {
	log := logrus.New()
	log.SetOutput(io.Discard) // silent unless SetLogger is called
	return &Migrator{
		conn:  conn,
		dir:   migrationsDir,
		table: defaultVersionTable,
		log:   log,
	}
}

// SetLogger replaces the discard logger.
func (m *Migrator) SetLogger(log *logrus.Logger) {
	if log != nil {
		m.log = log
	}
}

// SetTable overrides the version-tracking table name.
func (m *Migrator) SetTable(name string) {
	if name != "" {
		m.table = name
	}
}

// UseLock makes Up and Down hold the given lock for the whole run.
func (m *Migrator) UseLock(locker Locker) {
	m.locker = locker
}

// versionTableSQL returns the CREATE TABLE statement for the version table,
// per dialect.
func versionTableSQL(dialect, table string) (string, error) {
	switch dialect {
	case "mysql":
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INT AUTO_INCREMENT PRIMARY KEY,
  version VARCHAR(255) NOT NULL UNIQUE,
  applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  description VARCHAR(255)
)`, table), nil
	case "postgres":
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id SERIAL PRIMARY KEY,
  version VARCHAR(255) NOT NULL UNIQUE,
  applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  description VARCHAR(255)
)`, table), nil
	case "sqlite":
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  version TEXT NOT NULL UNIQUE,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
  description TEXT
)`, table), nil
	default:
		return "", fmt.Errorf("unsupported dialect: %s", dialect)
	}
}

func bindTypeFor(dialect string) int {
	if dialect == "postgres" {
		return sqlx.DOLLAR
	}
	return sqlx.QUESTION
}

// rebind rewrites ?-style placeholders for the connection's dialect.
func (m *Migrator) rebind(query string) string {
	return sqlx.Rebind(bindTypeFor(m.conn.DialectName()), query)
}

func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	m.log.Debugf("ensuring %s table exists", m.table)
	stmt, err := versionTableSQL(m.conn.DialectName(), m.table)
	if err != nil {
		return fmt.Errorf("failed to generate version table SQL: %w", err)
	}
	if _, err := m.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create version table %s: %w", m.table, err)
	}
	return nil
}

// appliedVersions returns the set of versions recorded in the version table.
// A missing table counts as no versions applied.
func (m *Migrator) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	query := fmt.Sprintf("SELECT version FROM %s", m.table)

	var versions []string
	if err := m.conn.Select(ctx, &versions, query); err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "no such table") || // SQLite
			strings.Contains(msg, "does not exist") || // Postgres
			strings.Contains(msg, "doesn't exist") { // MySQL
			return make(map[int64]bool), nil
		}
		return nil, fmt.Errorf("failed to query applied versions: %w", err)
	}

	applied := make(map[int64]bool, len(versions))
	for _, vStr := range versions {
		vInt, err := strconv.ParseInt(vStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q in %s table: %w", vStr, m.table, err)
		}
		applied[vInt] = true
	}
	return applied, nil
}

func (m *Migrator) recordVersion(ctx context.Context, ex execer, version int64, description string) error {
	query := m.rebind(fmt.Sprintf(
		"INSERT INTO %s (version, description, applied_at) VALUES (?, ?, ?)", m.table))
	// ISO8601-compatible string keeps SQLite happy.
	now := time.Now().Format(time.RFC3339)
	if _, err := ex.Exec(ctx, query, strconv.FormatInt(version, 10), description, now); err != nil {
		return fmt.Errorf("failed to record applied version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) removeVersion(ctx context.Context, ex execer, version int64) error {
	query := m.rebind(fmt.Sprintf("DELETE FROM %s WHERE version = ?", m.table))
	if _, err := ex.Exec(ctx, query, strconv.FormatInt(version, 10)); err != nil {
		return fmt.Errorf("failed to remove version %d: %w", version, err)
	}
	return nil
}

func (m *Migrator) acquireLock(ctx context.Context) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	return m.locker.Acquire(ctx, lockKey)
}

// Up applies all pending up migrations in version order, inside a transaction
// when the connection can start one.
func (m *Migrator) Up(ctx context.Context) error {
	release, err := m.acquireLock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer release()

	if err := m.ensureVersionTable(ctx); err != nil {
		return err
	}

	allFiles, err := DiscoverMigrations(m.dir)
	if err != nil {
		return fmt.Errorf("failed to discover migrations in %s: %w", m.dir, err)
	}
	m.log.Debugf("discovered %d migration files in %s", len(allFiles), m.dir)

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	var pending []MigrationFile
	for _, mf := range allFiles {
		if mf.Direction == "up" && !applied[mf.Version] {
			pending = append(pending, mf)
		}
	}
	if len(pending) == 0 {
		m.log.Info("no pending migrations to apply")
		return nil
	}
	m.log.Infof("applying %d pending migrations", len(pending))

	return m.runScripts(ctx, pending, func(ctx context.Context, ex execer, mf MigrationFile) error {
		return m.recordVersion(ctx, ex, mf.Version, mf.Name)
	})
}

// Down reverts the most recently applied migrations. steps <= 0 reverts one.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	release, err := m.acquireLock(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer release()

	allFiles, err := DiscoverMigrations(m.dir)
	if err != nil {
		return fmt.Errorf("failed to discover migrations in %s: %w", m.dir, err)
	}
	downFiles := make(map[int64]MigrationFile)
	for _, mf := range allFiles {
		if mf.Direction == "down" {
			downFiles[mf.Version] = mf
		}
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}
	var versions []int64
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if len(versions) > steps {
		versions = versions[:steps]
	}
	if len(versions) == 0 {
		m.log.Info("no applied migrations to revert")
		return nil
	}

	var toRevert []MigrationFile
	for _, v := range versions {
		mf, ok := downFiles[v]
		if !ok {
			return fmt.Errorf("no down migration script for applied version %d", v)
		}
		toRevert = append(toRevert, mf)
	}
	m.log.Infof("reverting %d migrations", len(toRevert))

	return m.runScripts(ctx, toRevert, func(ctx context.Context, ex execer, mf MigrationFile) error {
		return m.removeVersion(ctx, ex, mf.Version)
	})
}

// runScripts executes each script then records it via record, all inside a
// single transaction when one can be started. On the first failure the
// transaction is rolled back, or without a transaction the error is returned
// with earlier scripts already applied.
func (m *Migrator) runScripts(ctx context.Context, files []MigrationFile, record func(context.Context, execer, MigrationFile) error) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		m.log.Warnf("could not start transaction (%v), applying migrations without one", err)
		tx = nil
	}

	var runErr error
	for _, mf := range files {
		m.log.Infof("running migration %d: %s (%s)", mf.Version, mf.Name, filepath.Base(mf.FilePath))
		script, err := os.ReadFile(mf.FilePath)
		if err != nil {
			runErr = fmt.Errorf("failed to read migration file %s: %w", mf.FilePath, err)
			break
		}

		var ex execer = m.conn
		if tx != nil {
			ex = tx
		}
		if _, err := ex.Exec(ctx, string(script)); err != nil {
			runErr = fmt.Errorf("failed to execute migration %d (%s): %w", mf.Version, mf.Name, err)
			break
		}
		if err := record(ctx, ex, mf); err != nil {
			runErr = err
			break
		}
	}

	if tx != nil {
		if runErr != nil {
			m.log.Errorf("migration failed, rolling back: %v", runErr)
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("migration failed: %w; additionally, rollback failed: %v", runErr, rbErr)
			}
			return runErr
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration transaction: %w", err)
		}
	} else if runErr != nil {
		return runErr
	}

	m.log.Info("migration run completed successfully")
	return nil
}

// Status reports every discovered up migration and whether it is applied.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	allFiles, err := DiscoverMigrations(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover migrations in %s: %w", m.dir, err)
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var statuses []Status
	for _, mf := range allFiles {
		if mf.Direction != "up" {
			continue
		}
		statuses = append(statuses, Status{
			Version: mf.Version,
			Name:    mf.Name,
			Applied: applied[mf.Version],
		})
	}
	return statuses, nil
}
