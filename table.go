// Package mig is an in-memory schema-change builder: a mutable representation
// of a single database table that accumulates pending structural changes
// (columns, indexes) and commits them through a pluggable Adapter.
//
// A Table is built for single-threaded, call-and-return use: stage changes
// with AddColumn/AddIndex, then Save reconciles them against live database
// state — one CREATE TABLE when the table does not exist yet, or sequential
// ADD COLUMN / ADD INDEX calls when it does — and clears the pending queues
// so the same instance can stage a further batch.
package mig

import (
	"context"
	"fmt"
)

// Table is the builder/aggregate for schema changes against one table.
// Destructive and renaming operations (RemoveColumn, RenameColumn,
// ChangeColumn, RemoveIndex, Drop, Rename) execute immediately against the
// adapter; only additions are staged. That asymmetry is deliberate: removal
// is destructive and idempotent at the adapter level, so immediate execution
// avoids ordering ambiguity relative to staged additions.
//
// Table is not safe for concurrent use; its pending queues are unsynchronized
// mutable state.
type Table struct {
	name    string
	options map[string]string
	adapter Adapter

	pendingColumns []*Column
	pendingIndexes []*Index
}

// NewTable binds a builder to a table name and an adapter. options is an
// opaque mapping of table-level creation options (engine, charset,
// primary-key strategy, ...) passed verbatim to the adapter on creation;
// both options and adapter may be nil, but nearly every operation requires
// an adapter and fails with ErrAdapterNotSet without one.
func NewTable(name string, options map[string]string, adapter Adapter) *Table {
	return &Table{name: name, options: options, adapter: adapter}
}

// Name returns the current table name. Rename updates it only after the
// adapter confirms the rename.
func (t *Table) Name() string { return t.name }

// Options returns the table-level creation options.
func (t *Table) Options() map[string]string { return t.options }

// Adapter returns the attached adapter, or nil.
func (t *Table) Adapter() Adapter { return t.adapter }

// PendingColumns returns the staged columns in staging order.
func (t *Table) PendingColumns() []*Column { return t.pendingColumns }

// PendingIndexes returns the staged indexes in staging order.
func (t *Table) PendingIndexes() []*Index { return t.pendingIndexes }

func (t *Table) requireAdapter() error {
	if t.adapter == nil {
		return ErrAdapterNotSet
	}
	return nil
}

// Exists reports whether the table currently exists in the database. It has
// no side effects and does not error for "not found"; only adapter-level
// failures propagate.
func (t *Table) Exists(ctx context.Context) (bool, error) {
	if err := t.requireAdapter(); err != nil {
		return false, err
	}
	return t.adapter.HasTable(ctx, t.name)
}

// Drop unconditionally drops the table by its current name. Existence is not
// checked first; the adapter defines what dropping a missing table does.
func (t *Table) Drop(ctx context.Context) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	return t.adapter.DropTable(ctx, t.name)
}

// Rename renames the table and updates the local identity only after the
// adapter call succeeds. On failure the local name is left unchanged.
func (t *Table) Rename(ctx context.Context, newName string) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	if err := t.adapter.RenameTable(ctx, t.name, newName); err != nil {
		return err
	}
	t.name = newName
	return nil
}

// AddColumn stages a column built from primitives. The column type must be a
// member of the adapter's currently advertised supported-type set; an
// unsupported type is a validation error and nothing is staged. opts may be
// nil. The table itself is returned to support call chaining.
func (t *Table) AddColumn(name string, typ ColumnType, opts *ColumnOptions) (*Table, error) {
	if err := t.requireAdapter(); err != nil {
		// Fail before constructing or validating any column.
		return t, err
	}
	return t.AddColumnObject(NewColumn(name, typ, opts))
}

// AddColumnObject stages a pre-built column, used as-is. Same adapter and
// type-validation rules as AddColumn.
func (t *Table) AddColumnObject(column *Column) (*Table, error) {
	if err := t.requireAdapter(); err != nil {
		return t, err
	}
	if !t.supportsColumnType(column.Type) {
		return t, fmt.Errorf("%w: %q", ErrColumnTypeNotSupported, column.Type)
	}
	t.pendingColumns = append(t.pendingColumns, column)
	return t, nil
}

func (t *Table) supportsColumnType(typ ColumnType) bool {
	for _, supported := range t.adapter.ColumnTypes() {
		if supported == typ {
			return true
		}
	}
	return false
}

// RemoveColumn drops a column immediately. Not staged.
func (t *Table) RemoveColumn(ctx context.Context, name string) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	return t.adapter.DropColumn(ctx, t.name, name)
}

// RenameColumn renames a column immediately. Not staged.
func (t *Table) RenameColumn(ctx context.Context, oldName, newName string) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	return t.adapter.RenameColumn(ctx, t.name, oldName, newName)
}

// ChangeColumn redefines a column immediately. Not staged. If newColumn
// carries no name, the adapter receives a copy named after the column being
// changed.
func (t *Table) ChangeColumn(ctx context.Context, name string, newColumn *Column) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	changed := *newColumn
	if changed.Name == "" {
		changed.Name = name
	}
	return t.adapter.ChangeColumn(ctx, t.name, name, &changed)
}

// HasColumn reports whether the named column exists. Pure query.
func (t *Table) HasColumn(ctx context.Context, name string) (bool, error) {
	if err := t.requireAdapter(); err != nil {
		return false, err
	}
	return t.adapter.HasColumn(ctx, t.name, name)
}

// AddIndex stages an index. columns accepts a single column name, a []string,
// or a pre-built *Index (used as-is, opts ignored); a single name is
// normalized to a one-element sequence. Indexes have no type vocabulary, so
// no adapter validation happens here beyond requiring the adapter itself.
func (t *Table) AddIndex(columns any, opts *IndexOptions) (*Table, error) {
	if err := t.requireAdapter(); err != nil {
		return t, err
	}
	idx, err := normalizeIndex(columns, opts)
	if err != nil {
		return t, err
	}
	t.pendingIndexes = append(t.pendingIndexes, idx)
	return t, nil
}

// RemoveIndex drops an index immediately. Not staged. columns accepts the
// same shapes as AddIndex.
func (t *Table) RemoveIndex(ctx context.Context, columns any, opts *IndexOptions) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	idx, err := normalizeIndex(columns, opts)
	if err != nil {
		return err
	}
	return t.adapter.DropIndex(ctx, t.name, idx.Columns, &idx.Options)
}

// HasIndex reports whether an index covering the given columns exists. Pure
// query. columns accepts the same shapes as AddIndex.
func (t *Table) HasIndex(ctx context.Context, columns any, opts *IndexOptions) (bool, error) {
	if err := t.requireAdapter(); err != nil {
		return false, err
	}
	idx, err := normalizeIndex(columns, opts)
	if err != nil {
		return false, err
	}
	return t.adapter.HasIndex(ctx, t.name, idx.Columns, &idx.Options)
}

// Save commits the staged changes, choosing one of two strategies by table
// existence at call time:
//
//   - New table: one CreateTable adapter call carrying the whole Table, so
//     the adapter can emit a single creation statement with all columns and
//     indexes inline.
//   - Existing table: one AddColumn call per staged column, then one AddIndex
//     call per staged index, each in staging order. Calls are sequential and
//     independent; on the first failure processing stops, already-applied
//     changes are not rolled back, and the pending queues are left populated.
//     A retried Save replays every still-pending change — callers should
//     re-inspect (HasColumn/HasIndex) before retrying after a failure.
//
// On success both pending queues are cleared, so the same Table can stage and
// commit a further batch without re-specifying identity or adapter.
func (t *Table) Save(ctx context.Context) error {
	if err := t.requireAdapter(); err != nil {
		return err
	}
	exists, err := t.adapter.HasTable(ctx, t.name)
	if err != nil {
		return err
	}
	if exists {
		for _, col := range t.pendingColumns {
			if err := t.adapter.AddColumn(ctx, t, col); err != nil {
				return err
			}
		}
		for _, idx := range t.pendingIndexes {
			if err := t.adapter.AddIndex(ctx, t, idx); err != nil {
				return err
			}
		}
	} else {
		if err := t.adapter.CreateTable(ctx, t); err != nil {
			return err
		}
	}
	t.Reset()
	return nil
}

// Reset discards all staged changes without touching the database.
func (t *Table) Reset() {
	t.pendingColumns = nil
	t.pendingIndexes = nil
}
