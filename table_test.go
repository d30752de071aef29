package mig_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/mig"
)

// call records one adapter invocation with its relevant arguments.
type call struct {
	method  string
	table   string
	column  *mig.Column
	index   *mig.Index
	oldName string
	newName string
}

// mockAdapter is a recording Adapter whose behavior is steered per-test.
type mockAdapter struct {
	calls []call

	tableExists bool
	hasTableErr error
	columnTypes []mig.ColumnType

	addColumnErr   error
	addIndexErr    error
	createTableErr error
	renameTableErr error
	dropTableErr   error

	hasColumnResult bool
	hasIndexResult  bool

	// what CreateTable saw, captured before Save clears the queues
	createSnapshot snapshot
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		columnTypes: []mig.ColumnType{
			mig.TypePrimaryKey, mig.TypeString, mig.TypeText, mig.TypeInteger,
			mig.TypeFloat, mig.TypeDecimal, mig.TypeDateTime, mig.TypeBoolean,
		},
	}
}

func (m *mockAdapter) record(c call) { m.calls = append(m.calls, c) }

func (m *mockAdapter) methodCalls(method string) []call {
	var out []call
	for _, c := range m.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockAdapter) HasTable(ctx context.Context, name string) (bool, error) {
	m.record(call{method: "HasTable", table: name})
	return m.tableExists, m.hasTableErr
}

func (m *mockAdapter) DropTable(ctx context.Context, name string) error {
	m.record(call{method: "DropTable", table: name})
	return m.dropTableErr
}

func (m *mockAdapter) RenameTable(ctx context.Context, oldName, newName string) error {
	m.record(call{method: "RenameTable", oldName: oldName, newName: newName})
	return m.renameTableErr
}

func (m *mockAdapter) ColumnTypes() []mig.ColumnType { return m.columnTypes }

func (m *mockAdapter) HasColumn(ctx context.Context, tableName, columnName string) (bool, error) {
	m.record(call{method: "HasColumn", table: tableName, oldName: columnName})
	return m.hasColumnResult, nil
}

func (m *mockAdapter) AddColumn(ctx context.Context, table *mig.Table, column *mig.Column) error {
	m.record(call{method: "AddColumn", table: table.Name(), column: column})
	return m.addColumnErr
}

func (m *mockAdapter) DropColumn(ctx context.Context, tableName, columnName string) error {
	m.record(call{method: "DropColumn", table: tableName, oldName: columnName})
	return nil
}

func (m *mockAdapter) RenameColumn(ctx context.Context, tableName, oldName, newName string) error {
	m.record(call{method: "RenameColumn", table: tableName, oldName: oldName, newName: newName})
	return nil
}

func (m *mockAdapter) ChangeColumn(ctx context.Context, tableName, oldName string, column *mig.Column) error {
	m.record(call{method: "ChangeColumn", table: tableName, oldName: oldName, column: column})
	return nil
}

func (m *mockAdapter) HasIndex(ctx context.Context, tableName string, columns []string, opts *mig.IndexOptions) (bool, error) {
	m.record(call{method: "HasIndex", table: tableName, index: &mig.Index{Columns: columns}})
	return m.hasIndexResult, nil
}

func (m *mockAdapter) AddIndex(ctx context.Context, table *mig.Table, index *mig.Index) error {
	m.record(call{method: "AddIndex", table: table.Name(), index: index})
	return m.addIndexErr
}

func (m *mockAdapter) DropIndex(ctx context.Context, tableName string, columns []string, opts *mig.IndexOptions) error {
	m.record(call{method: "DropIndex", table: tableName, index: &mig.Index{Columns: columns}})
	return nil
}

func (m *mockAdapter) CreateTable(ctx context.Context, table *mig.Table) error {
	// Snapshot pending changes at call time: Save clears them afterwards.
	cols := make([]*mig.Column, len(table.PendingColumns()))
	copy(cols, table.PendingColumns())
	idxs := make([]*mig.Index, len(table.PendingIndexes()))
	copy(idxs, table.PendingIndexes())
	m.record(call{method: "CreateTable", table: table.Name()})
	m.createSnapshot = snapshot{columns: cols, indexes: idxs}
	return m.createTableErr
}

type snapshot struct {
	columns []*mig.Column
	indexes []*mig.Index
}

func TestTableStaging(t *testing.T) {
	adapter := newMockAdapter()
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("name", mig.TypeString, nil)
	require.NoError(t, err)
	_, err = tbl.AddColumn("age", mig.TypeInteger, &mig.ColumnOptions{Null: true})
	require.NoError(t, err)
	_, err = tbl.AddIndex("name", nil)
	require.NoError(t, err)

	assert.Len(t, tbl.PendingColumns(), 2)
	assert.Len(t, tbl.PendingIndexes(), 1)
	assert.Equal(t, "name", tbl.PendingColumns()[0].Name)
	assert.Equal(t, "age", tbl.PendingColumns()[1].Name)
	// Staging must not touch the adapter.
	assert.Empty(t, adapter.calls)
}

func TestTableAddColumnUnsupportedType(t *testing.T) {
	adapter := newMockAdapter()
	adapter.columnTypes = []mig.ColumnType{mig.TypeString}
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("name", mig.TypeString, nil)
	require.NoError(t, err)

	_, err = tbl.AddColumn("created_at", mig.TypeDateTime, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, mig.ErrColumnTypeNotSupported))
	assert.Contains(t, err.Error(), "datetime")

	// The rejected column must not be staged and the adapter never sees it.
	assert.Len(t, tbl.PendingColumns(), 1)
	assert.Empty(t, adapter.calls)
}

func TestTableNoAdapter(t *testing.T) {
	tbl := mig.NewTable("users", nil, nil)
	ctx := context.Background()

	_, err := tbl.AddColumn("name", mig.TypeString, nil)
	assert.ErrorIs(t, err, mig.ErrAdapterNotSet)

	_, err = tbl.AddIndex("name", nil)
	assert.ErrorIs(t, err, mig.ErrAdapterNotSet)

	_, err = tbl.Exists(ctx)
	assert.ErrorIs(t, err, mig.ErrAdapterNotSet)

	err = tbl.Save(ctx)
	assert.ErrorIs(t, err, mig.ErrAdapterNotSet)

	err = tbl.Drop(ctx)
	assert.ErrorIs(t, err, mig.ErrAdapterNotSet)

	err = tbl.Rename(ctx, "people")
	assert.ErrorIs(t, err, mig.ErrAdapterNotSet)
	assert.Equal(t, "users", tbl.Name())
}

func TestTableSaveCreatePath(t *testing.T) {
	adapter := newMockAdapter()
	adapter.tableExists = false
	tbl := mig.NewTable("users", map[string]string{"primary_key": "id"}, adapter)

	_, err := tbl.AddColumn("id", mig.TypeInteger, nil)
	require.NoError(t, err)
	_, err = tbl.AddColumn("email", mig.TypeString, &mig.ColumnOptions{Limit: 120})
	require.NoError(t, err)
	_, err = tbl.AddIndex("email", &mig.IndexOptions{Unique: true})
	require.NoError(t, err)

	require.NoError(t, tbl.Save(context.Background()))

	// Exactly one CreateTable, no per-item calls.
	assert.Len(t, adapter.methodCalls("CreateTable"), 1)
	assert.Empty(t, adapter.methodCalls("AddColumn"))
	assert.Empty(t, adapter.methodCalls("AddIndex"))

	// The adapter saw the full batch at creation time.
	require.Len(t, adapter.createSnapshot.columns, 2)
	assert.Equal(t, "id", adapter.createSnapshot.columns[0].Name)
	assert.Equal(t, "email", adapter.createSnapshot.columns[1].Name)
	require.Len(t, adapter.createSnapshot.indexes, 1)
	assert.Equal(t, []string{"email"}, adapter.createSnapshot.indexes[0].Columns)
	assert.True(t, adapter.createSnapshot.indexes[0].Options.Unique)

	// Queues cleared after a successful commit.
	assert.Empty(t, tbl.PendingColumns())
	assert.Empty(t, tbl.PendingIndexes())
}

func TestTableSaveUpdatePath(t *testing.T) {
	adapter := newMockAdapter()
	adapter.tableExists = true
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("nickname", mig.TypeString, nil)
	require.NoError(t, err)
	_, err = tbl.AddColumn("bio", mig.TypeText, nil)
	require.NoError(t, err)
	_, err = tbl.AddIndex([]string{"nickname"}, nil)
	require.NoError(t, err)

	require.NoError(t, tbl.Save(context.Background()))

	assert.Empty(t, adapter.methodCalls("CreateTable"))

	addCols := adapter.methodCalls("AddColumn")
	require.Len(t, addCols, 2)
	assert.Equal(t, "nickname", addCols[0].column.Name)
	assert.Equal(t, "bio", addCols[1].column.Name)

	addIdxs := adapter.methodCalls("AddIndex")
	require.Len(t, addIdxs, 1)
	assert.Equal(t, []string{"nickname"}, addIdxs[0].index.Columns)

	// Columns are applied before indexes.
	var order []string
	for _, c := range adapter.calls {
		if c.method == "AddColumn" || c.method == "AddIndex" {
			order = append(order, c.method)
		}
	}
	assert.Equal(t, []string{"AddColumn", "AddColumn", "AddIndex"}, order)

	assert.Empty(t, tbl.PendingColumns())
	assert.Empty(t, tbl.PendingIndexes())
}

func TestTableSaveReusableAfterSuccess(t *testing.T) {
	adapter := newMockAdapter()
	adapter.tableExists = true
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("a", mig.TypeString, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Save(context.Background()))
	require.Len(t, adapter.methodCalls("AddColumn"), 1)

	// A second batch on the same instance must not replay the first.
	_, err = tbl.AddColumn("b", mig.TypeString, nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Save(context.Background()))

	addCols := adapter.methodCalls("AddColumn")
	require.Len(t, addCols, 2)
	assert.Equal(t, "b", addCols[1].column.Name)
}

func TestTableSaveFailureKeepsQueues(t *testing.T) {
	adapter := newMockAdapter()
	adapter.tableExists = true
	adapter.addColumnErr = fmt.Errorf("disk full")
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("a", mig.TypeString, nil)
	require.NoError(t, err)
	_, err = tbl.AddColumn("b", mig.TypeString, nil)
	require.NoError(t, err)
	_, err = tbl.AddIndex("a", nil)
	require.NoError(t, err)

	err = tbl.Save(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// Processing stops at the first failure; nothing after it runs.
	assert.Len(t, adapter.methodCalls("AddColumn"), 1)
	assert.Empty(t, adapter.methodCalls("AddIndex"))

	// Queues stay populated for inspection or retry.
	assert.Len(t, tbl.PendingColumns(), 2)
	assert.Len(t, tbl.PendingIndexes(), 1)
}

func TestTableSaveHasTableError(t *testing.T) {
	adapter := newMockAdapter()
	adapter.hasTableErr = fmt.Errorf("connection refused")
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("a", mig.TypeString, nil)
	require.NoError(t, err)

	err = tbl.Save(context.Background())
	require.Error(t, err)
	assert.Empty(t, adapter.methodCalls("CreateTable"))
	assert.Empty(t, adapter.methodCalls("AddColumn"))
	assert.Len(t, tbl.PendingColumns(), 1)
}

func TestTableSaveEmptyCreate(t *testing.T) {
	// Saving with no staged changes on a missing table still delegates to the
	// adapter; whether an empty table is creatable is the adapter's call.
	adapter := newMockAdapter()
	adapter.tableExists = false
	tbl := mig.NewTable("users", nil, adapter)

	require.NoError(t, tbl.Save(context.Background()))
	assert.Len(t, adapter.methodCalls("CreateTable"), 1)
}

func TestTableRename(t *testing.T) {
	adapter := newMockAdapter()
	tbl := mig.NewTable("users", nil, adapter)

	require.NoError(t, tbl.Rename(context.Background(), "people"))
	assert.Equal(t, "people", tbl.Name())

	renames := adapter.methodCalls("RenameTable")
	require.Len(t, renames, 1)
	assert.Equal(t, "users", renames[0].oldName)
	assert.Equal(t, "people", renames[0].newName)

	// Subsequent operations use the new name.
	require.NoError(t, tbl.Drop(context.Background()))
	drops := adapter.methodCalls("DropTable")
	require.Len(t, drops, 1)
	assert.Equal(t, "people", drops[0].table)
}

func TestTableRenameFailure(t *testing.T) {
	adapter := newMockAdapter()
	adapter.renameTableErr = fmt.Errorf("table locked")
	tbl := mig.NewTable("users", nil, adapter)

	err := tbl.Rename(context.Background(), "people")
	require.Error(t, err)
	assert.Equal(t, "users", tbl.Name())
}

func TestTableAddIndexShapes(t *testing.T) {
	adapter := newMockAdapter()
	tbl := mig.NewTable("users", nil, adapter)

	// Single string is normalized to a one-element column list.
	_, err := tbl.AddIndex("email", &mig.IndexOptions{Unique: true})
	require.NoError(t, err)

	_, err = tbl.AddIndex([]string{"last_name", "first_name"}, nil)
	require.NoError(t, err)

	prebuilt := mig.NewIndex([]string{"tenant_id"}, &mig.IndexOptions{Name: "idx_custom"})
	_, err = tbl.AddIndex(prebuilt, &mig.IndexOptions{Unique: true}) // opts ignored for *Index
	require.NoError(t, err)

	pending := tbl.PendingIndexes()
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"email"}, pending[0].Columns)
	assert.True(t, pending[0].Options.Unique)
	assert.Equal(t, []string{"last_name", "first_name"}, pending[1].Columns)
	assert.Same(t, prebuilt, pending[2])
	assert.False(t, pending[2].Options.Unique)
}

func TestTableAddIndexInvalid(t *testing.T) {
	adapter := newMockAdapter()
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddIndex(42, nil)
	assert.ErrorIs(t, err, mig.ErrInvalidIndexColumns)

	_, err = tbl.AddIndex([]string{}, nil)
	assert.ErrorIs(t, err, mig.ErrIndexColumnsEmpty)

	_, err = tbl.AddIndex(&mig.Index{}, nil)
	assert.ErrorIs(t, err, mig.ErrIndexColumnsEmpty)

	assert.Empty(t, tbl.PendingIndexes())
}

func TestTableChangeColumnNameDefault(t *testing.T) {
	adapter := newMockAdapter()
	tbl := mig.NewTable("users", nil, adapter)

	// Unnamed replacement inherits the target's name.
	err := tbl.ChangeColumn(context.Background(), "age", mig.NewColumn("", mig.TypeInteger, &mig.ColumnOptions{Null: true}))
	require.NoError(t, err)

	changes := adapter.methodCalls("ChangeColumn")
	require.Len(t, changes, 1)
	assert.Equal(t, "age", changes[0].oldName)
	assert.Equal(t, "age", changes[0].column.Name)

	// An explicit name is a change+rename in one call.
	err = tbl.ChangeColumn(context.Background(), "age", mig.NewColumn("years", mig.TypeInteger, nil))
	require.NoError(t, err)
	changes = adapter.methodCalls("ChangeColumn")
	require.Len(t, changes, 2)
	assert.Equal(t, "years", changes[1].column.Name)
}

func TestTableImmediateOperations(t *testing.T) {
	adapter := newMockAdapter()
	adapter.hasColumnResult = true
	adapter.hasIndexResult = true
	tbl := mig.NewTable("users", nil, adapter)
	ctx := context.Background()

	has, err := tbl.HasColumn(ctx, "email")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = tbl.HasIndex(ctx, "email", nil)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, tbl.RemoveColumn(ctx, "email"))
	require.NoError(t, tbl.RenameColumn(ctx, "name", "full_name"))
	require.NoError(t, tbl.RemoveIndex(ctx, []string{"email"}, nil))

	// None of these touch the pending queues.
	assert.Empty(t, tbl.PendingColumns())
	assert.Empty(t, tbl.PendingIndexes())
}

func TestTableReset(t *testing.T) {
	adapter := newMockAdapter()
	tbl := mig.NewTable("users", nil, adapter)

	_, err := tbl.AddColumn("a", mig.TypeString, nil)
	require.NoError(t, err)
	_, err = tbl.AddIndex("a", nil)
	require.NoError(t, err)

	tbl.Reset()
	assert.Empty(t, tbl.PendingColumns())
	assert.Empty(t, tbl.PendingIndexes())
	assert.Empty(t, adapter.calls)
}
