package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/internal/testutil"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ptr[T any](v T) *T { return &v }

func createTable(t *testing.T, store *SQLiteStore, name string, masters ...int64) int64 {
	t.Helper()
	oid, err := store.CreateTable(context.Background(), name, core.KindTable, masters)
	require.NoError(t, err)
	return oid
}

func createColumn(t *testing.T, store *SQLiteStore, spec core.ColumnSpec) int64 {
	t.Helper()
	oid, err := store.CreateColumn(context.Background(), spec)
	require.NoError(t, err)
	return oid
}

func textColumn(tableOID int64, name string) core.ColumnSpec {
	return core.ColumnSpec{
		TableOID:   tableOID,
		Name:       name,
		Type:       core.Primitive{Kind: core.PrimitiveText},
		IsNullable: true,
	}
}

func pushRow(t *testing.T, store *SQLiteStore, tableOID int64) int64 {
	t.Helper()
	oid, err := store.PushRow(context.Background(), tableOID, nil)
	require.NoError(t, err)
	return oid
}

// readCells reads a row through the visible columns of tableOID, keyed by column name.
func readCells(t *testing.T, store *SQLiteStore, tableOID, rowOID int64) map[string]core.CellValue {
	t.Helper()
	ctx := context.Background()
	cols, err := store.ListColumns(ctx, tableOID)
	require.NoError(t, err)
	cells, err := store.RowCells(ctx, rowOID, cols)
	require.NoError(t, err)

	out := make(map[string]core.CellValue, len(cells))
	for _, c := range cells {
		out[c.ColumnName] = c
	}
	return out
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore()
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "closing twice should be a no-op")
}

func TestSQLiteStore_InitSchema(t *testing.T) {
	store := setupTestStore(t)

	tables := []string{
		"meta_table", "meta_table_master", "meta_dropdown_list", "meta_dropdown_option",
		"meta_column", "data_row", "data_cell", "data_cell_failure",
	}
	for _, table := range tables {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		if assert.NoError(t, err, "table %s does not exist", table) {
			rows.Close()
		}
	}

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore()
	ctx := context.Background()

	_, err := store.CreateTable(ctx, "Monsters", core.KindTable, nil)
	assert.ErrorIs(t, err, core.ErrDatabaseNotOpened)

	_, err = store.ListTables(ctx, core.KindTable)
	assert.ErrorIs(t, err, core.ErrDatabaseNotOpened)

	assert.ErrorIs(t, store.InitSchema(), core.ErrDatabaseNotOpened)
}

// Monsters: a unique, required Name and a nullable HP.
func TestSQLiteStore_MonstersScenario(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	monsters := createTable(t, store, "Monsters")
	name := createColumn(t, store, core.ColumnSpec{
		TableOID: monsters,
		Name:     "Name",
		Type:     core.Primitive{Kind: core.PrimitiveText},
		IsUnique: true,
	})
	createColumn(t, store, core.ColumnSpec{
		TableOID:   monsters,
		Name:       "HP",
		Type:       core.Primitive{Kind: core.PrimitiveInteger},
		IsNullable: true,
	})

	row := pushRow(t, store, monsters)

	cells := readCells(t, store, monsters, row)
	assert.Equal(t, []core.FailedValidation{{Description: "value is required."}},
		cells["Name"].FailedValidations, "new row has no name yet")

	require.NoError(t, store.UpdateCellPrimitive(ctx, monsters, row, name, ptr("Goblin")))

	rows, err := store.RowPage(ctx, monsters, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[0].OID)

	cells = readCells(t, store, monsters, row)
	require.NotNil(t, cells["Name"].TrueValue)
	assert.Equal(t, "Goblin", *cells["Name"].TrueValue)
	assert.Equal(t, "Goblin", *cells["Name"].DisplayValue)
	assert.Empty(t, cells["Name"].FailedValidations)
	assert.Nil(t, cells["HP"].TrueValue)
	assert.Empty(t, cells["HP"].FailedValidations)
	assert.Equal(t, monsters, cells["HP"].TableOID)
}

func TestSQLiteStore_TableLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		run     func() error
		wantErr any
	}{
		{
			name: "empty name",
			run: func() error {
				_, err := store.CreateTable(ctx, "   ", core.KindTable, nil)
				return err
			},
			wantErr: &core.NameRequiredError{},
		},
		{
			name: "unknown master",
			run: func() error {
				_, err := store.CreateTable(ctx, "Orphan", core.KindTable, []int64{999})
				return err
			},
			wantErr: &core.NotFoundError{},
		},
		{
			name:    "edit unknown table",
			run:     func() error { return store.EditTable(ctx, 999, "Ghost", nil) },
			wantErr: &core.NotFoundError{},
		},
		{
			name: "delete unknown table",
			run: func() error {
				_, err := store.DeleteTable(ctx, 999)
				return err
			},
			wantErr: &core.NotFoundError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.Error(t, err)
			assert.IsType(t, tt.wantErr, err)
		})
	}

	tables, err := store.ListTables(ctx, core.KindTable)
	require.NoError(t, err)
	assert.Empty(t, tables, "failed creates must not leave tables behind")
}

func TestSQLiteStore_ListTablesByKind(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTable(t, store, "Quests")
	createTable(t, store, "Characters")
	_, err := store.CreateTable(ctx, "Creature", core.KindObjectType, nil)
	require.NoError(t, err)

	tables, err := store.ListTables(ctx, core.KindTable)
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, "Characters", tables[0].Name)
	assert.Equal(t, "Quests", tables[1].Name)

	types, err := store.ListTables(ctx, core.KindObjectType)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, "Creature", types[0].Name)
}

func TestSQLiteStore_EditTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	gear := createTable(t, store, "Gear")
	weapons := createTable(t, store, "Weapons", items)

	require.NoError(t, store.EditTable(ctx, weapons, "  Arms ", []int64{items, gear, items}))

	table, err := store.GetTable(ctx, weapons)
	require.NoError(t, err)
	assert.Equal(t, "Arms", table.Name)
	assert.Equal(t, []int64{items, gear}, table.MasterOIDs)
	assert.Equal(t, core.KindTable, table.Kind)
}

func TestSQLiteStore_DisplayColumn(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	name := createColumn(t, store, textColumn(items, "Name"))
	other := createTable(t, store, "Other")
	foreign := createColumn(t, store, textColumn(other, "Foreign"))

	require.NoError(t, store.SetDisplayColumn(ctx, items, &name))
	table, err := store.GetTable(ctx, items)
	require.NoError(t, err)
	require.NotNil(t, table.DisplayColumnOID)
	assert.Equal(t, name, *table.DisplayColumnOID)

	err = store.SetDisplayColumn(ctx, items, &foreign)
	assert.True(t, core.IsNotFound(err), "column of another table cannot be the display column")

	require.NoError(t, store.DeleteColumn(ctx, items, name))
	table, err = store.GetTable(ctx, items)
	require.NoError(t, err)
	assert.Nil(t, table.DisplayColumnOID, "deleting the column clears the designation")
}
