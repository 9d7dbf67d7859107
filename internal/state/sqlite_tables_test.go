package state

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leaptable/internal/validation"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

func TestSQLiteStore_ItemsWeaponsScenario(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	weapons := createTable(t, store, "Weapons", items)

	subtypes, err := store.Subtypes(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, []core.SubtypeOption{{OID: weapons, Name: "Weapons", HierarchyLevel: 1}}, subtypes)

	err = store.EditTable(ctx, items, "Items", []int64{weapons})
	var cyclic *core.CyclicInheritanceError
	require.ErrorAs(t, err, &cyclic)
	assert.Equal(t, items, cyclic.TableOID)
	assert.Equal(t, weapons, cyclic.MasterOID)

	table, err := store.GetTable(ctx, items)
	require.NoError(t, err)
	assert.Empty(t, table.MasterOIDs, "rejected edit must not change masters")
}

func TestSQLiteStore_CyclicInheritance(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := createTable(t, store, "A")
	b := createTable(t, store, "B", a)
	c := createTable(t, store, "C", b)

	tests := []struct {
		name    string
		table   int64
		masters []int64
		wantErr bool
	}{
		{name: "self", table: a, masters: []int64{a}, wantErr: true},
		{name: "direct", table: a, masters: []int64{b}, wantErr: true},
		{name: "transitive", table: a, masters: []int64{c}, wantErr: true},
		{name: "mixed list", table: b, masters: []int64{a, c}, wantErr: true},
		{name: "sibling", table: c, masters: []int64{a}, wantErr: false},
		{name: "none", table: b, masters: nil, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.EditTable(ctx, tt.table, "renamed", tt.masters)
			if tt.wantErr {
				var cyclic *core.CyclicInheritanceError
				assert.ErrorAs(t, err, &cyclic)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestSQLiteStore_Subtypes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	gear := createTable(t, store, "Gear")
	weapons := createTable(t, store, "Weapons", items, gear)
	armor := createTable(t, store, "Armor", items)
	swords := createTable(t, store, "Swords", weapons)

	subtypes, err := store.Subtypes(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, []core.SubtypeOption{
		{OID: armor, Name: "Armor", HierarchyLevel: 1},
		{OID: weapons, Name: "Weapons", HierarchyLevel: 1},
		{OID: swords, Name: "Swords", HierarchyLevel: 2},
	}, subtypes)

	subtypes, err = store.Subtypes(ctx, swords)
	require.NoError(t, err)
	assert.Empty(t, subtypes)

	_, err = store.Subtypes(ctx, 999)
	assert.True(t, core.IsNotFound(err))
}

func TestSQLiteStore_MasterListOptions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	weapons := createTable(t, store, "Weapons", items)
	swords := createTable(t, store, "Swords", weapons)
	creature, err := store.CreateTable(ctx, "Creature", core.KindObjectType, nil)
	require.NoError(t, err)

	opts, err := store.MasterListOptions(ctx, &weapons, true)
	require.NoError(t, err)
	assert.Equal(t, []core.MasterListOption{
		{OID: creature, Name: "Creature", HierarchyLevel: 0, IsDisabled: false},
		{OID: items, Name: "Items", HierarchyLevel: 0, IsDisabled: false},
		{OID: swords, Name: "Swords", HierarchyLevel: 2, IsDisabled: true},
		{OID: weapons, Name: "Weapons", HierarchyLevel: 1, IsDisabled: true},
	}, opts)

	opts, err = store.MasterListOptions(ctx, &weapons, false)
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, creature, opts[0].OID)

	opts, err = store.MasterListOptions(ctx, nil, true)
	require.NoError(t, err)
	for _, o := range opts {
		assert.False(t, o.IsDisabled, "nothing is disabled for a table that does not exist yet")
	}

	// Every disabled candidate is exactly one that editTable would reject.
	opts, err = store.MasterListOptions(ctx, &items, true)
	require.NoError(t, err)
	for _, o := range opts {
		err := store.EditTable(ctx, items, "Items", []int64{o.OID})
		if o.IsDisabled {
			assert.Error(t, err, o.Name)
		} else {
			assert.NoError(t, err, o.Name)
		}
		require.NoError(t, store.EditTable(ctx, items, "Items", nil))
	}
}

func TestSQLiteStore_DeleteTableWithSubtype(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t1 := createTable(t, store, "T1")
	createColumn(t, store, textColumn(t1, "Base"))
	r1 := pushRow(t, store, t1)

	t2 := createTable(t, store, "T2", t1)
	own := createColumn(t, store, textColumn(t2, "Own"))
	r2 := pushRow(t, store, t2)
	require.NoError(t, store.UpdateCellPrimitive(ctx, t2, r2, own, ptr("kept")))

	deletion, err := store.DeleteTable(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, "T1", deletion.Table.Name)
	assert.Equal(t, 1, deletion.ColumnCount)
	assert.Equal(t, 1, deletion.RowCount)
	assert.Equal(t, []int64{t2}, deletion.DetachedOIDs)

	_, err = store.GetTable(ctx, t1)
	assert.True(t, core.IsNotFound(err))
	_, err = store.GetRow(ctx, t2, r1)
	assert.True(t, core.IsNotFound(err))

	table, err := store.GetTable(ctx, t2)
	require.NoError(t, err)
	assert.Empty(t, table.MasterOIDs)

	cols, err := store.ListColumns(ctx, t2)
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, own, cols[0].OID)

	rows, err := store.RowPage(ctx, t2, nil, 0, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, r2, rows[0].OID)
	assert.Equal(t, "kept", *readCells(t, store, t2, r2)["Own"].TrueValue)
}

func TestSQLiteStore_DeleteTableRemovesOwnedRowsAndLists(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	parent := createTable(t, store, "Parent")
	child := createTable(t, store, "Child")
	createColumn(t, store, core.ColumnSpec{TableOID: parent, Name: "Kids", Type: core.ChildTable{TableOID: child}, IsNullable: true})
	status := createColumn(t, store, core.ColumnSpec{TableOID: parent, Name: "Status", Type: core.SingleSelect{}, IsNullable: true})
	col, err := store.GetColumn(ctx, status)
	require.NoError(t, err)
	list, _ := core.DropdownListOID(col.Type)

	p := pushRow(t, store, parent)
	kid, err := store.PushRow(ctx, child, &p)
	require.NoError(t, err)

	deletion, err := store.DeleteTable(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 2, deletion.RowCount, "parent row and its child row")

	_, err = store.GetRow(ctx, child, kid)
	assert.True(t, core.IsNotFound(err))

	var n int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM meta_dropdown_list WHERE oid = ?`, list).Scan(&n))
	assert.Zero(t, n, "unused dropdown list is deleted with its table")
}

func TestSQLiteStore_DeleteTableFlagsReferences(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	target := createTable(t, store, "Target")
	createColumn(t, store, textColumn(target, "Name"))
	row := pushRow(t, store, target)

	src := createTable(t, store, "Src")
	ref := createColumn(t, store, core.ColumnSpec{TableOID: src, Name: "R", Type: core.Reference{TableOID: target}, IsNullable: true})
	s := pushRow(t, store, src)
	require.NoError(t, store.UpdateCellPrimitive(ctx, src, s, ref, ptr(strconv.FormatInt(row, 10))))
	require.Empty(t, readCells(t, store, src, s)["R"].FailedValidations)

	_, err := store.DeleteTable(ctx, target)
	require.NoError(t, err)

	cell := readCells(t, store, src, s)["R"]
	assert.Equal(t, strconv.FormatInt(row, 10), *cell.TrueValue)
	assert.Equal(t, []core.FailedValidation{{Description: validation.MsgMissingReference}}, cell.FailedValidations,
		"references into a deleted table are flagged")
}

func TestSQLiteStore_TrashTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	name := createColumn(t, store, textColumn(items, "Name"))
	row := pushRow(t, store, items)
	require.NoError(t, store.UpdateCellPrimitive(ctx, items, row, name, ptr("Sword")))
	monsters := createTable(t, store, "Monsters")

	require.NoError(t, store.TrashTable(ctx, items))
	require.NoError(t, store.TrashTable(ctx, items), "trashing twice is a no-op")

	tables, err := store.ListTables(ctx, core.KindTable)
	require.NoError(t, err)
	assert.Equal(t, []core.TableSummary{{OID: monsters, Name: "Monsters"}}, tables)

	opts, err := store.MasterListOptions(ctx, &monsters, true)
	require.NoError(t, err)
	for _, o := range opts {
		assert.NotEqual(t, items, o.OID, "trashed tables are not master candidates")
	}

	table, err := store.GetTable(ctx, items)
	require.NoError(t, err)
	assert.True(t, table.Trashed)
	assert.Equal(t, "Sword", *readCells(t, store, items, row)["Name"].TrueValue, "rows survive table trash")

	require.NoError(t, store.RestoreTable(ctx, items))
	tables, err = store.ListTables(ctx, core.KindTable)
	require.NoError(t, err)
	assert.Len(t, tables, 2)

	assert.True(t, core.IsNotFound(store.TrashTable(ctx, 999)))
	assert.True(t, core.IsNotFound(store.RestoreTable(ctx, 999)))
}

func TestSQLiteStore_TableTree(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	objType := func(name string, masters ...int64) int64 {
		t.Helper()
		oid, err := store.CreateTable(ctx, name, core.KindObjectType, masters)
		require.NoError(t, err)
		return oid
	}
	creature := objType("Creature")
	item := objType("Item")
	beast := objType("Beast", creature)
	dragon := objType("Dragon", beast)
	animal := objType("Animal", creature)
	mimic := objType("Mimic", creature, item)
	createTable(t, store, "Plain")

	tree, err := store.TableTree(ctx, core.KindObjectType)
	require.NoError(t, err)
	assert.Equal(t, []core.TableSummary{
		{OID: creature, Name: "Creature", HierarchyLevel: 0},
		{OID: animal, Name: "Animal", HierarchyLevel: 1},
		{OID: beast, Name: "Beast", HierarchyLevel: 1},
		{OID: dragon, Name: "Dragon", HierarchyLevel: 2},
		{OID: mimic, Name: "Mimic", HierarchyLevel: 1},
		{OID: item, Name: "Item", HierarchyLevel: 0},
		{OID: mimic, Name: "Mimic", HierarchyLevel: 1},
	}, tree)

	require.NoError(t, store.TrashTable(ctx, creature))
	tree, err = store.TableTree(ctx, core.KindObjectType)
	require.NoError(t, err)
	assert.Equal(t, []core.TableSummary{
		{OID: animal, Name: "Animal", HierarchyLevel: 0},
		{OID: beast, Name: "Beast", HierarchyLevel: 0},
		{OID: dragon, Name: "Dragon", HierarchyLevel: 1},
		{OID: item, Name: "Item", HierarchyLevel: 0},
		{OID: mimic, Name: "Mimic", HierarchyLevel: 1},
	}, tree, "inheritors of a trashed type become roots")
}

func TestSQLiteStore_CorruptInheritanceGraph(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a := createTable(t, store, "A")
	b := createTable(t, store, "B", a)
	_, err := store.db.Exec(`INSERT INTO meta_table_master (inheritor_oid, master_oid, ordering) VALUES (?, ?, 0)`, a, b)
	require.NoError(t, err)

	_, err = store.Subtypes(ctx, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt inheritance graph")
}
