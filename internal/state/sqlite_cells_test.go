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

func TestSQLiteStore_PrimitiveRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	table := createTable(t, store, "T")
	row := pushRow(t, store, table)

	tests := []struct {
		name  string
		kind  core.PrimitiveKind
		value *string
		fail  string
	}{
		{name: "text", kind: core.PrimitiveText, value: ptr("hello")},
		{name: "null", kind: core.PrimitiveText, value: nil},
		{name: "integer", kind: core.PrimitiveInteger, value: ptr("42")},
		{name: "bad integer", kind: core.PrimitiveInteger, value: ptr("4.2"), fail: validation.MsgInvalidInteger},
		{name: "date", kind: core.PrimitiveDate, value: ptr("2024-02-29")},
		{name: "bad date", kind: core.PrimitiveDate, value: ptr("29/02/2024"), fail: validation.MsgInvalidDate},
		{name: "json", kind: core.PrimitiveJSON, value: ptr(`{"a":[1,2]}`)},
		{name: "boolean", kind: core.PrimitiveBoolean, value: ptr("true")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col := createColumn(t, store, core.ColumnSpec{
				TableOID:   table,
				Name:       tt.name,
				Type:       core.Primitive{Kind: tt.kind},
				IsNullable: true,
			})
			require.NoError(t, store.UpdateCellPrimitive(ctx, table, row, col, tt.value))

			cell := readCells(t, store, table, row)[tt.name]
			assert.Equal(t, tt.value, cell.TrueValue)
			if tt.fail == "" {
				assert.Empty(t, cell.FailedValidations)
			} else {
				assert.Equal(t, []core.FailedValidation{{Description: tt.fail}}, cell.FailedValidations)
			}
		})
	}
}

func TestSQLiteStore_UniqueFlagsClear(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	table := createTable(t, store, "T")
	code := createColumn(t, store, core.ColumnSpec{
		TableOID: table, Name: "Code", Type: core.Primitive{Kind: core.PrimitiveText}, IsNullable: true, IsUnique: true,
	})
	a := pushRow(t, store, table)
	b := pushRow(t, store, table)

	require.NoError(t, store.UpdateCellPrimitive(ctx, table, a, code, ptr("X")))
	require.NoError(t, store.UpdateCellPrimitive(ctx, table, b, code, ptr("X")))
	assert.NotEmpty(t, readCells(t, store, table, a)["Code"].FailedValidations)

	require.NoError(t, store.UpdateCellPrimitive(ctx, table, b, code, ptr("Y")))
	assert.Empty(t, readCells(t, store, table, a)["Code"].FailedValidations)
	assert.Empty(t, readCells(t, store, table, b)["Code"].FailedValidations)

	require.NoError(t, store.DeleteRow(ctx, table, b))
	require.NoError(t, store.UpdateCellPrimitive(ctx, table, a, code, ptr("Y")))
	assert.Empty(t, readCells(t, store, table, a)["Code"].FailedValidations)
}

func TestSQLiteStore_Dropdowns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	table := createTable(t, store, "T")
	status := createColumn(t, store, core.ColumnSpec{TableOID: table, Name: "Status", Type: core.SingleSelect{}, IsNullable: true})
	tags := createColumn(t, store, core.ColumnSpec{TableOID: table, Name: "Tags", Type: core.MultiSelect{}, IsNullable: true})

	values := []core.DropdownValue{
		{TrueValue: "o", DisplayValue: "Open"},
		{TrueValue: "c", DisplayValue: "Closed"},
		{TrueValue: "o", DisplayValue: "Duplicate"},
	}
	require.NoError(t, store.SetDropdownValues(ctx, status, values))
	require.NoError(t, store.SetDropdownValues(ctx, tags, []core.DropdownValue{
		{TrueValue: "red", DisplayValue: "Red"},
		{TrueValue: "blue", DisplayValue: "Blue"},
	}))

	got, err := store.DropdownValues(ctx, status)
	require.NoError(t, err)
	assert.Equal(t, []core.DropdownValue{{TrueValue: "o", DisplayValue: "Open"}, {TrueValue: "c", DisplayValue: "Closed"}}, got)

	row := pushRow(t, store, table)
	require.NoError(t, store.UpdateCellPrimitive(ctx, table, row, status, ptr("c")))
	require.NoError(t, store.UpdateCellPrimitive(ctx, table, row, tags, ptr(validation.FormatMultiSelect([]string{"blue", "red"}))))

	cells := readCells(t, store, table, row)
	assert.Equal(t, "c", *cells["Status"].TrueValue)
	assert.Equal(t, "Closed", *cells["Status"].DisplayValue)
	assert.Empty(t, cells["Status"].FailedValidations)
	assert.Equal(t, "Blue, Red", *cells["Tags"].DisplayValue)
	assert.Empty(t, cells["Tags"].FailedValidations)

	// Removing the option flags the stored value and falls back to it for display.
	require.NoError(t, store.SetDropdownValues(ctx, status, values[:1]))
	cells = readCells(t, store, table, row)
	assert.Equal(t, "c", *cells["Status"].DisplayValue)
	assert.Equal(t, []core.FailedValidation{{Description: validation.MsgInvalidOption}}, cells["Status"].FailedValidations)

	text := createColumn(t, store, textColumn(table, "Plain"))
	err = store.SetDropdownValues(ctx, text, values)
	var mismatch *core.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)
	_, err = store.DropdownValues(ctx, text)
	assert.ErrorAs(t, err, &mismatch)
}

func TestSQLiteStore_SharedDropdownList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	table := createTable(t, store, "T")
	first := createColumn(t, store, core.ColumnSpec{TableOID: table, Name: "First", Type: core.SingleSelect{}, IsNullable: true})
	col, err := store.GetColumn(ctx, first)
	require.NoError(t, err)
	list, ok := core.DropdownListOID(col.Type)
	require.True(t, ok)
	require.NotZero(t, list)

	second := createColumn(t, store, core.ColumnSpec{TableOID: table, Name: "Second", Type: core.SingleSelect{ListOID: list}, IsNullable: true})
	require.NoError(t, store.SetDropdownValues(ctx, first, []core.DropdownValue{{TrueValue: "a", DisplayValue: "A"}}))

	got, err := store.DropdownValues(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, []core.DropdownValue{{TrueValue: "a", DisplayValue: "A"}}, got)

	require.NoError(t, store.DeleteColumn(ctx, table, first))
	got, err = store.DropdownValues(ctx, second)
	require.NoError(t, err)
	assert.Len(t, got, 1, "list survives while another column uses it")
}

func TestSQLiteStore_References(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	monsters := createTable(t, store, "Monsters")
	createColumn(t, store, textColumn(monsters, "Notes"))
	name := createColumn(t, store, textColumn(monsters, "Name"))
	require.NoError(t, store.SetDisplayColumn(ctx, monsters, &name))

	goblin := pushRow(t, store, monsters)
	require.NoError(t, store.UpdateCellPrimitive(ctx, monsters, goblin, name, ptr("Goblin")))
	orc := pushRow(t, store, monsters)
	require.NoError(t, store.UpdateCellPrimitive(ctx, monsters, orc, name, ptr("Orc")))

	encounters := createTable(t, store, "Encounters")
	foe := createColumn(t, store, core.ColumnSpec{TableOID: encounters, Name: "Foe", Type: core.Reference{TableOID: monsters}, IsNullable: true})

	options, err := store.DropdownValues(ctx, foe)
	require.NoError(t, err)
	assert.Equal(t, []core.DropdownValue{
		{TrueValue: strconv.FormatInt(goblin, 10), DisplayValue: "Goblin"},
		{TrueValue: strconv.FormatInt(orc, 10), DisplayValue: "Orc"},
	}, options)

	enc := pushRow(t, store, encounters)
	require.NoError(t, store.UpdateCellPrimitive(ctx, encounters, enc, foe, ptr(strconv.FormatInt(orc, 10))))
	cell := readCells(t, store, encounters, enc)["Foe"]
	assert.Equal(t, "Orc", *cell.DisplayValue)
	assert.Empty(t, cell.FailedValidations)

	require.NoError(t, store.DeleteRow(ctx, monsters, orc))
	cell = readCells(t, store, encounters, enc)["Foe"]
	assert.Equal(t, strconv.FormatInt(orc, 10), *cell.DisplayValue)
	assert.Equal(t, []core.FailedValidation{{Description: validation.MsgMissingReference}}, cell.FailedValidations)

	require.NoError(t, store.UpdateCellPrimitive(ctx, encounters, enc, foe, ptr("not a row")))
	cell = readCells(t, store, encounters, enc)["Foe"]
	assert.Equal(t, []core.FailedValidation{{Description: validation.MsgMissingReference}}, cell.FailedValidations)
}

func TestSQLiteStore_ReferenceToSubtypeRows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	items := createTable(t, store, "Items")
	name := createColumn(t, store, textColumn(items, "Name"))
	weapons := createTable(t, store, "Weapons", items)
	sword := pushRow(t, store, weapons)
	require.NoError(t, store.UpdateCellPrimitive(ctx, weapons, sword, name, ptr("Sword")))

	loot := createTable(t, store, "Loot")
	item := createColumn(t, store, core.ColumnSpec{TableOID: loot, Name: "Item", Type: core.Reference{TableOID: items}, IsNullable: true})

	options, err := store.DropdownValues(ctx, item)
	require.NoError(t, err)
	require.Len(t, options, 1, "subtype rows are rows of their masters")
	assert.Equal(t, "Sword", options[0].DisplayValue)
}

func TestSQLiteStore_ObjectCells(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	stats, err := store.CreateTable(ctx, "Stats", core.KindObjectType, nil)
	require.NoError(t, err)
	label := createColumn(t, store, textColumn(stats, "Label"))
	bossStats, err := store.CreateTable(ctx, "Boss Stats", core.KindObjectType, []int64{stats})
	require.NoError(t, err)
	other, err := store.CreateTable(ctx, "Other", core.KindObjectType, nil)
	require.NoError(t, err)

	monsters := createTable(t, store, "Monsters")
	col := createColumn(t, store, core.ColumnSpec{TableOID: monsters, Name: "Stats", Type: core.ChildObject{TableOID: stats}, IsNullable: true})
	row := pushRow(t, store, monsters)

	child, childType, err := store.SetObjectCell(ctx, monsters, row, col, &bossStats, nil)
	require.NoError(t, err)
	assert.Equal(t, bossStats, childType)

	got, err := store.GetRow(ctx, stats, child)
	require.NoError(t, err)
	require.NotNil(t, got.ParentRowOID)
	assert.Equal(t, row, *got.ParentRowOID)

	require.NoError(t, store.UpdateCellPrimitive(ctx, bossStats, child, label, ptr("Tough")))
	cell := readCells(t, store, monsters, row)["Stats"]
	assert.Equal(t, strconv.FormatInt(child, 10), *cell.TrueValue)
	assert.Equal(t, "Tough", *cell.DisplayValue)

	_, _, err = store.SetObjectCell(ctx, monsters, row, col, &other, nil)
	var invalid *core.InvalidSubtypeError
	assert.ErrorAs(t, err, &invalid)

	err = store.UpdateCellPrimitive(ctx, monsters, row, col, ptr("1"))
	var mismatch *core.TypeMismatchError
	assert.ErrorAs(t, err, &mismatch)

	// Link an existing row; the previously owned one is deleted.
	loose := pushRow(t, store, stats)
	linked, linkedType, err := store.SetObjectCell(ctx, monsters, row, col, nil, &loose)
	require.NoError(t, err)
	assert.Equal(t, loose, linked)
	assert.Equal(t, stats, linkedType)
	_, err = store.GetRow(ctx, stats, child)
	assert.True(t, core.IsNotFound(err))

	linked, _, err = store.SetObjectCell(ctx, monsters, row, col, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, linked)
	_, err = store.GetRow(ctx, stats, loose)
	assert.True(t, core.IsNotFound(err), "unsetting deletes the owned object")
	assert.Nil(t, readCells(t, store, monsters, row)["Stats"].TrueValue)
}

func TestSQLiteStore_Blobs(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	table := createTable(t, store, "Docs")
	file := createColumn(t, store, core.ColumnSpec{TableOID: table, Name: "File", Type: core.Primitive{Kind: core.PrimitiveFile}, IsNullable: true})
	text := createColumn(t, store, textColumn(table, "Title"))
	row := pushRow(t, store, table)

	_, err := store.BlobInfo(ctx, table, row, file)
	assert.True(t, core.IsNotFound(err), "no blob stored yet")

	data := make([]byte, 1500)
	require.NoError(t, store.UpdateCellBlob(ctx, table, row, file, core.BlobSource{FileName: "report.pdf", Data: data}))

	info, err := store.BlobInfo(ctx, table, row, file)
	require.NoError(t, err)
	assert.Equal(t, &core.BlobInfo{FileName: "report.pdf", Size: 1500}, info)
	assert.Equal(t, "report.pdf (1.5 kB)", *readCells(t, store, table, row)["File"].DisplayValue)

	var mismatch *core.TypeMismatchError
	assert.ErrorAs(t, store.UpdateCellPrimitive(ctx, table, row, file, ptr("x")), &mismatch)
	assert.ErrorAs(t, store.UpdateCellBlob(ctx, table, row, text, core.BlobSource{FileName: "a"}), &mismatch)

	require.NoError(t, store.UpdateCellPrimitive(ctx, table, row, file, nil), "null clears a blob")
	assert.Nil(t, readCells(t, store, table, row)["File"].TrueValue)
}
