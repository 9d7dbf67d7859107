package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// ObjectLink identifies the child row a child-object cell points at after
// SetObjectCell. Both fields are zero when the cell was unlinked.
type ObjectLink struct {
	RowOID   int64 `json:"rowOid" yaml:"rowOid"`
	TableOID int64 `json:"tableOid" yaml:"tableOid"`
}

// --- Tables and object types ---

// CreateTable creates a plain table inheriting from masterOIDs.
func (e *Engine) CreateTable(ctx context.Context, name string, masterOIDs []int64) (int64, error) {
	return e.createTable(ctx, "createTable", name, core.KindTable, masterOIDs)
}

// CreateObjectType creates an object type inheriting from masterOIDs.
func (e *Engine) CreateObjectType(ctx context.Context, name string, masterOIDs []int64) (int64, error) {
	return e.createTable(ctx, "createObjectType", name, core.KindObjectType, masterOIDs)
}

func (e *Engine) createTable(ctx context.Context, action, name string, kind core.TableKind, masterOIDs []int64) (int64, error) {
	var oid int64
	err := e.mutate(action, func(cs *changeSet) error {
		var err error
		oid, err = e.store.CreateTable(ctx, name, kind, masterOIDs)
		if err != nil {
			return err
		}
		cs.list(kind)
		return nil
	}, "name", name)
	return oid, err
}

// EditTable renames a plain table and replaces its master list.
func (e *Engine) EditTable(ctx context.Context, tableOID int64, name string, masterOIDs []int64) error {
	return e.editTable(ctx, "editTableMetadata", tableOID, name, core.KindTable, masterOIDs)
}

// EditObjectType renames an object type and replaces its master list.
func (e *Engine) EditObjectType(ctx context.Context, tableOID int64, name string, masterOIDs []int64) error {
	return e.editTable(ctx, "editObjectTypeMetadata", tableOID, name, core.KindObjectType, masterOIDs)
}

func (e *Engine) editTable(ctx context.Context, action string, tableOID int64, name string, kind core.TableKind, masterOIDs []int64) error {
	return e.mutate(action, func(cs *changeSet) error {
		if err := e.checkKind(ctx, tableOID, kind); err != nil {
			return err
		}
		if err := e.store.EditTable(ctx, tableOID, name, masterOIDs); err != nil {
			return err
		}
		cs.list(kind)
		cs.deep(e.downward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID)
}

// DeleteTable deletes a plain table with its columns and rows.
// Subtypes are detached and keep their own columns and rows.
func (e *Engine) DeleteTable(ctx context.Context, tableOID int64) (*core.TableDeletion, error) {
	return e.deleteTable(ctx, "deleteTable", tableOID, core.KindTable)
}

// DeleteObjectType deletes an object type like DeleteTable.
func (e *Engine) DeleteObjectType(ctx context.Context, tableOID int64) (*core.TableDeletion, error) {
	return e.deleteTable(ctx, "deleteObjectType", tableOID, core.KindObjectType)
}

func (e *Engine) deleteTable(ctx context.Context, action string, tableOID int64, kind core.TableKind) (*core.TableDeletion, error) {
	var deletion *core.TableDeletion
	err := e.mutate(action, func(cs *changeSet) error {
		if err := e.checkKind(ctx, tableOID, kind); err != nil {
			return err
		}
		var err error
		deletion, err = e.store.DeleteTable(ctx, tableOID)
		if err != nil {
			return err
		}
		cs.list(kind)
		for _, t := range deletion.DetachedOIDs {
			cs.deep(e.downward(ctx, t)...)
		}
		cs.deep(deletion.AffectedTables...)
		return nil
	}, "table_oid", tableOID)
	return deletion, err
}

// TrashTable hides a plain table from table lists and master options.
// Its columns and rows are kept until it is deleted or restored.
func (e *Engine) TrashTable(ctx context.Context, tableOID int64) error {
	return e.trashTable(ctx, "trashTable", tableOID, core.KindTable, true)
}

// RestoreTable brings a trashed plain table back.
func (e *Engine) RestoreTable(ctx context.Context, tableOID int64) error {
	return e.trashTable(ctx, "restoreTable", tableOID, core.KindTable, false)
}

// TrashObjectType hides an object type like TrashTable.
func (e *Engine) TrashObjectType(ctx context.Context, tableOID int64) error {
	return e.trashTable(ctx, "trashObjectType", tableOID, core.KindObjectType, true)
}

// RestoreObjectType brings a trashed object type back.
func (e *Engine) RestoreObjectType(ctx context.Context, tableOID int64) error {
	return e.trashTable(ctx, "restoreObjectType", tableOID, core.KindObjectType, false)
}

func (e *Engine) trashTable(ctx context.Context, action string, tableOID int64, kind core.TableKind, trashed bool) error {
	return e.mutate(action, func(cs *changeSet) error {
		if err := e.checkKind(ctx, tableOID, kind); err != nil {
			return err
		}
		fn := e.store.RestoreTable
		if trashed {
			fn = e.store.TrashTable
		}
		if err := fn(ctx, tableOID); err != nil {
			return err
		}
		cs.list(kind)
		return nil
	}, "table_oid", tableOID)
}

// SetDisplayColumn designates the column that labels references to rows
// of tableOID. A nil columnOID restores the first visible column.
func (e *Engine) SetDisplayColumn(ctx context.Context, tableOID int64, columnOID *int64) error {
	return e.mutate("setTableDisplayColumn", func(cs *changeSet) error {
		if err := e.store.SetDisplayColumn(ctx, tableOID, columnOID); err != nil {
			return err
		}
		cs.deep(e.downward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID)
}

// --- Columns ---

// CreateColumn adds a column to spec.TableOID.
func (e *Engine) CreateColumn(ctx context.Context, spec core.ColumnSpec) (int64, error) {
	var oid int64
	err := e.mutate("createTableColumn", func(cs *changeSet) error {
		var err error
		oid, err = e.store.CreateColumn(ctx, spec)
		if err != nil {
			return err
		}
		cs.deep(e.downward(ctx, spec.TableOID)...)
		return nil
	}, "table_oid", spec.TableOID, "name", spec.Name)
	return oid, err
}

// EditColumn updates a column in place and revalidates its cells.
func (e *Engine) EditColumn(ctx context.Context, edit core.ColumnEdit) error {
	return e.mutate("editTableColumnMetadata", func(cs *changeSet) error {
		if err := e.store.EditColumn(ctx, edit); err != nil {
			return err
		}
		cs.deep(e.downward(ctx, edit.TableOID)...)
		return nil
	}, "table_oid", edit.TableOID, "column_oid", edit.ColumnOID)
}

// SetColumnWidth sets the display width of a column.
func (e *Engine) SetColumnWidth(ctx context.Context, tableOID, columnOID, width int64) error {
	return e.mutate("editTableColumnWidth", func(cs *changeSet) error {
		if err := e.store.SetColumnWidth(ctx, tableOID, columnOID, width); err != nil {
			return err
		}
		cs.deep(e.downward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID, "column_oid", columnOID)
}

// ReorderColumn moves a column to newOrdering (nil moves it to the end).
func (e *Engine) ReorderColumn(ctx context.Context, tableOID, columnOID, oldOrdering int64, newOrdering *int64) error {
	return e.mutate("reorderTableColumn", func(cs *changeSet) error {
		if err := e.store.ReorderColumn(ctx, tableOID, columnOID, oldOrdering, newOrdering); err != nil {
			return err
		}
		cs.deep(e.downward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID, "column_oid", columnOID)
}

// DeleteColumn removes a column and all of its cells.
func (e *Engine) DeleteColumn(ctx context.Context, tableOID, columnOID int64) error {
	return e.mutate("deleteTableColumn", func(cs *changeSet) error {
		if err := e.store.DeleteColumn(ctx, tableOID, columnOID); err != nil {
			return err
		}
		cs.deep(e.downward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID, "column_oid", columnOID)
}

// SetDropdownValues replaces the option list of a select column.
func (e *Engine) SetDropdownValues(ctx context.Context, columnOID int64, values []core.DropdownValue) error {
	return e.mutate("editTableColumnDropdownValues", func(cs *changeSet) error {
		col, err := e.store.GetColumn(ctx, columnOID)
		if err != nil {
			return err
		}
		if err := e.store.SetDropdownValues(ctx, columnOID, values); err != nil {
			return err
		}
		cs.shallow(e.downward(ctx, col.TableOID)...)
		return nil
	}, "column_oid", columnOID, "values", len(values))
}

// --- Rows ---

// PushRow appends a row to tableOID, or to the child rows of parentRowOID.
func (e *Engine) PushRow(ctx context.Context, tableOID int64, parentRowOID *int64) (int64, error) {
	var oid int64
	err := e.mutate("pushTableRow", func(cs *changeSet) error {
		var err error
		oid, err = e.store.PushRow(ctx, tableOID, parentRowOID)
		if err != nil {
			return err
		}
		cs.deep(e.upward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID)
	return oid, err
}

// InsertRow inserts a row immediately before beforeRowOID.
func (e *Engine) InsertRow(ctx context.Context, tableOID int64, parentRowOID *int64, beforeRowOID int64) (int64, error) {
	var oid int64
	err := e.mutate("insertTableRow", func(cs *changeSet) error {
		var err error
		oid, err = e.store.InsertRow(ctx, tableOID, parentRowOID, beforeRowOID)
		if err != nil {
			return err
		}
		cs.deep(e.upward(ctx, tableOID)...)
		return nil
	}, "table_oid", tableOID, "before_row_oid", beforeRowOID)
	return oid, err
}

// RetypeRow changes the subtype of a row seen through baseTypeOID and
// returns the subtype it had before.
func (e *Engine) RetypeRow(ctx context.Context, baseTypeOID, baseRowOID, newSubtypeOID int64) (int64, error) {
	var prev int64
	err := e.mutate("retypeTableRow", func(cs *changeSet) error {
		var err error
		prev, err = e.store.RetypeRow(ctx, baseTypeOID, baseRowOID, newSubtypeOID)
		if err != nil {
			return err
		}
		cs.deep(e.downward(ctx, baseTypeOID)...)
		cs.row(baseTypeOID, baseRowOID)
		return nil
	}, "table_oid", baseTypeOID, "row_oid", baseRowOID, "subtype_oid", newSubtypeOID)
	return prev, err
}

// DeleteRow permanently deletes a row and the rows it owns.
func (e *Engine) DeleteRow(ctx context.Context, tableOID, rowOID int64) error {
	return e.mutateRow(ctx, "deleteTableRow", tableOID, rowOID, e.store.DeleteRow)
}

// TrashRow moves a row to the trash.
func (e *Engine) TrashRow(ctx context.Context, tableOID, rowOID int64) error {
	return e.mutateRow(ctx, "trashTableRow", tableOID, rowOID, e.store.TrashRow)
}

// mutateRow applies fn to a row, live or trashed, and notifies every table
// the row was visible in.
func (e *Engine) mutateRow(ctx context.Context, action string, tableOID, rowOID int64, fn func(context.Context, int64, int64) error) error {
	return e.mutate(action, func(cs *changeSet) error {
		row, err := e.store.FindRow(ctx, tableOID, rowOID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tableOID, rowOID); err != nil {
			return err
		}
		cs.deep(e.upward(ctx, row.SubtypeOID)...)
		return nil
	}, "table_oid", tableOID, "row_oid", rowOID)
}

// RestoreRow brings a trashed row back.
func (e *Engine) RestoreRow(ctx context.Context, tableOID, rowOID int64) error {
	return e.mutate("restoreTableRow", func(cs *changeSet) error {
		if err := e.store.RestoreRow(ctx, tableOID, rowOID); err != nil {
			return err
		}
		row, err := e.store.GetRow(ctx, tableOID, rowOID)
		if err != nil {
			return err
		}
		cs.deep(e.upward(ctx, row.SubtypeOID)...)
		return nil
	}, "table_oid", tableOID, "row_oid", rowOID)
}

// --- Cells ---

// UpdateCellPrimitive stores value (nil clears the cell) and revalidates it.
func (e *Engine) UpdateCellPrimitive(ctx context.Context, tableOID, rowOID, columnOID int64, value *string) error {
	return e.mutate("updateTableCellStoredAsPrimitiveValue", func(cs *changeSet) error {
		col, err := e.store.GetColumn(ctx, columnOID)
		if err != nil {
			return err
		}
		if err := e.store.UpdateCellPrimitive(ctx, tableOID, rowOID, columnOID, value); err != nil {
			return err
		}
		cs.row(tableOID, rowOID)
		if col.MustBeUnique() {
			cs.shallow(e.downward(ctx, col.TableOID)...)
		}
		return nil
	}, "table_oid", tableOID, "row_oid", rowOID, "column_oid", columnOID)
}

// UpdateCellBlob stores the file at filePath in a File or Image cell.
// The cell keeps the base name of the file for display.
func (e *Engine) UpdateCellBlob(ctx context.Context, tableOID, rowOID, columnOID int64, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read blob source: %w", err)
	}
	src := core.BlobSource{FileName: filepath.Base(filePath), Data: data}

	return e.mutate("updateTableCellStoredAsBlob", func(cs *changeSet) error {
		if err := e.store.UpdateCellBlob(ctx, tableOID, rowOID, columnOID, src); err != nil {
			return err
		}
		cs.row(tableOID, rowOID)
		return nil
	}, "table_oid", tableOID, "row_oid", rowOID, "column_oid", columnOID, "size", len(data))
}

// SetObjectCell links childRowOID into a child-object cell, creates a new
// child row of childTypeOID when only the type is given, or unlinks the
// cell when both are nil.
func (e *Engine) SetObjectCell(ctx context.Context, tableOID, rowOID, columnOID int64, childTypeOID, childRowOID *int64) (ObjectLink, error) {
	var link ObjectLink
	err := e.mutate("setTableObjectCell", func(cs *changeSet) error {
		var err error
		link.RowOID, link.TableOID, err = e.store.SetObjectCell(ctx, tableOID, rowOID, columnOID, childTypeOID, childRowOID)
		if err != nil {
			return err
		}
		cs.row(tableOID, rowOID)
		if link.TableOID != 0 {
			cs.deep(e.upward(ctx, link.TableOID)...)
		}
		return nil
	}, "table_oid", tableOID, "row_oid", rowOID, "column_oid", columnOID)
	return link, err
}
