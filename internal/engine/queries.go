package engine

import (
	"context"
	"errors"
	"iter"

	"github.com/google/uuid"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// ErrInvalidPage is wrapped by TableData when page or size is below 1.
var ErrInvalidPage = errors.New("page number and page size must be at least 1")

// stream runs body under the shared lock once the consumer starts ranging.
// The loop body of the consumer runs with the lock held, so it must not
// call back into the engine. emit yields one item, checking ctx first; it
// reports false when the consumer stopped or the context is done.
func stream[T any](ctx context.Context, e *Engine, query string, body func(emit func(T) bool) error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		reqID := uuid.New().String()
		e.logger.Debug("query started", "query", query, "request_id", reqID)

		e.mu.RLock()
		defer e.mu.RUnlock()

		var (
			n       int
			stopped bool
			zero    T
		)
		emit := func(item T) bool {
			if err := ctx.Err(); err != nil {
				if !stopped {
					stopped = true
					yield(zero, err)
				}
				return false
			}
			if stopped || !yield(item, nil) {
				stopped = true
				return false
			}
			n++
			return true
		}

		if err := ctx.Err(); err != nil {
			yield(zero, err)
			return
		}
		if err := body(emit); err != nil && !stopped {
			e.logger.Debug("query failed", "query", query, "request_id", reqID, "error", err)
			yield(zero, err)
			return
		}
		e.logger.Debug("query finished", "query", query, "request_id", reqID, "items", n)
	}
}

// sliceStream streams the items returned by load.
func sliceStream[T any](ctx context.Context, e *Engine, query string, load func() ([]T, error)) iter.Seq2[T, error] {
	return stream(ctx, e, query, func(emit func(T) bool) error {
		items, err := load()
		if err != nil {
			return err
		}
		for _, item := range items {
			if !emit(item) {
				return nil
			}
		}
		return nil
	})
}

// read runs fn under the shared lock.
func read[T any](e *Engine, fn func() (T, error)) (T, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fn()
}

// TableList streams the plain tables sorted by name.
func (e *Engine) TableList(ctx context.Context) iter.Seq2[core.TableSummary, error] {
	return sliceStream(ctx, e, "get_table_list", func() ([]core.TableSummary, error) {
		return e.store.ListTables(ctx, core.KindTable)
	})
}

// ObjectTypeList streams the object types as a hierarchy: each root type
// followed by its inheritors, depth first, with HierarchyLevel set.
func (e *Engine) ObjectTypeList(ctx context.Context) iter.Seq2[core.TableSummary, error] {
	return sliceStream(ctx, e, "get_object_type_list", func() ([]core.TableSummary, error) {
		return e.store.TableTree(ctx, core.KindObjectType)
	})
}

// TableMetadata returns a table with its master list and display column.
func (e *Engine) TableMetadata(ctx context.Context, tableOID int64) (*core.Table, error) {
	return read(e, func() (*core.Table, error) {
		return e.store.GetTable(ctx, tableOID)
	})
}

// TableColumns streams the columns visible in tableOID, inherited columns first.
func (e *Engine) TableColumns(ctx context.Context, tableOID int64) iter.Seq2[core.Column, error] {
	return sliceStream(ctx, e, "get_table_column_list", func() ([]core.Column, error) {
		return e.store.ListColumns(ctx, tableOID)
	})
}

// DropdownValues streams the options of a select column, or the live rows
// of the target table of a reference column.
func (e *Engine) DropdownValues(ctx context.Context, columnOID int64) iter.Seq2[core.DropdownValue, error] {
	return sliceStream(ctx, e, "get_table_column_dropdown_values", func() ([]core.DropdownValue, error) {
		return e.store.DropdownValues(ctx, columnOID)
	})
}

// Subtypes streams every table inheriting from tableOID with its depth.
func (e *Engine) Subtypes(ctx context.Context, tableOID int64) iter.Seq2[core.SubtypeOption, error] {
	return sliceStream(ctx, e, "get_subtype_list", func() ([]core.SubtypeOption, error) {
		return e.store.Subtypes(ctx, tableOID)
	})
}

// MasterListOptions streams candidate masters for tableOID (nil for a
// table not created yet). Candidates that would close a cycle are disabled.
func (e *Engine) MasterListOptions(ctx context.Context, tableOID *int64, allowTables bool) iter.Seq2[core.MasterListOption, error] {
	return sliceStream(ctx, e, "get_master_list_option_dropdown_values", func() ([]core.MasterListOption, error) {
		return e.store.MasterListOptions(ctx, tableOID, allowTables)
	})
}

// TableData streams one page of rows of tableOID (or of the child rows of
// parentRowOID). Each row is a RowStart followed by one CellValue per
// visible column. Pages are 1-based and computed independently.
func (e *Engine) TableData(ctx context.Context, tableOID int64, parentRowOID *int64, page, size int) iter.Seq2[core.TableDataItem, error] {
	return stream(ctx, e, "get_table_data", func(emit func(core.TableDataItem) bool) error {
		if page < 1 || size < 1 {
			return &core.InvalidParamsError{Operation: "get_table_data", Err: ErrInvalidPage}
		}
		if _, err := e.store.GetTable(ctx, tableOID); err != nil {
			return err
		}
		cols, err := e.store.ListColumns(ctx, tableOID)
		if err != nil {
			return err
		}
		offset := (page - 1) * size
		rows, err := e.store.RowPage(ctx, tableOID, parentRowOID, offset, size)
		if err != nil {
			return err
		}

		for i, row := range rows {
			if !emit(core.RowStart{RowOID: row.OID, RowIndex: int64(offset + i + 1)}) {
				return nil
			}
			cells, err := e.store.RowCells(ctx, row.OID, cols)
			if err != nil {
				return err
			}
			for _, cell := range cells {
				if !emit(cell) {
					return nil
				}
			}
		}
		return nil
	})
}

// TableRow streams a RowExists marker and, when the row is visible in
// tableOID, one CellValue per visible column of tableOID.
func (e *Engine) TableRow(ctx context.Context, tableOID, rowOID int64) iter.Seq2[core.RowItem, error] {
	return e.rowStream(ctx, "get_table_row", tableOID, rowOID, false)
}

// ObjectData streams a child object like TableRow, with the columns of the
// subtype the row resolves to.
func (e *Engine) ObjectData(ctx context.Context, objTypeOID, objRowOID int64) iter.Seq2[core.RowItem, error] {
	return e.rowStream(ctx, "get_object_data", objTypeOID, objRowOID, true)
}

func (e *Engine) rowStream(ctx context.Context, query string, tableOID, rowOID int64, asSubtype bool) iter.Seq2[core.RowItem, error] {
	return stream(ctx, e, query, func(emit func(core.RowItem) bool) error {
		row, err := e.store.GetRow(ctx, tableOID, rowOID)
		if core.IsNotFound(err) {
			emit(core.RowExists{Exists: false})
			return nil
		}
		if err != nil {
			return err
		}
		if !emit(core.RowExists{Exists: true, TableOID: row.SubtypeOID}) {
			return nil
		}

		colsOf := tableOID
		if asSubtype {
			colsOf = row.SubtypeOID
		}
		cols, err := e.store.ListColumns(ctx, colsOf)
		if err != nil {
			return err
		}
		cells, err := e.store.RowCells(ctx, row.OID, cols)
		if err != nil {
			return err
		}
		for _, cell := range cells {
			if !emit(cell) {
				return nil
			}
		}
		return nil
	})
}

// BlobValue returns the file name and size stored in a File or Image cell.
func (e *Engine) BlobValue(ctx context.Context, tableOID, rowOID, columnOID int64) (*core.BlobInfo, error) {
	return read(e, func() (*core.BlobInfo, error) {
		return e.store.BlobInfo(ctx, tableOID, rowOID, columnOID)
	})
}
