package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leaptable/internal/dag"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// cellTarget resolves the row and column of a cell write and checks that
// both are visible in tableOID.
func cellTarget(ctx context.Context, q querier, tableOID, rowOID, columnOID int64) (*dag.Graph, *core.Row, *core.Column, error) {
	if _, err := getTable(ctx, q, tableOID); err != nil {
		return nil, nil, nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, nil, nil, err
	}
	row, err := visibleRow(ctx, q, g, tableOID, rowOID, false)
	if err != nil {
		return nil, nil, nil, err
	}
	// Columns of the row's subtype are writable from any table the row is visible in.
	col, err := visibleColumn(ctx, q, g, row.SubtypeOID, columnOID)
	if err != nil {
		return nil, nil, nil, err
	}
	return g, row, col, nil
}

func storeValue(ctx context.Context, q querier, rowOID, columnOID int64, value *string) error {
	if value == nil {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM data_cell WHERE row_oid = ? AND column_oid = ?`, rowOID, columnOID); err != nil {
			return fmt.Errorf("failed to clear cell: %w", err)
		}
		return nil
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO data_cell (row_oid, column_oid, value) VALUES (?, ?, ?)
		ON CONFLICT (row_oid, column_oid) DO UPDATE SET
			value = excluded.value, blob = NULL, blob_name = NULL, blob_size = NULL`,
		rowOID, columnOID, *value); err != nil {
		return fmt.Errorf("failed to update cell: %w", err)
	}
	return nil
}

// afterCellWrite validates the written cell. Writes to unique columns
// revalidate the whole column so duplicate flags on other rows follow.
func afterCellWrite(ctx context.Context, q querier, g *dag.Graph, rowOID int64, col core.Column) error {
	if col.MustBeUnique() {
		return revalidateColumns(ctx, q, g, []core.Column{col})
	}
	return validateCell(ctx, q, g, rowOID, col)
}

// UpdateCellPrimitive overwrites the stored value of a cell. Values are
// stored as given; normalization is up to the caller.
func (s *SQLiteStore) UpdateCellPrimitive(ctx context.Context, tableOID, rowOID, columnOID int64, value *string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		g, _, col, err := cellTarget(ctx, tx, tableOID, rowOID, columnOID)
		if err != nil {
			return err
		}

		switch t := col.Type.(type) {
		case core.Primitive:
			if t.Kind.IsBlob() && value != nil {
				return &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "primitive values"}
			}
		case core.SingleSelect, core.MultiSelect, core.Reference:
		case core.ChildObject, core.ChildTable:
			return &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "primitive values"}
		default:
			panic(fmt.Sprintf("unhandled column type %T", col.Type))
		}

		if err := storeValue(ctx, tx, rowOID, columnOID, value); err != nil {
			return err
		}
		return afterCellWrite(ctx, tx, g, rowOID, *col)
	})
}

// UpdateCellBlob replaces the payload of a File or Image cell. The file
// name becomes the stored value.
func (s *SQLiteStore) UpdateCellBlob(ctx context.Context, tableOID, rowOID, columnOID int64, src core.BlobSource) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		g, _, col, err := cellTarget(ctx, tx, tableOID, rowOID, columnOID)
		if err != nil {
			return err
		}
		if p, ok := col.Type.(core.Primitive); !ok || !p.Kind.IsBlob() {
			return &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "blob values"}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO data_cell (row_oid, column_oid, value, blob, blob_name, blob_size)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (row_oid, column_oid) DO UPDATE SET
				value = excluded.value, blob = excluded.blob,
				blob_name = excluded.blob_name, blob_size = excluded.blob_size`,
			rowOID, columnOID, src.FileName, src.Data, src.FileName, int64(len(src.Data))); err != nil {
			return fmt.Errorf("failed to store blob: %w", err)
		}
		return afterCellWrite(ctx, tx, g, rowOID, *col)
	})
}

// BlobInfo returns the file name and size stored in a File or Image cell.
func (s *SQLiteStore) BlobInfo(ctx context.Context, tableOID, rowOID, columnOID int64) (*core.BlobInfo, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	_, _, col, err := cellTarget(ctx, q, tableOID, rowOID, columnOID)
	if err != nil {
		return nil, err
	}
	if p, ok := col.Type.(core.Primitive); !ok || !p.Kind.IsBlob() {
		return nil, &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "blob values"}
	}
	info, err := blobInfo(ctx, q, rowOID, columnOID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &core.NotFoundError{Kind: "blob", OID: columnOID}
	}
	return info, nil
}

func blobInfo(ctx context.Context, q querier, rowOID, columnOID int64) (*core.BlobInfo, error) {
	var name sql.NullString
	var size sql.NullInt64
	err := q.QueryRowContext(ctx,
		`SELECT blob_name, blob_size FROM data_cell WHERE row_oid = ? AND column_oid = ?`,
		rowOID, columnOID).Scan(&name, &size)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !size.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blob: %w", err)
	}
	return &core.BlobInfo{FileName: name.String, Size: size.Int64}, nil
}

// SetObjectCell links, creates or removes the child object of a cell and
// returns the linked row and its type.
//
// With both childTypeOID and childRowOID nil the owned child row is
// deleted. With only childTypeOID a new child row of that type is created.
// With childRowOID the existing row is linked and becomes owned.
func (s *SQLiteStore) SetObjectCell(ctx context.Context, tableOID, rowOID, columnOID int64, childTypeOID, childRowOID *int64) (int64, int64, error) {
	var linkedRow, linkedType int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, _, col, err := cellTarget(ctx, tx, tableOID, rowOID, columnOID)
		if err != nil {
			return err
		}
		obj, ok := col.Type.(core.ChildObject)
		if !ok {
			return &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "object values"}
		}

		current, err := ownedChild(ctx, tx, rowOID, columnOID)
		if err != nil {
			return err
		}

		switch {
		case childRowOID != nil:
			child, err := visibleRow(ctx, tx, g, obj.TableOID, *childRowOID, false)
			if err != nil {
				return err
			}
			if err := checkNotAncestor(ctx, tx, child.OID, rowOID); err != nil {
				return err
			}
			if !sameParent(child.ParentRowOID, &rowOID) {
				parent := rowOID
				ordering, err := nextOrdering(ctx, tx, &parent)
				if err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx,
					`UPDATE data_row SET parent_row_oid = ?, ordering = ? WHERE oid = ?`,
					rowOID, ordering, child.OID); err != nil {
					return fmt.Errorf("failed to link child object: %w", err)
				}
			}
			linkedRow, linkedType = child.OID, child.SubtypeOID
		case childTypeOID != nil:
			if _, ok := g.GetNode(*childTypeOID); !ok {
				return &core.NotFoundError{Kind: "table", OID: *childTypeOID}
			}
			if !g.Reaches(obj.TableOID, *childTypeOID) {
				return &core.InvalidSubtypeError{BaseOID: obj.TableOID, SubtypeOID: *childTypeOID}
			}
			parent := rowOID
			ordering, err := nextOrdering(ctx, tx, &parent)
			if err != nil {
				return err
			}
			child, err := insertRow(ctx, tx, *childTypeOID, &parent, ordering)
			if err != nil {
				return err
			}
			if err := revalidateRow(ctx, tx, g, child, *childTypeOID); err != nil {
				return err
			}
			linkedRow, linkedType = child, *childTypeOID
		}

		if current != 0 && current != linkedRow {
			rows, err := collectOwnedRows(ctx, tx, []int64{current})
			if err != nil {
				return err
			}
			if err := deleteRows(ctx, tx, rows); err != nil {
				return err
			}
		}

		var value *string
		if linkedRow != 0 {
			v := strconv.FormatInt(linkedRow, 10)
			value = &v
		}
		if err := storeValue(ctx, tx, rowOID, columnOID, value); err != nil {
			return err
		}
		if err := afterCellWrite(ctx, tx, g, rowOID, *col); err != nil {
			return err
		}
		return revalidateForRowChanges(ctx, tx, g, []int64{obj.TableOID})
	})
	if err != nil {
		return 0, 0, err
	}
	return linkedRow, linkedType, nil
}

// checkNotAncestor fails when childOID is rowOID or owns it, transitively.
func checkNotAncestor(ctx context.Context, q querier, childOID, rowOID int64) error {
	for cur := &rowOID; cur != nil; {
		if *cur == childOID {
			return &core.OwnershipCycleError{RowOID: rowOID, ChildRowOID: childOID}
		}
		row, err := getRow(ctx, q, *cur)
		if err != nil {
			return err
		}
		cur = row.ParentRowOID
	}
	return nil
}

// ownedChild returns the child object row a cell owns, or 0.
func ownedChild(ctx context.Context, q querier, rowOID, columnOID int64) (int64, error) {
	value, err := cellValue(ctx, q, rowOID, columnOID)
	if err != nil || value == nil {
		return 0, err
	}
	child, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		return 0, nil
	}
	row, err := getRow(ctx, q, child)
	if core.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if row.ParentRowOID == nil || *row.ParentRowOID != rowOID {
		return 0, nil
	}
	return child, nil
}

// RowCells returns one cell per column for a row, with display values
// resolved and persisted failures attached.
func (s *SQLiteStore) RowCells(ctx context.Context, rowOID int64, columns []core.Column) ([]core.CellValue, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}
	lr := newLabeler(q, g)

	cells := make([]core.CellValue, 0, len(columns))
	for _, col := range columns {
		cell := core.CellValue{
			TableOID:       col.TableOID,
			RowOID:         rowOID,
			ColumnOID:      col.OID,
			ColumnName:     col.Name,
			ColumnType:     col.Type,
			ColumnOrdering: col.Ordering,
		}
		if _, ok := col.Type.(core.ChildTable); !ok {
			if cell.TrueValue, err = cellValue(ctx, q, rowOID, col.OID); err != nil {
				return nil, err
			}
		}
		if cell.DisplayValue, err = lr.display(ctx, rowOID, col, cell.TrueValue); err != nil {
			return nil, err
		}
		if cell.FailedValidations, err = cellFailures(ctx, q, rowOID, col.OID); err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return cells, nil
}
