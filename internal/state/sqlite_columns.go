package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leaptable/internal/dag"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

const columnSelect = `SELECT oid, table_oid, name, ordering, width, style, type_mode, type_arg,
	is_nullable, is_unique, is_primary_key FROM meta_column`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanColumn(r rowScanner) (core.Column, error) {
	var c core.Column
	var mode int
	var arg int64
	var nullable, unique, pk int
	if err := r.Scan(&c.OID, &c.TableOID, &c.Name, &c.Ordering, &c.Width, &c.Style,
		&mode, &arg, &nullable, &unique, &pk); err != nil {
		return c, err
	}
	t, err := core.DecodeColumnType(core.TypeMode(mode), arg)
	if err != nil {
		return c, fmt.Errorf("column %d: %w", c.OID, err)
	}
	c.Type = t
	c.IsNullable = nullable != 0
	c.IsUnique = unique != 0
	c.IsPrimaryKey = pk != 0
	return c, nil
}

func getColumn(ctx context.Context, q querier, columnOID int64) (*core.Column, error) {
	c, err := scanColumn(q.QueryRowContext(ctx, columnSelect+` WHERE oid = ?`, columnOID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "column", OID: columnOID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get column: %w", err)
	}
	return &c, nil
}

func queryColumns(ctx context.Context, q querier, where string, args ...any) ([]core.Column, error) {
	rows, err := q.QueryContext(ctx, columnSelect+` WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var cols []core.Column
	for rows.Next() {
		c, err := scanColumn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// tableColumns returns the columns defined on tableOID itself, in ordering.
func tableColumns(ctx context.Context, q querier, tableOID int64) ([]core.Column, error) {
	return queryColumns(ctx, q, `table_oid = ? ORDER BY ordering, oid`, tableOID)
}

// visibleColumns returns the columns of tableOID including inherited ones.
// Columns of masters come first, in inheritance order.
func visibleColumns(ctx context.Context, q querier, g *dag.Graph, tableOID int64) ([]core.Column, error) {
	var cols []core.Column
	for _, t := range g.AncestorsOrSelf(tableOID) {
		own, err := tableColumns(ctx, q, t)
		if err != nil {
			return nil, err
		}
		cols = append(cols, own...)
	}
	return cols, nil
}

// visibleColumn loads columnOID and checks that tableOID can see it.
func visibleColumn(ctx context.Context, q querier, g *dag.Graph, tableOID, columnOID int64) (*core.Column, error) {
	c, err := getColumn(ctx, q, columnOID)
	if err != nil {
		return nil, err
	}
	if !g.Reaches(c.TableOID, tableOID) {
		return nil, &core.NotFoundError{Kind: "column", OID: columnOID}
	}
	return c, nil
}

// ownColumn loads columnOID and checks that it is defined on tableOID.
func ownColumn(ctx context.Context, q querier, tableOID, columnOID int64) (*core.Column, error) {
	c, err := getColumn(ctx, q, columnOID)
	if err != nil {
		return nil, err
	}
	if c.TableOID != tableOID {
		return nil, &core.NotFoundError{Kind: "column", OID: columnOID}
	}
	return c, nil
}

func countColumns(ctx context.Context, q querier, tableOID int64) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meta_column WHERE table_oid = ?`, tableOID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count columns: %w", err)
	}
	return n, nil
}

// resolveType checks the references of t and creates an option list for
// select columns that do not name one. fallbackList is reused when set.
func resolveType(ctx context.Context, q querier, t core.ColumnType, columnName string, fallbackList int64) (core.ColumnType, error) {
	if t == nil {
		return core.Primitive{Kind: core.PrimitiveText}, nil
	}

	if target, ok := core.TargetTableOID(t); ok {
		if _, err := getTable(ctx, q, target); err != nil {
			return nil, err
		}
		return t, nil
	}

	list, ok := core.DropdownListOID(t)
	if !ok {
		return t, nil
	}
	if list == 0 && fallbackList != 0 {
		list = fallbackList
	}
	if list == 0 {
		res, err := q.ExecContext(ctx, `INSERT INTO meta_dropdown_list (name) VALUES (?)`, columnName)
		if err != nil {
			return nil, fmt.Errorf("failed to create dropdown list: %w", err)
		}
		if list, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("failed to create dropdown list: %w", err)
		}
	} else {
		var exists int
		err := q.QueryRowContext(ctx, `SELECT 1 FROM meta_dropdown_list WHERE oid = ?`, list).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &core.NotFoundError{Kind: "dropdown list", OID: list}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get dropdown list: %w", err)
		}
	}

	switch t.(type) {
	case core.SingleSelect:
		return core.SingleSelect{ListOID: list}, nil
	case core.MultiSelect:
		return core.MultiSelect{ListOID: list}, nil
	default:
		panic(fmt.Sprintf("unhandled column type %T", t))
	}
}

// CreateColumn creates a column. A nil ordering appends; otherwise the
// column is inserted at that position and later columns shift right.
func (s *SQLiteStore) CreateColumn(ctx context.Context, spec core.ColumnSpec) (int64, error) {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return 0, &core.NameRequiredError{Field: "name"}
	}

	var oid int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTable(ctx, tx, spec.TableOID); err != nil {
			return err
		}
		colType, err := resolveType(ctx, tx, spec.Type, name, 0)
		if err != nil {
			return err
		}

		n, err := countColumns(ctx, tx, spec.TableOID)
		if err != nil {
			return err
		}
		pos := n
		if spec.Ordering != nil {
			pos = clamp(*spec.Ordering, 0, n)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET ordering = ordering + 1 WHERE table_oid = ? AND ordering >= ?`,
			spec.TableOID, pos); err != nil {
			return fmt.Errorf("failed to shift columns: %w", err)
		}

		mode, arg := core.EncodeColumnType(colType)
		res, err := tx.ExecContext(ctx,
			`INSERT INTO meta_column (table_oid, name, ordering, width, style, type_mode, type_arg,
				is_nullable, is_unique, is_primary_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			spec.TableOID, name, pos, s.defaultWidth, spec.Style, int(mode), arg,
			boolToInt(spec.IsNullable), boolToInt(spec.IsUnique), boolToInt(spec.IsPrimaryKey))
		if err != nil {
			return fmt.Errorf("failed to create column: %w", err)
		}
		if oid, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to create column: %w", err)
		}

		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		col, err := getColumn(ctx, tx, oid)
		if err != nil {
			return err
		}
		return revalidateColumns(ctx, tx, g, []core.Column{*col})
	})
	if err != nil {
		return 0, err
	}
	return oid, nil
}

// EditColumn updates a column in place. Stored values are not converted
// when the type changes; revalidation flags the ones that no longer fit.
func (s *SQLiteStore) EditColumn(ctx context.Context, edit core.ColumnEdit) error {
	name := strings.TrimSpace(edit.Name)
	if name == "" {
		return &core.NameRequiredError{Field: "name"}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := ownColumn(ctx, tx, edit.TableOID, edit.ColumnOID)
		if err != nil {
			return err
		}
		oldList, _ := core.DropdownListOID(old.Type)
		colType, err := resolveType(ctx, tx, edit.Type, name, oldList)
		if err != nil {
			return err
		}

		mode, arg := core.EncodeColumnType(colType)
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET name = ?, style = ?, type_mode = ?, type_arg = ?,
				is_nullable = ?, is_unique = ?, is_primary_key = ?
			WHERE oid = ?`,
			name, edit.Style, int(mode), arg,
			boolToInt(edit.IsNullable), boolToInt(edit.IsUnique), boolToInt(edit.IsPrimaryKey),
			edit.ColumnOID); err != nil {
			return fmt.Errorf("failed to edit column: %w", err)
		}

		if newList, _ := core.DropdownListOID(colType); oldList != 0 && oldList != newList {
			if err := dropUnusedList(ctx, tx, oldList); err != nil {
				return err
			}
		}

		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		col, err := getColumn(ctx, tx, edit.ColumnOID)
		if err != nil {
			return err
		}
		return revalidateColumns(ctx, tx, g, []core.Column{*col})
	})
}

// SetColumnWidth sets the display width of a column.
func (s *SQLiteStore) SetColumnWidth(ctx context.Context, tableOID, columnOID, width int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := ownColumn(ctx, tx, tableOID, columnOID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET width = ? WHERE oid = ?`, width, columnOID); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
		return nil
	})
}

// ReorderColumn moves a column to newOrdering, or to the end when nil.
// The stored ordering is authoritative; oldOrdering is only logged when it
// disagrees.
func (s *SQLiteStore) ReorderColumn(ctx context.Context, tableOID, columnOID, oldOrdering int64, newOrdering *int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		col, err := ownColumn(ctx, tx, tableOID, columnOID)
		if err != nil {
			return err
		}
		if col.Ordering != oldOrdering {
			s.logger.Debug("stale column ordering",
				"column_oid", columnOID, "given", oldOrdering, "stored", col.Ordering)
		}

		n, err := countColumns(ctx, tx, tableOID)
		if err != nil {
			return err
		}
		target := n - 1
		if newOrdering != nil {
			target = clamp(*newOrdering, 0, n-1)
		}
		if target == col.Ordering {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET ordering = ordering - 1 WHERE table_oid = ? AND ordering > ?`,
			tableOID, col.Ordering); err != nil {
			return fmt.Errorf("failed to shift columns: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET ordering = ordering + 1
			WHERE table_oid = ? AND ordering >= ? AND oid <> ?`,
			tableOID, target, columnOID); err != nil {
			return fmt.Errorf("failed to shift columns: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET ordering = ? WHERE oid = ?`, target, columnOID); err != nil {
			return fmt.Errorf("failed to reorder column: %w", err)
		}
		return nil
	})
}

// DeleteColumn deletes a column and all of its cells. Rows owned through
// child object and child table columns are deleted with it.
func (s *SQLiteStore) DeleteColumn(ctx context.Context, tableOID, columnOID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		col, err := ownColumn(ctx, tx, tableOID, columnOID)
		if err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}

		owned, err := ownedByColumn(ctx, tx, g, *col)
		if err != nil {
			return err
		}
		rows, err := collectOwnedRows(ctx, tx, owned)
		if err != nil {
			return err
		}
		subtypes, err := rowSubtypes(ctx, tx, rows)
		if err != nil {
			return err
		}

		if err := deleteRows(ctx, tx, rows); err != nil {
			return err
		}
		stmts := []string{
			`DELETE FROM data_cell_failure WHERE column_oid = ?`,
			`DELETE FROM data_cell WHERE column_oid = ?`,
			`UPDATE meta_table SET display_column_oid = NULL WHERE display_column_oid = ?`,
			`DELETE FROM meta_column WHERE oid = ?`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt, columnOID); err != nil {
				return fmt.Errorf("failed to delete column: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_column SET ordering = ordering - 1 WHERE table_oid = ? AND ordering > ?`,
			tableOID, col.Ordering); err != nil {
			return fmt.Errorf("failed to renumber columns: %w", err)
		}
		if list, ok := core.DropdownListOID(col.Type); ok {
			if err := dropUnusedList(ctx, tx, list); err != nil {
				return err
			}
		}

		return revalidateForRowChanges(ctx, tx, g, subtypes)
	})
}

// GetColumn retrieves a column by OID.
func (s *SQLiteStore) GetColumn(ctx context.Context, columnOID int64) (*core.Column, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	return getColumn(ctx, q, columnOID)
}

// ListColumns returns the columns visible in tableOID, inherited ones first.
func (s *SQLiteStore) ListColumns(ctx context.Context, tableOID int64) ([]core.Column, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	if _, err := getTable(ctx, q, tableOID); err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}
	return visibleColumns(ctx, q, g, tableOID)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
