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

const rowSelect = `SELECT oid, subtype_oid, parent_row_oid, ordering, trashed FROM data_row`

func scanRow(r rowScanner) (core.Row, error) {
	var row core.Row
	var parent sql.NullInt64
	var trashed int
	if err := r.Scan(&row.OID, &row.SubtypeOID, &parent, &row.Ordering, &trashed); err != nil {
		return row, err
	}
	row.ParentRowOID = int64Ptr(parent)
	row.Trashed = trashed != 0
	return row, nil
}

func getRow(ctx context.Context, q querier, rowOID int64) (*core.Row, error) {
	row, err := scanRow(q.QueryRowContext(ctx, rowSelect+` WHERE oid = ?`, rowOID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "row", OID: rowOID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get row: %w", err)
	}
	return &row, nil
}

// visibleRow loads rowOID and checks that it is visible in tableOID.
// Trashed rows are found only when withTrashed is set.
func visibleRow(ctx context.Context, q querier, g *dag.Graph, tableOID, rowOID int64, withTrashed bool) (*core.Row, error) {
	row, err := getRow(ctx, q, rowOID)
	if err != nil {
		return nil, err
	}
	if (row.Trashed && !withTrashed) || !g.Reaches(tableOID, row.SubtypeOID) {
		return nil, &core.NotFoundError{Kind: "row", OID: rowOID}
	}
	return row, nil
}

// ownerTrashed reports whether rowOID or any row owning it, transitively,
// is in the trash. Unknown rows report false.
func ownerTrashed(ctx context.Context, q querier, rowOID int64) (bool, error) {
	var trashed int
	err := q.QueryRowContext(ctx, `
		WITH RECURSIVE chain (oid, parent_row_oid, trashed) AS (
			SELECT oid, parent_row_oid, trashed FROM data_row WHERE oid = ?
			UNION
			SELECT r.oid, r.parent_row_oid, r.trashed
			FROM data_row r JOIN chain c ON r.oid = c.parent_row_oid
		)
		SELECT COALESCE(MAX(trashed), 0) FROM chain`, rowOID).Scan(&trashed)
	if err != nil {
		return false, fmt.Errorf("failed to check row trash: %w", err)
	}
	return trashed != 0, nil
}

// nextOrdering returns the ordering that appends to the parent's row list.
func nextOrdering(ctx context.Context, q querier, parentRowOID *int64) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordering), -1) + 1 FROM data_row WHERE parent_row_oid IS ?`,
		nullInt64(parentRowOID)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute row ordering: %w", err)
	}
	return next, nil
}

func insertRow(ctx context.Context, q querier, subtypeOID int64, parentRowOID *int64, ordering int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO data_row (subtype_oid, parent_row_oid, ordering) VALUES (?, ?, ?)`,
		subtypeOID, nullInt64(parentRowOID), ordering)
	if err != nil {
		return 0, fmt.Errorf("failed to create row: %w", err)
	}
	oid, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to create row: %w", err)
	}
	return oid, nil
}

// PushRow appends an empty row to a table, or to a parent row's child list.
func (s *SQLiteStore) PushRow(ctx context.Context, tableOID int64, parentRowOID *int64) (int64, error) {
	var oid int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := s.prepareRowInsert(ctx, tx, tableOID, parentRowOID)
		if err != nil {
			return err
		}
		ordering, err := nextOrdering(ctx, tx, parentRowOID)
		if err != nil {
			return err
		}
		if oid, err = insertRow(ctx, tx, tableOID, parentRowOID, ordering); err != nil {
			return err
		}
		return revalidateRow(ctx, tx, g, oid, tableOID)
	})
	if err != nil {
		return 0, err
	}
	return oid, nil
}

// InsertRow inserts an empty row immediately before beforeRowOID.
func (s *SQLiteStore) InsertRow(ctx context.Context, tableOID int64, parentRowOID *int64, beforeRowOID int64) (int64, error) {
	var oid int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := s.prepareRowInsert(ctx, tx, tableOID, parentRowOID)
		if err != nil {
			return err
		}
		before, err := visibleRow(ctx, tx, g, tableOID, beforeRowOID, false)
		if err != nil {
			return err
		}
		if !sameParent(before.ParentRowOID, parentRowOID) {
			return &core.NotFoundError{Kind: "row", OID: beforeRowOID}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE data_row SET ordering = ordering + 1 WHERE parent_row_oid IS ? AND ordering >= ?`,
			nullInt64(parentRowOID), before.Ordering); err != nil {
			return fmt.Errorf("failed to shift rows: %w", err)
		}
		if oid, err = insertRow(ctx, tx, tableOID, parentRowOID, before.Ordering); err != nil {
			return err
		}
		return revalidateRow(ctx, tx, g, oid, tableOID)
	})
	if err != nil {
		return 0, err
	}
	return oid, nil
}

func (s *SQLiteStore) prepareRowInsert(ctx context.Context, q querier, tableOID int64, parentRowOID *int64) (*dag.Graph, error) {
	if _, err := getTable(ctx, q, tableOID); err != nil {
		return nil, err
	}
	if parentRowOID != nil {
		parent, err := getRow(ctx, q, *parentRowOID)
		if err != nil {
			return nil, err
		}
		if parent.Trashed {
			return nil, &core.NotFoundError{Kind: "row", OID: *parentRowOID}
		}
	}
	return loadGraph(ctx, q)
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// DeleteRow permanently deletes a row, its cells and the rows it owns.
func (s *SQLiteStore) DeleteRow(ctx context.Context, tableOID, rowOID int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		if _, err := visibleRow(ctx, tx, g, tableOID, rowOID, true); err != nil {
			return err
		}

		rows, err := collectOwnedRows(ctx, tx, []int64{rowOID})
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
		return revalidateForRowChanges(ctx, tx, g, subtypes)
	})
}

// TrashRow moves a row to the trash. Trashed rows are hidden from reads
// and ignored by uniqueness and reference checks.
func (s *SQLiteStore) TrashRow(ctx context.Context, tableOID, rowOID int64) error {
	return s.setTrashed(ctx, tableOID, rowOID, true)
}

// RestoreRow brings a trashed row back.
func (s *SQLiteStore) RestoreRow(ctx context.Context, tableOID, rowOID int64) error {
	return s.setTrashed(ctx, tableOID, rowOID, false)
}

func (s *SQLiteStore) setTrashed(ctx context.Context, tableOID, rowOID int64, trashed bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		row, err := visibleRow(ctx, tx, g, tableOID, rowOID, true)
		if err != nil {
			return err
		}
		if row.Trashed == trashed {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE data_row SET trashed = ? WHERE oid = ?`, boolToInt(trashed), rowOID); err != nil {
			return fmt.Errorf("failed to update row: %w", err)
		}
		if !trashed {
			if err := revalidateRow(ctx, tx, g, rowOID, row.SubtypeOID); err != nil {
				return err
			}
		}
		return revalidateForRowChanges(ctx, tx, g, []int64{row.SubtypeOID})
	})
}

// RetypeRow changes the subtype of a row and returns the previous one.
// newSubtypeOID must be baseTypeOID or one of its subtypes. Cells of
// columns the row no longer has are kept and reappear when the row is
// retyped back.
func (s *SQLiteStore) RetypeRow(ctx context.Context, baseTypeOID, baseRowOID, newSubtypeOID int64) (int64, error) {
	var previous int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		if _, ok := g.GetNode(baseTypeOID); !ok {
			return &core.NotFoundError{Kind: "table", OID: baseTypeOID}
		}
		if _, ok := g.GetNode(newSubtypeOID); !ok {
			return &core.NotFoundError{Kind: "table", OID: newSubtypeOID}
		}
		row, err := visibleRow(ctx, tx, g, baseTypeOID, baseRowOID, false)
		if err != nil {
			return err
		}
		if !g.Reaches(baseTypeOID, newSubtypeOID) {
			return &core.InvalidSubtypeError{BaseOID: baseTypeOID, SubtypeOID: newSubtypeOID}
		}

		previous = row.SubtypeOID
		if previous == newSubtypeOID {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE data_row SET subtype_oid = ? WHERE oid = ?`, newSubtypeOID, baseRowOID); err != nil {
			return fmt.Errorf("failed to retype row: %w", err)
		}

		if err := revalidateRow(ctx, tx, g, baseRowOID, newSubtypeOID); err != nil {
			return err
		}
		return revalidateForRowChanges(ctx, tx, g, []int64{previous, newSubtypeOID})
	})
	if err != nil {
		return 0, err
	}
	return previous, nil
}

// GetRow retrieves a live row visible in tableOID.
func (s *SQLiteStore) GetRow(ctx context.Context, tableOID, rowOID int64) (*core.Row, error) {
	return s.findRow(ctx, tableOID, rowOID, false)
}

// FindRow retrieves a row visible in tableOID, live or trashed.
func (s *SQLiteStore) FindRow(ctx context.Context, tableOID, rowOID int64) (*core.Row, error) {
	return s.findRow(ctx, tableOID, rowOID, true)
}

func (s *SQLiteStore) findRow(ctx context.Context, tableOID, rowOID int64, withTrashed bool) (*core.Row, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}
	return visibleRow(ctx, q, g, tableOID, rowOID, withTrashed)
}

// RowPage returns live rows visible in tableOID under parentRowOID, in row
// order. A nil parentRowOID selects top-level rows. Rows owned by a
// trashed row are hidden along with it.
func (s *SQLiteStore) RowPage(ctx context.Context, tableOID int64, parentRowOID *int64, offset, limit int) ([]core.Row, error) {
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
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		return nil, nil
	}
	if parentRowOID != nil {
		hidden, err := ownerTrashed(ctx, q, *parentRowOID)
		if err != nil || hidden {
			return nil, err
		}
	}

	in, args := inClause(g.DescendantsOrSelf(tableOID))
	args = append([]any{nullInt64(parentRowOID)}, args...)
	args = append(args, limit, offset)

	rows, err := q.QueryContext(ctx,
		rowSelect+` WHERE parent_row_oid IS ? AND trashed = 0 AND subtype_oid IN (`+in+`)
		ORDER BY ordering, oid LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	defer rows.Close()

	var out []core.Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// collectOwnedRows expands roots with every row they own, transitively.
func collectOwnedRows(ctx context.Context, q querier, roots []int64) ([]int64, error) {
	seen := make(map[int64]bool)
	var all []int64
	frontier := dedupe(roots)
	for len(frontier) > 0 {
		var next []int64
		for _, oid := range frontier {
			if !seen[oid] {
				seen[oid] = true
				all = append(all, oid)
				next = append(next, oid)
			}
		}
		if len(next) == 0 {
			break
		}
		in, args := inClause(next)
		children, err := scanInt64s(ctx, q,
			`SELECT oid FROM data_row WHERE parent_row_oid IN (`+in+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list child rows: %w", err)
		}
		frontier = children
	}
	return all, nil
}

// ownedByColumn returns the rows owned through a child object or child
// table column.
func ownedByColumn(ctx context.Context, q querier, g *dag.Graph, col core.Column) ([]int64, error) {
	switch t := col.Type.(type) {
	case core.ChildObject:
		rows, err := q.QueryContext(ctx,
			`SELECT c.row_oid, c.value FROM data_cell c WHERE c.column_oid = ? AND c.value IS NOT NULL`,
			col.OID)
		if err != nil {
			return nil, fmt.Errorf("failed to list child objects: %w", err)
		}
		type link struct{ owner, child int64 }
		var links []link
		for rows.Next() {
			var owner int64
			var value string
			if err := rows.Scan(&owner, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan child object: %w", err)
			}
			if child, err := strconv.ParseInt(value, 10, 64); err == nil {
				links = append(links, link{owner, child})
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to list child objects: %w", err)
		}
		rows.Close()

		var owned []int64
		for _, l := range links {
			child, err := getRow(ctx, q, l.child)
			if core.IsNotFound(err) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if child.ParentRowOID != nil && *child.ParentRowOID == l.owner {
				owned = append(owned, child.OID)
			}
		}
		return owned, nil
	case core.ChildTable:
		if _, ok := g.GetNode(t.TableOID); !ok {
			return nil, nil
		}
		owners := g.DescendantsOrSelf(col.TableOID)
		targets := g.DescendantsOrSelf(t.TableOID)
		ownIn, ownArgs := inClause(owners)
		tgtIn, tgtArgs := inClause(targets)
		owned, err := scanInt64s(ctx, q,
			`SELECT r.oid FROM data_row r JOIN data_row p ON p.oid = r.parent_row_oid
			WHERE p.subtype_oid IN (`+ownIn+`) AND r.subtype_oid IN (`+tgtIn+`)`,
			append(ownArgs, tgtArgs...)...)
		if err != nil {
			return nil, fmt.Errorf("failed to list child rows: %w", err)
		}
		return owned, nil
	case core.Primitive, core.SingleSelect, core.MultiSelect, core.Reference:
		return nil, nil
	default:
		panic(fmt.Sprintf("unhandled column type %T", col.Type))
	}
}

// rowSubtypes returns the distinct subtypes of the given rows.
func rowSubtypes(ctx context.Context, q querier, rows []int64) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	in, args := inClause(rows)
	subtypes, err := scanInt64s(ctx, q,
		`SELECT DISTINCT subtype_oid FROM data_row WHERE oid IN (`+in+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list row subtypes: %w", err)
	}
	return subtypes, nil
}

// deleteRows deletes rows with their cells and failures.
func deleteRows(ctx context.Context, q querier, rows []int64) error {
	if len(rows) == 0 {
		return nil
	}
	in, args := inClause(rows)
	stmts := []string{
		`DELETE FROM data_cell_failure WHERE row_oid IN (` + in + `)`,
		`DELETE FROM data_cell WHERE row_oid IN (` + in + `)`,
		`DELETE FROM data_row WHERE oid IN (` + in + `)`,
	}
	for _, stmt := range stmts {
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("failed to delete rows: %w", err)
		}
	}
	return nil
}
