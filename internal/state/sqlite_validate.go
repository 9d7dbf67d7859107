package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leapstack-labs/leaptable/internal/dag"
	"github.com/leapstack-labs/leaptable/internal/validation"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// lookup answers validation questions from within the current transaction.
type lookup struct {
	q querier
	g *dag.Graph
}

var _ validation.Lookup = lookup{}

func (l lookup) OptionExists(ctx context.Context, listOID int64, value string) (bool, error) {
	_, ok, err := optionLabel(ctx, l.q, listOID, value)
	return ok, err
}

func (l lookup) RowExists(ctx context.Context, tableOID, rowOID int64) (bool, error) {
	if _, ok := l.g.GetNode(tableOID); !ok {
		return false, nil
	}
	_, err := visibleRow(ctx, l.q, l.g, tableOID, rowOID, false)
	if core.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (l lookup) IsDuplicate(ctx context.Context, column core.Column, rowOID int64, value string) (bool, error) {
	in, args := inClause(l.g.DescendantsOrSelf(column.TableOID))
	args = append([]any{column.OID, value, rowOID}, args...)

	var n int
	err := l.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM data_cell c JOIN data_row r ON r.oid = c.row_oid
		WHERE c.column_oid = ? AND c.value = ? AND c.row_oid <> ?
		AND r.trashed = 0 AND r.subtype_oid IN (`+in+`)`, args...).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// cellValue returns the stored value of a cell, nil when unset.
func cellValue(ctx context.Context, q querier, rowOID, columnOID int64) (*string, error) {
	var v sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT value FROM data_cell WHERE row_oid = ? AND column_oid = ?`, rowOID, columnOID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cell: %w", err)
	}
	return stringPtr(v), nil
}

func cellFailures(ctx context.Context, q querier, rowOID, columnOID int64) ([]core.FailedValidation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT description FROM data_cell_failure WHERE row_oid = ? AND column_oid = ? ORDER BY seq`,
		rowOID, columnOID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cell failures: %w", err)
	}
	defer rows.Close()

	var out []core.FailedValidation
	for rows.Next() {
		var f core.FailedValidation
		if err := rows.Scan(&f.Description); err != nil {
			return nil, fmt.Errorf("failed to scan cell failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func writeFailures(ctx context.Context, q querier, rowOID, columnOID int64, failures []core.FailedValidation) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM data_cell_failure WHERE row_oid = ? AND column_oid = ?`, rowOID, columnOID); err != nil {
		return fmt.Errorf("failed to clear cell failures: %w", err)
	}
	for i, f := range failures {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO data_cell_failure (row_oid, column_oid, seq, description) VALUES (?, ?, ?, ?)`,
			rowOID, columnOID, i, f.Description); err != nil {
			return fmt.Errorf("failed to record cell failure: %w", err)
		}
	}
	return nil
}

// validateCell checks the stored value of one cell and persists the result.
func validateCell(ctx context.Context, q querier, g *dag.Graph, rowOID int64, col core.Column) error {
	value, err := cellValue(ctx, q, rowOID, col.OID)
	if err != nil {
		return err
	}
	failures, err := validation.Cell(ctx, lookup{q: q, g: g}, col, rowOID, value)
	if err != nil {
		return err
	}
	return writeFailures(ctx, q, rowOID, col.OID, failures)
}

// revalidateRow validates every cell of a row as seen through subtypeOID.
func revalidateRow(ctx context.Context, q querier, g *dag.Graph, rowOID, subtypeOID int64) error {
	cols, err := visibleColumns(ctx, q, g, subtypeOID)
	if err != nil {
		return err
	}
	for _, col := range cols {
		if err := validateCell(ctx, q, g, rowOID, col); err != nil {
			return err
		}
	}
	return nil
}

// revalidateColumns validates every live row of each column.
func revalidateColumns(ctx context.Context, q querier, g *dag.Graph, cols []core.Column) error {
	seen := make(map[int64]bool, len(cols))
	for _, col := range cols {
		if seen[col.OID] {
			continue
		}
		seen[col.OID] = true
		if _, ok := g.GetNode(col.TableOID); !ok {
			continue
		}

		in, args := inClause(g.DescendantsOrSelf(col.TableOID))
		rows, err := scanInt64s(ctx, q,
			`SELECT oid FROM data_row WHERE trashed = 0 AND subtype_oid IN (`+in+`)`, args...)
		if err != nil {
			return fmt.Errorf("failed to list rows: %w", err)
		}
		for _, rowOID := range rows {
			if err := validateCell(ctx, q, g, rowOID, col); err != nil {
				return err
			}
		}
	}
	return nil
}

// columnsForRowChanges returns the columns whose validity depends on which
// rows are visible in tables: unique columns defined on them and
// reference or child object columns pointing at them.
func columnsForRowChanges(ctx context.Context, q querier, tables []int64) ([]core.Column, error) {
	if len(tables) == 0 {
		return nil, nil
	}
	in, args := inClause(tables)
	unique, err := queryColumns(ctx, q,
		`(is_unique = 1 OR is_primary_key = 1) AND table_oid IN (`+in+`)`, args...)
	if err != nil {
		return nil, err
	}
	relArgs := append([]any{int(core.ModeReference), int(core.ModeChildObject)}, args...)
	relational, err := queryColumns(ctx, q,
		`type_mode IN (?, ?) AND type_arg IN (`+in+`)`, relArgs...)
	if err != nil {
		return nil, err
	}
	return append(unique, relational...), nil
}

// revalidateForRowChanges revalidates after rows of the given subtypes
// appeared, disappeared or changed type.
func revalidateForRowChanges(ctx context.Context, q querier, g *dag.Graph, subtypes []int64) error {
	var tables []int64
	for _, st := range subtypes {
		tables = union(tables, g.AncestorsOrSelf(st))
	}
	cols, err := columnsForRowChanges(ctx, q, tables)
	if err != nil {
		return err
	}
	return revalidateColumns(ctx, q, g, cols)
}
