package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// SetDropdownValues replaces the option list of a select column.
// Duplicate true values keep their first occurrence.
func (s *SQLiteStore) SetDropdownValues(ctx context.Context, columnOID int64, values []core.DropdownValue) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		col, err := getColumn(ctx, tx, columnOID)
		if err != nil {
			return err
		}
		list, ok := core.DropdownListOID(col.Type)
		if !ok {
			return &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "dropdown values"}
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM meta_dropdown_option WHERE list_oid = ?`, list); err != nil {
			return fmt.Errorf("failed to clear dropdown values: %w", err)
		}
		seen := make(map[string]bool, len(values))
		for i, v := range values {
			if v.TrueValue == "" {
				return &core.NameRequiredError{Field: "trueValue"}
			}
			if seen[v.TrueValue] {
				continue
			}
			seen[v.TrueValue] = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO meta_dropdown_option (list_oid, ordering, true_value, display_value)
				VALUES (?, ?, ?, ?)`,
				list, i, v.TrueValue, v.DisplayValue); err != nil {
				return fmt.Errorf("failed to add dropdown value: %w", err)
			}
		}

		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		sharing, err := queryColumns(ctx, tx,
			`type_mode IN (?, ?) AND type_arg = ?`,
			int(core.ModeSingleSelect), int(core.ModeMultiSelect), list)
		if err != nil {
			return err
		}
		return revalidateColumns(ctx, tx, g, sharing)
	})
}

// DropdownValues returns the legal values of a column. Select columns
// yield their option list in stored order; reference columns yield one
// entry per live row of the target table, labelled by its display column.
func (s *SQLiteStore) DropdownValues(ctx context.Context, columnOID int64) ([]core.DropdownValue, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	col, err := getColumn(ctx, q, columnOID)
	if err != nil {
		return nil, err
	}

	switch t := col.Type.(type) {
	case core.SingleSelect:
		return listOptions(ctx, q, t.ListOID)
	case core.MultiSelect:
		return listOptions(ctx, q, t.ListOID)
	case core.Reference:
		g, err := loadGraph(ctx, q)
		if err != nil {
			return nil, err
		}
		if _, ok := g.GetNode(t.TableOID); !ok {
			return nil, nil
		}
		in, args := inClause(g.DescendantsOrSelf(t.TableOID))
		oids, err := scanInt64s(ctx, q,
			`SELECT oid FROM data_row WHERE trashed = 0 AND subtype_oid IN (`+in+`)
			ORDER BY ordering, oid`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to list reference rows: %w", err)
		}
		lr := newLabeler(q, g)
		out := make([]core.DropdownValue, 0, len(oids))
		for _, oid := range oids {
			label, err := lr.rowLabel(ctx, t.TableOID, oid)
			if err != nil {
				return nil, err
			}
			out = append(out, core.DropdownValue{
				TrueValue:    strconv.FormatInt(oid, 10),
				DisplayValue: label,
			})
		}
		return out, nil
	case core.Primitive, core.ChildObject, core.ChildTable:
		return nil, &core.TypeMismatchError{ColumnOID: columnOID, Type: col.Type, Operation: "dropdown values"}
	default:
		panic(fmt.Sprintf("unhandled column type %T", col.Type))
	}
}

func listOptions(ctx context.Context, q querier, listOID int64) ([]core.DropdownValue, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT true_value, display_value FROM meta_dropdown_option
		WHERE list_oid = ? ORDER BY ordering`, listOID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dropdown values: %w", err)
	}
	defer rows.Close()

	var out []core.DropdownValue
	for rows.Next() {
		var v core.DropdownValue
		if err := rows.Scan(&v.TrueValue, &v.DisplayValue); err != nil {
			return nil, fmt.Errorf("failed to scan dropdown value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// optionLabel returns the display value of an option, or false when the
// option does not exist.
func optionLabel(ctx context.Context, q querier, listOID int64, trueValue string) (string, bool, error) {
	var label string
	err := q.QueryRowContext(ctx,
		`SELECT display_value FROM meta_dropdown_option WHERE list_oid = ? AND true_value = ?`,
		listOID, trueValue).Scan(&label)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get dropdown value: %w", err)
	}
	return label, true, nil
}

// listSharedOutside reports whether columns of other tables use listOID.
func listSharedOutside(ctx context.Context, q querier, listOID, tableOID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meta_column WHERE type_mode IN (?, ?) AND type_arg = ? AND table_oid <> ?`,
		int(core.ModeSingleSelect), int(core.ModeMultiSelect), listOID, tableOID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check dropdown list usage: %w", err)
	}
	return n > 0, nil
}

// dropUnusedList deletes listOID when no column uses it any more.
func dropUnusedList(ctx context.Context, q querier, listOID int64) error {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM meta_column WHERE type_mode IN (?, ?) AND type_arg = ?`,
		int(core.ModeSingleSelect), int(core.ModeMultiSelect), listOID).Scan(&n)
	if err != nil {
		return fmt.Errorf("failed to check dropdown list usage: %w", err)
	}
	if n > 0 {
		return nil
	}
	return deleteLists(ctx, q, []int64{listOID})
}

func deleteLists(ctx context.Context, q querier, lists []int64) error {
	if len(lists) == 0 {
		return nil
	}
	in, args := inClause(lists)
	if _, err := q.ExecContext(ctx,
		`DELETE FROM meta_dropdown_option WHERE list_oid IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete dropdown values: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`DELETE FROM meta_dropdown_list WHERE oid IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete dropdown list: %w", err)
	}
	return nil
}
