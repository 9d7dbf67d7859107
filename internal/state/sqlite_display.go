package state

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/leapstack-labs/leaptable/internal/dag"
	"github.com/leapstack-labs/leaptable/internal/validation"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// labeler resolves display values. It caches the display column of each
// table for the duration of one read.
type labeler struct {
	q           querier
	g           *dag.Graph
	displayCols map[int64]*core.Column
}

func newLabeler(q querier, g *dag.Graph) *labeler {
	return &labeler{q: q, g: g, displayCols: make(map[int64]*core.Column)}
}

// display renders the stored value of a cell. Values that do not fit the
// column type fall back to the raw stored value.
func (l *labeler) display(ctx context.Context, rowOID int64, col core.Column, value *string) (*string, error) {
	if t, ok := col.Type.(core.ChildTable); ok {
		n, err := l.childCount(ctx, rowOID, t.TableOID)
		if err != nil {
			return nil, err
		}
		s := fmt.Sprintf("%d rows", n)
		if n == 1 {
			s = "1 row"
		}
		return &s, nil
	}
	if value == nil {
		return nil, nil
	}

	switch t := col.Type.(type) {
	case core.Primitive:
		if t.Kind.IsBlob() {
			info, err := blobInfo(ctx, l.q, rowOID, col.OID)
			if err != nil {
				return nil, err
			}
			if info != nil {
				s := fmt.Sprintf("%s (%s)", info.FileName, humanize.Bytes(uint64(info.Size)))
				return &s, nil
			}
		}
		return value, nil
	case core.SingleSelect:
		label, ok, err := optionLabel(ctx, l.q, t.ListOID, *value)
		if err != nil || !ok {
			return value, err
		}
		return &label, nil
	case core.MultiSelect:
		items, err := validation.ParseMultiSelect(*value)
		if err != nil {
			return value, nil
		}
		labels := make([]string, 0, len(items))
		for _, item := range items {
			label, ok, err := optionLabel(ctx, l.q, t.ListOID, item)
			if err != nil {
				return nil, err
			}
			if !ok {
				label = item
			}
			labels = append(labels, label)
		}
		s := strings.Join(labels, ", ")
		return &s, nil
	case core.Reference:
		return l.referenceLabel(ctx, t.TableOID, value)
	case core.ChildObject:
		return l.referenceLabel(ctx, t.TableOID, value)
	case core.ChildTable:
		return value, nil
	default:
		panic(fmt.Sprintf("unhandled column type %T", col.Type))
	}
}

func (l *labeler) referenceLabel(ctx context.Context, tableOID int64, value *string) (*string, error) {
	rowOID, err := strconv.ParseInt(strings.TrimSpace(*value), 10, 64)
	if err != nil {
		return value, nil
	}
	if _, ok := l.g.GetNode(tableOID); !ok {
		return value, nil
	}
	if _, err := visibleRow(ctx, l.q, l.g, tableOID, rowOID, false); err != nil {
		if core.IsNotFound(err) {
			return value, nil
		}
		return nil, err
	}
	label, err := l.rowLabel(ctx, tableOID, rowOID)
	if err != nil {
		return nil, err
	}
	return &label, nil
}

// rowLabel renders a row of tableOID by the table's display column, or
// its first column when none is designated. Relational display columns
// render their raw value.
func (l *labeler) rowLabel(ctx context.Context, tableOID, rowOID int64) (string, error) {
	col, err := l.displayColumn(ctx, tableOID)
	if err != nil {
		return "", err
	}
	if col == nil {
		return strconv.FormatInt(rowOID, 10), nil
	}

	value, err := cellValue(ctx, l.q, rowOID, col.OID)
	if err != nil || value == nil {
		return "", err
	}
	switch t := col.Type.(type) {
	case core.SingleSelect:
		if label, ok, err := optionLabel(ctx, l.q, t.ListOID, *value); err != nil || ok {
			return label, err
		}
	case core.Primitive, core.MultiSelect, core.Reference, core.ChildObject, core.ChildTable:
	default:
		panic(fmt.Sprintf("unhandled column type %T", col.Type))
	}
	return *value, nil
}

func (l *labeler) displayColumn(ctx context.Context, tableOID int64) (*core.Column, error) {
	if col, ok := l.displayCols[tableOID]; ok {
		return col, nil
	}

	t, err := getTable(ctx, l.q, tableOID)
	if err != nil {
		return nil, err
	}
	var col *core.Column
	if t.DisplayColumnOID != nil {
		c, err := getColumn(ctx, l.q, *t.DisplayColumnOID)
		if err != nil && !core.IsNotFound(err) {
			return nil, err
		}
		col = c
	}
	if col == nil {
		cols, err := visibleColumns(ctx, l.q, l.g, tableOID)
		if err != nil {
			return nil, err
		}
		if len(cols) > 0 {
			col = &cols[0]
		}
	}
	l.displayCols[tableOID] = col
	return col, nil
}

func (l *labeler) childCount(ctx context.Context, rowOID, tableOID int64) (int, error) {
	if _, ok := l.g.GetNode(tableOID); !ok {
		return 0, nil
	}
	if hidden, err := ownerTrashed(ctx, l.q, rowOID); err != nil || hidden {
		return 0, err
	}
	in, args := inClause(l.g.DescendantsOrSelf(tableOID))
	args = append([]any{rowOID}, args...)

	var n int
	err := l.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM data_row WHERE parent_row_oid = ? AND trashed = 0 AND subtype_oid IN (`+in+`)`,
		args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count child rows: %w", err)
	}
	return n, nil
}
