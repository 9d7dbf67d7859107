package state

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/leapstack-labs/leaptable/internal/dag"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// --- Table operations ---

// CreateTable creates a table or object type with the given master list.
func (s *SQLiteStore) CreateTable(ctx context.Context, name string, kind core.TableKind, masterOIDs []int64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, &core.NameRequiredError{Field: "name"}
	}

	var oid int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO meta_table (name, kind) VALUES (?, ?)`, name, int(kind))
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
		oid, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}

		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		return setMasters(ctx, tx, g, oid, masterOIDs)
	})
	if err != nil {
		return 0, err
	}
	return oid, nil
}

// EditTable renames a table and replaces its master list.
func (s *SQLiteStore) EditTable(ctx context.Context, tableOID int64, name string, masterOIDs []int64) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.NameRequiredError{Field: "name"}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getTable(ctx, tx, tableOID)
		if err != nil {
			return err
		}

		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_table SET name = ? WHERE oid = ?`, name, tableOID); err != nil {
			return fmt.Errorf("failed to rename table: %w", err)
		}
		if sameOIDs(old.MasterOIDs, masterOIDs) {
			return nil
		}

		before := g.AncestorsOrSelf(tableOID)
		if err := setMasters(ctx, tx, g, tableOID, masterOIDs); err != nil {
			return err
		}

		// The row sets of the old and new ancestors changed, and the
		// subtree gained or lost inherited columns.
		g, err = loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		affected := union(before, g.AncestorsOrSelf(tableOID))
		cols, err := columnsForRowChanges(ctx, tx, affected)
		if err != nil {
			return err
		}
		for _, t := range g.AncestorsOrSelf(tableOID) {
			own, err := tableColumns(ctx, tx, t)
			if err != nil {
				return err
			}
			cols = append(cols, own...)
		}
		return revalidateColumns(ctx, tx, g, cols)
	})
}

// setMasters validates masterOIDs against g and replaces the master list of tableOID.
func setMasters(ctx context.Context, q querier, g *dag.Graph, tableOID int64, masterOIDs []int64) error {
	masters := dedupe(masterOIDs)
	for _, m := range masters {
		if m == tableOID {
			return &core.CyclicInheritanceError{TableOID: tableOID, MasterOID: m}
		}
		if _, ok := g.GetNode(m); !ok {
			return &core.NotFoundError{Kind: "table", OID: m}
		}
	}
	if m, ok := g.CheckMasters(tableOID, masters); !ok {
		return &core.CyclicInheritanceError{TableOID: tableOID, MasterOID: m}
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM meta_table_master WHERE inheritor_oid = ?`, tableOID); err != nil {
		return fmt.Errorf("failed to clear masters: %w", err)
	}
	for i, m := range masters {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO meta_table_master (inheritor_oid, master_oid, ordering) VALUES (?, ?, ?)`,
			tableOID, m, i); err != nil {
			return fmt.Errorf("failed to add master: %w", err)
		}
	}
	return nil
}

// DeleteTable deletes a table, its columns and its rows.
// Tables inheriting from it are detached but keep their own rows and columns.
func (s *SQLiteStore) DeleteTable(ctx context.Context, tableOID int64) (*core.TableDeletion, error) {
	var result *core.TableDeletion
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		plan, err := planTableDeletion(ctx, tx, tableOID)
		if err != nil {
			return err
		}
		if err := plan.apply(ctx, tx); err != nil {
			return err
		}

		g, err := loadGraph(ctx, tx)
		if err != nil {
			return err
		}
		// References into the deleted table lost their targets too.
		tables := []int64{tableOID}
		for _, st := range union(plan.ancestors, plan.subtypes) {
			tables = union(tables, g.AncestorsOrSelf(st))
		}
		cols, err := columnsForRowChanges(ctx, tx, tables)
		if err != nil {
			return err
		}
		if err := revalidateColumns(ctx, tx, g, cols); err != nil {
			return err
		}

		s.logger.Debug("table deleted",
			"table_oid", tableOID,
			"columns", len(plan.columns),
			"rows", len(plan.rows),
			"detached", plan.inheritors)

		result = &core.TableDeletion{
			Table:          *plan.table,
			ColumnCount:    len(plan.columns),
			RowCount:       len(plan.rows),
			DetachedOIDs:   plan.inheritors,
			AffectedTables: plan.affected,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// tableDeletion is the complete set of entities a table deletion removes.
// It is computed before anything is deleted.
type tableDeletion struct {
	table      *core.Table
	columns    []int64
	rows       []int64
	subtypes   []int64
	lists      []int64
	inheritors []int64
	ancestors  []int64
	affected   []int64
}

func planTableDeletion(ctx context.Context, q querier, tableOID int64) (*tableDeletion, error) {
	table, err := getTable(ctx, q, tableOID)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}

	plan := &tableDeletion{table: table}

	cols, err := tableColumns(ctx, q, tableOID)
	if err != nil {
		return nil, err
	}
	for _, c := range cols {
		plan.columns = append(plan.columns, c.OID)
		if list, ok := core.DropdownListOID(c.Type); ok {
			shared, err := listSharedOutside(ctx, q, list, tableOID)
			if err != nil {
				return nil, err
			}
			if !shared {
				plan.lists = append(plan.lists, list)
			}
		}
	}

	roots, err := scanInt64s(ctx, q, `SELECT oid FROM data_row WHERE subtype_oid = ?`, tableOID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	plan.rows, err = collectOwnedRows(ctx, q, roots)
	if err != nil {
		return nil, err
	}
	subtypes, err := rowSubtypes(ctx, q, plan.rows)
	if err != nil {
		return nil, err
	}
	for _, st := range subtypes {
		if st != tableOID {
			plan.subtypes = append(plan.subtypes, st)
		}
	}

	plan.inheritors = append(plan.inheritors, g.Inheritors(tableOID)...)
	for _, a := range g.AncestorsOrSelf(tableOID) {
		if a != tableOID {
			plan.ancestors = append(plan.ancestors, a)
		}
	}
	plan.affected = union(plan.ancestors, plan.inheritors)
	return plan, nil
}

func (p *tableDeletion) apply(ctx context.Context, q querier) error {
	if err := deleteRows(ctx, q, p.rows); err != nil {
		return err
	}

	if len(p.columns) > 0 {
		in, args := inClause(p.columns)
		stmts := []string{
			`DELETE FROM data_cell_failure WHERE column_oid IN (` + in + `)`,
			`DELETE FROM data_cell WHERE column_oid IN (` + in + `)`,
			`UPDATE meta_table SET display_column_oid = NULL WHERE display_column_oid IN (` + in + `)`,
			`DELETE FROM meta_column WHERE oid IN (` + in + `)`,
		}
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("failed to delete columns: %w", err)
			}
		}
	}

	if err := deleteLists(ctx, q, p.lists); err != nil {
		return err
	}

	oid := p.table.OID
	if _, err := q.ExecContext(ctx,
		`DELETE FROM meta_table_master WHERE inheritor_oid = ? OR master_oid = ?`, oid, oid); err != nil {
		return fmt.Errorf("failed to detach table: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM meta_table WHERE oid = ?`, oid); err != nil {
		return fmt.Errorf("failed to delete table: %w", err)
	}
	return nil
}

// GetTable retrieves a table by OID.
func (s *SQLiteStore) GetTable(ctx context.Context, tableOID int64) (*core.Table, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	return getTable(ctx, q, tableOID)
}

func getTable(ctx context.Context, q querier, tableOID int64) (*core.Table, error) {
	t := &core.Table{OID: tableOID}
	var kind, trashed int
	var display sql.NullInt64

	err := q.QueryRowContext(ctx,
		`SELECT name, kind, display_column_oid, trashed FROM meta_table WHERE oid = ?`, tableOID,
	).Scan(&t.Name, &kind, &display, &trashed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "table", OID: tableOID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	t.Kind = core.TableKind(kind)
	t.DisplayColumnOID = int64Ptr(display)
	t.Trashed = trashed != 0

	t.MasterOIDs, err = scanInt64s(ctx, q,
		`SELECT master_oid FROM meta_table_master WHERE inheritor_oid = ? ORDER BY ordering`, tableOID)
	if err != nil {
		return nil, fmt.Errorf("failed to get masters: %w", err)
	}
	return t, nil
}

// ListTables returns the live tables of the given kind ordered by name.
func (s *SQLiteStore) ListTables(ctx context.Context, kind core.TableKind) ([]core.TableSummary, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	return listTables(ctx, q, kind)
}

func listTables(ctx context.Context, q querier, kind core.TableKind) ([]core.TableSummary, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT oid, name FROM meta_table WHERE kind = ? AND trashed = 0
		ORDER BY name COLLATE NOCASE, oid`, int(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []core.TableSummary
	for rows.Next() {
		var t core.TableSummary
		if err := rows.Scan(&t.OID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// TableTree returns the live tables of the given kind in hierarchy order:
// each root followed by its inheritors, depth first, siblings by name.
// A table is a root when none of its masters is listed. A table with
// several listed masters appears under each of them.
func (s *SQLiteStore) TableTree(ctx context.Context, kind core.TableKind) ([]core.TableSummary, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	tables, err := listTables(ctx, q, kind)
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}

	listed := make(map[int64]int, len(tables))
	for i, t := range tables {
		listed[t.OID] = i
	}
	isRoot := func(oid int64) bool {
		for _, m := range g.Masters(oid) {
			if _, ok := listed[m]; ok {
				return false
			}
		}
		return true
	}

	var out []core.TableSummary
	var walk func(oid int64, level int)
	walk = func(oid int64, level int) {
		t := tables[listed[oid]]
		t.HierarchyLevel = level
		out = append(out, t)

		var children []core.TableSummary
		for _, c := range g.Inheritors(oid) {
			if i, ok := listed[c]; ok {
				children = append(children, tables[i])
			}
		}
		sortSummaries(children)
		for _, c := range children {
			walk(c.OID, level+1)
		}
	}
	for _, t := range tables {
		if isRoot(t.OID) {
			walk(t.OID, 0)
		}
	}
	return out, nil
}

// sortSummaries orders tables like the listing query does.
func sortSummaries(tables []core.TableSummary) {
	slices.SortFunc(tables, func(a, b core.TableSummary) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.OID, b.OID)
	})
}

// TrashTable hides a table from table lists and master options. Its
// columns, rows and inheritance links are kept.
func (s *SQLiteStore) TrashTable(ctx context.Context, tableOID int64) error {
	return s.setTableTrashed(ctx, tableOID, true)
}

// RestoreTable brings a trashed table back.
func (s *SQLiteStore) RestoreTable(ctx context.Context, tableOID int64) error {
	return s.setTableTrashed(ctx, tableOID, false)
}

func (s *SQLiteStore) setTableTrashed(ctx context.Context, tableOID int64, trashed bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTable(ctx, tx, tableOID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_table SET trashed = ? WHERE oid = ?`, boolToInt(trashed), tableOID); err != nil {
			return fmt.Errorf("failed to update table: %w", err)
		}
		return nil
	})
}

// SetDisplayColumn designates the column rendered when rows of the table
// are referenced. A nil columnOID restores the default (first column).
func (s *SQLiteStore) SetDisplayColumn(ctx context.Context, tableOID int64, columnOID *int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getTable(ctx, tx, tableOID); err != nil {
			return err
		}
		if columnOID != nil {
			g, err := loadGraph(ctx, tx)
			if err != nil {
				return err
			}
			if _, err := visibleColumn(ctx, tx, g, tableOID, *columnOID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE meta_table SET display_column_oid = ? WHERE oid = ?`,
			nullInt64(columnOID), tableOID); err != nil {
			return fmt.Errorf("failed to set display column: %w", err)
		}
		return nil
	})
}

// --- Inheritance queries ---

// Subtypes lists every table inheriting from tableOID, directly or
// transitively, with its shortest inheritance distance.
func (s *SQLiteStore) Subtypes(ctx context.Context, tableOID int64) ([]core.SubtypeOption, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}
	if _, ok := g.GetNode(tableOID); !ok {
		return nil, &core.NotFoundError{Kind: "table", OID: tableOID}
	}

	var out []core.SubtypeOption
	for _, d := range g.Descendants(tableOID) {
		out = append(out, core.SubtypeOption{OID: d.ID, Name: d.Name, HierarchyLevel: d.Level})
	}
	return out, nil
}

// MasterListOptions lists candidate masters for tableOID. A candidate is
// disabled when choosing it would make the inheritance graph cyclic.
// Plain tables are candidates only when allowTables is set. Trashed
// tables are never candidates.
func (s *SQLiteStore) MasterListOptions(ctx context.Context, tableOID *int64, allowTables bool) ([]core.MasterListOption, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	g, err := loadGraph(ctx, q)
	if err != nil {
		return nil, err
	}
	if tableOID != nil {
		if _, ok := g.GetNode(*tableOID); !ok {
			return nil, &core.NotFoundError{Kind: "table", OID: *tableOID}
		}
	}

	query := `SELECT oid, name FROM meta_table WHERE trashed = 0`
	var args []any
	if !allowTables {
		query += ` AND kind = ?`
		args = append(args, int(core.KindObjectType))
	}
	query += ` ORDER BY name COLLATE NOCASE, oid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list master options: %w", err)
	}
	defer rows.Close()

	var out []core.MasterListOption
	for rows.Next() {
		var opt core.MasterListOption
		if err := rows.Scan(&opt.OID, &opt.Name); err != nil {
			return nil, fmt.Errorf("failed to scan master option: %w", err)
		}
		opt.HierarchyLevel = g.Depth(opt.OID)
		opt.IsDisabled = tableOID != nil && g.Reaches(*tableOID, opt.OID)
		out = append(out, opt)
	}
	return out, rows.Err()
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func union(a, b []int64) []int64 {
	return dedupe(append(append([]int64{}, a...), b...))
}

func sameOIDs(a, b []int64) bool {
	a, b = dedupe(a), dedupe(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
