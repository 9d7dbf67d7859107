package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leaptable/internal/engine"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// NewColumnCommand creates the column command group.
func NewColumnCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "column",
		Short: "Manage table columns",
		Long: `Create, edit, reorder and delete the columns of a table.

Column types are given with --mode and, depending on the mode, --kind,
--list or --target:

  primitive             --kind any|boolean|integer|number|date|timestamp|text|json|file|image
  singleSelectDropdown  --list LIST_OID (omit to create a new list)
  multiSelectDropdown   --list LIST_OID (omit to create a new list)
  reference             --target TABLE_OID
  childObject           --target OBJECT_TYPE_OID
  childTable            --target TABLE_OID`,
	}
	cmd.AddCommand(
		newColumnListCommand(),
		newColumnCreateCommand(),
		newColumnEditCommand(),
		newColumnWidthCommand(),
		newColumnReorderCommand(),
		newColumnDeleteCommand(),
		newColumnDropdownCommand(),
	)
	return cmd
}

// columnFlags are the type and constraint flags shared by create and edit.
type columnFlags struct {
	mode       string
	kind       string
	list       int64
	target     int64
	style      string
	nullable   bool
	unique     bool
	primaryKey bool
}

func (f *columnFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.mode, "mode", "primitive", "Column type mode")
	fs.StringVar(&f.kind, "kind", "text", "Primitive kind")
	fs.Int64Var(&f.list, "list", 0, "Dropdown list oid for select modes")
	fs.Int64Var(&f.target, "target", 0, "Target table oid for reference, childObject and childTable modes")
	fs.StringVar(&f.style, "style", "", "Display style")
	fs.BoolVar(&f.nullable, "nullable", true, "Allow empty values")
	fs.BoolVar(&f.unique, "unique", false, "Require distinct values")
	fs.BoolVar(&f.primaryKey, "primary-key", false, "Mark as primary key (implies unique and not nullable)")
}

func (f *columnFlags) columnType() (core.ColumnType, error) {
	spec := core.TypeSpec{Mode: f.mode, ListOID: f.list, TableOID: f.target}
	if strings.EqualFold(f.mode, core.ModePrimitive.String()) || f.mode == "" {
		spec.Kind = f.kind
	}
	return spec.ColumnType()
}

// typeChanged reports whether any of the type flags were given.
func typeChanged(fs *pflag.FlagSet) bool {
	for _, name := range []string{"mode", "kind", "list", "target"} {
		if fs.Changed(name) {
			return true
		}
	}
	return false
}

func newColumnListCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list TABLE_OID",
		Aliases: []string{"ls"},
		Short:   "List the columns visible in a table, inherited ones first",
		Args:    cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			var rows [][]any
			records := []columnView{}
			for c, err := range cc.Engine.TableColumns(cmd.Context(), oid) {
				if err != nil {
					return err
				}
				rows = append(rows, []any{c.OID, c.TableOID, c.Ordering, c.Name, c.Type, c.Width, constraints(c)})
				records = append(records, newColumnView(c))
			}
			return cc.Renderer.Table(
				[]string{"OID", "TABLE", "ORDER", "NAME", "TYPE", "WIDTH", "CONSTRAINTS"}, rows, records)
		}),
	}
}

func constraints(c core.Column) string {
	var parts []string
	if c.IsPrimaryKey {
		parts = append(parts, "primary key")
	}
	if c.IsUnique {
		parts = append(parts, "unique")
	}
	if !c.IsNullable {
		parts = append(parts, "not null")
	}
	return strings.Join(parts, ", ")
}

func newColumnCreateCommand() *cobra.Command {
	var (
		f  columnFlags
		at int64
	)
	cmd := &cobra.Command{
		Use:   "create TABLE_OID NAME",
		Short: "Add a column to a table",
		Args:  cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			table, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			colType, err := f.columnType()
			if err != nil {
				return err
			}
			spec := core.ColumnSpec{
				TableOID:     table,
				Name:         args[1],
				Type:         colType,
				Style:        f.style,
				IsNullable:   f.nullable,
				IsUnique:     f.unique,
				IsPrimaryKey: f.primaryKey,
			}
			if cmd.Flags().Changed("at") {
				spec.Ordering = &at
			}
			oid, err := cc.Engine.CreateColumn(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"oid": oid}, fmt.Sprintf("Created column %d", oid))
		}),
	}
	f.register(cmd.Flags())
	cmd.Flags().Int64Var(&at, "at", 0, "Insert position (default: append)")
	return cmd
}

func newColumnEditCommand() *cobra.Command {
	var (
		f    columnFlags
		name string
	)
	cmd := &cobra.Command{
		Use:   "edit TABLE_OID COLUMN_OID",
		Short: "Edit a column's name, type or constraints",
		Long: `Edit a column defined on TABLE_OID.

Omitted flags keep their current values. Changing the type converts stored
cells where possible and clears the rest.`,
		Args: cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "column oid")
			if err != nil {
				return err
			}
			current, err := ownColumn(cmd, cc.Engine, oids[0], oids[1])
			if err != nil {
				return err
			}

			edit := core.ColumnEdit{
				TableOID:     oids[0],
				ColumnOID:    oids[1],
				Name:         current.Name,
				Type:         current.Type,
				Style:        current.Style,
				IsNullable:   current.IsNullable,
				IsUnique:     current.IsUnique,
				IsPrimaryKey: current.IsPrimaryKey,
			}
			fs := cmd.Flags()
			if fs.Changed("name") {
				edit.Name = name
			}
			if typeChanged(fs) {
				if !fs.Changed("mode") {
					f.mode = current.Type.Mode().String()
				}
				if edit.Type, err = f.columnType(); err != nil {
					return err
				}
			}
			if fs.Changed("style") {
				edit.Style = f.style
			}
			if fs.Changed("nullable") {
				edit.IsNullable = f.nullable
			}
			if fs.Changed("unique") {
				edit.IsUnique = f.unique
			}
			if fs.Changed("primary-key") {
				edit.IsPrimaryKey = f.primaryKey
			}

			if err := cc.Engine.EditColumn(cmd.Context(), edit); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"oid": edit.ColumnOID}, fmt.Sprintf("Updated column %d", edit.ColumnOID))
		}),
	}
	f.register(cmd.Flags())
	cmd.Flags().StringVar(&name, "name", "", "New name")
	return cmd
}

// ownColumn finds a column defined directly on table.
func ownColumn(cmd *cobra.Command, e *engine.Engine, table, column int64) (core.Column, error) {
	for c, err := range e.TableColumns(cmd.Context(), table) {
		if err != nil {
			return core.Column{}, err
		}
		if c.OID == column && c.TableOID == table {
			return c, nil
		}
	}
	return core.Column{}, &core.NotFoundError{Kind: "column", OID: column}
}

func newColumnWidthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "width TABLE_OID COLUMN_OID WIDTH",
		Short: "Set a column's display width",
		Args:  cobra.ExactArgs(3),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "column oid", "width")
			if err != nil {
				return err
			}
			if err := cc.Engine.SetColumnWidth(cmd.Context(), oids[0], oids[1], oids[2]); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"oid": oids[1], "width": oids[2]},
				fmt.Sprintf("Column %d is now %d wide", oids[1], oids[2]))
		}),
	}
}

func newColumnReorderCommand() *cobra.Command {
	var to int64
	cmd := &cobra.Command{
		Use:   "reorder TABLE_OID COLUMN_OID",
		Short: "Move a column to a new position among its table's own columns",
		Args:  cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "column oid")
			if err != nil {
				return err
			}
			current, err := ownColumn(cmd, cc.Engine, oids[0], oids[1])
			if err != nil {
				return err
			}
			var target *int64
			if cmd.Flags().Changed("to") {
				target = &to
			}
			if err := cc.Engine.ReorderColumn(cmd.Context(), oids[0], oids[1], current.Ordering, target); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"oid": oids[1]}, fmt.Sprintf("Moved column %d", oids[1]))
		}),
	}
	cmd.Flags().Int64Var(&to, "to", 0, "New zero-based position (default: last)")
	return cmd
}

func newColumnDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete TABLE_OID COLUMN_OID",
		Aliases: []string{"rm"},
		Short:   "Delete a column and its cells",
		Args:    cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "column oid")
			if err != nil {
				return err
			}
			if err := cc.Engine.DeleteColumn(cmd.Context(), oids[0], oids[1]); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"oid": oids[1]}, fmt.Sprintf("Deleted column %d", oids[1]))
		}),
	}
}

func newColumnDropdownCommand() *cobra.Command {
	var values []string
	cmd := &cobra.Command{
		Use:   "dropdown COLUMN_OID",
		Short: "List or replace the dropdown values of a column",
		Long: `Without --set, list the legal values of a select or reference column.

With --set, replace the option list of a select column. Each value is
TRUE or TRUE=DISPLAY.`,
		Args: cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			column, err := parseOID("column oid", args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("set") {
				options := parseDropdownValues(values)
				if err := cc.Engine.SetDropdownValues(cmd.Context(), column, options); err != nil {
					return err
				}
				return cc.Renderer.Result(options, fmt.Sprintf("Set %d dropdown values on column %d", len(options), column))
			}

			var rows [][]any
			records := []core.DropdownValue{}
			for v, err := range cc.Engine.DropdownValues(cmd.Context(), column) {
				if err != nil {
					return err
				}
				rows = append(rows, []any{v.TrueValue, v.DisplayValue})
				records = append(records, v)
			}
			return cc.Renderer.Table([]string{"VALUE", "DISPLAY"}, rows, records)
		}),
	}
	cmd.Flags().StringArrayVar(&values, "set", nil, "Option as TRUE or TRUE=DISPLAY (repeatable)")
	return cmd
}

func parseDropdownValues(values []string) []core.DropdownValue {
	options := make([]core.DropdownValue, 0, len(values))
	for _, v := range values {
		trueValue, displayValue, ok := strings.Cut(v, "=")
		if !ok {
			displayValue = trueValue
		}
		options = append(options, core.DropdownValue{TrueValue: trueValue, DisplayValue: displayValue})
	}
	return options
}
