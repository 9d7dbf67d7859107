package commands

import (
	"fmt"
	"iter"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// NewRowCommand creates the row command group.
func NewRowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "row",
		Short: "Manage table rows",
	}
	cmd.AddCommand(
		newRowPushCommand(),
		newRowInsertCommand(),
		newRowRetypeCommand(),
		newRowGetCommand(),
		newRowRemoveCommand("delete", "Delete a row and everything it owns", deleteRow),
		newRowRemoveCommand("trash", "Move a row to the trash", trashRow),
		newRowRemoveCommand("restore", "Restore a trashed row", restoreRow),
	)
	return cmd
}

func newRowPushCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push TABLE_OID",
		Short: "Append an empty row to a table",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			table, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			parent, err := optionalOID(cmd, "parent")
			if err != nil {
				return err
			}
			row, err := cc.Engine.PushRow(cmd.Context(), table, parent)
			if err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"rowOid": row}, fmt.Sprintf("Created row %d", row))
		}),
	}
	cmd.Flags().Int64("parent", 0, "Owning row oid for child tables")
	return cmd
}

func newRowInsertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert TABLE_OID BEFORE_ROW_OID",
		Short: "Insert an empty row before another row",
		Args:  cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "row oid")
			if err != nil {
				return err
			}
			parent, err := optionalOID(cmd, "parent")
			if err != nil {
				return err
			}
			row, err := cc.Engine.InsertRow(cmd.Context(), oids[0], parent, oids[1])
			if err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"rowOid": row}, fmt.Sprintf("Created row %d", row))
		}),
	}
	cmd.Flags().Int64("parent", 0, "Owning row oid for child tables")
	return cmd
}

func newRowRetypeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retype BASE_TABLE_OID ROW_OID SUBTYPE_OID",
		Short: "Change the subtype of a row",
		Long: `Change the most specific table a row is typed as.

Cells of columns the new subtype does not have are kept hidden and reappear
when the row is retyped back.`,
		Args: cobra.ExactArgs(3),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "row oid", "subtype oid")
			if err != nil {
				return err
			}
			previous, err := cc.Engine.RetypeRow(cmd.Context(), oids[0], oids[1], oids[2])
			if err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"rowOid": oids[1], "previousSubtypeOid": previous, "subtypeOid": oids[2]},
				fmt.Sprintf("Retyped row %d from table %d to table %d", oids[1], previous, oids[2]))
		}),
	}
}

type rowRemover struct {
	verb string
	run  func(cc *CommandContext, cmd *cobra.Command, table, row int64) error
}

var (
	deleteRow = rowRemover{verb: "Deleted", run: func(cc *CommandContext, cmd *cobra.Command, table, row int64) error {
		return cc.Engine.DeleteRow(cmd.Context(), table, row)
	}}
	trashRow = rowRemover{verb: "Trashed", run: func(cc *CommandContext, cmd *cobra.Command, table, row int64) error {
		return cc.Engine.TrashRow(cmd.Context(), table, row)
	}}
	restoreRow = rowRemover{verb: "Restored", run: func(cc *CommandContext, cmd *cobra.Command, table, row int64) error {
		return cc.Engine.RestoreRow(cmd.Context(), table, row)
	}}
)

func newRowRemoveCommand(use, short string, r rowRemover) *cobra.Command {
	return &cobra.Command{
		Use:   use + " TABLE_OID ROW_OID",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "row oid")
			if err != nil {
				return err
			}
			if err := r.run(cc, cmd, oids[0], oids[1]); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"rowOid": oids[1]}, fmt.Sprintf("%s row %d", r.verb, oids[1]))
		}),
	}
}

func newRowGetCommand() *cobra.Command {
	var object bool
	cmd := &cobra.Command{
		Use:   "get TABLE_OID ROW_OID",
		Short: "Show the cells of one row",
		Long: `Show the cells of one row as seen from TABLE_OID.

With --object, TABLE_OID is an object type and the row is shown with the
columns of its concrete subtype.`,
		Args: cobra.ExactArgs(2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := parseOIDs(args, "table oid", "row oid")
			if err != nil {
				return err
			}
			seq := cc.Engine.TableRow(cmd.Context(), oids[0], oids[1])
			if object {
				seq = cc.Engine.ObjectData(cmd.Context(), oids[0], oids[1])
			}
			return renderRow(cc, oids[1], seq)
		}),
	}
	cmd.Flags().BoolVar(&object, "object", false, "Resolve the row through its object type")
	return cmd
}

func renderRow(cc *CommandContext, rowOID int64, seq iter.Seq2[core.RowItem, error]) error {
	record := rowView{RowOID: rowOID, Cells: []cellView{}}
	var rows [][]any
	for item, err := range seq {
		if err != nil {
			return err
		}
		switch it := item.(type) {
		case core.RowExists:
			if !it.Exists {
				return &core.NotFoundError{Kind: "row", OID: rowOID}
			}
			record.TableOID = it.TableOID
		case core.CellValue:
			rows = append(rows, []any{it.ColumnName, display(it.TrueValue), display(it.DisplayValue), issues(it.FailedValidations)})
			record.Cells = append(record.Cells, newCellView(it))
		}
	}
	return cc.Renderer.Table([]string{"COLUMN", "VALUE", "DISPLAY", "ISSUES"}, rows, record)
}

func issues(failed []core.FailedValidation) string {
	parts := make([]string, len(failed))
	for i, f := range failed {
		parts[i] = f.Description
	}
	return strings.Join(parts, "; ")
}
