package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// NewCellCommand creates the cell command group.
func NewCellCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Update row cells",
		Long: `Update the value stored in one cell.

Every cell is addressed as TABLE_OID ROW_OID COLUMN_OID, where TABLE_OID is any
table the row is visible in and COLUMN_OID is visible in that table.`,
	}
	cmd.AddCommand(newCellSetCommand(), newCellBlobCommand(), newCellObjectCommand())
	return cmd
}

func cellArgs(args []string) ([]int64, error) {
	return parseOIDs(args, "table oid", "row oid", "column oid")
}

func newCellSetCommand() *cobra.Command {
	var null bool
	cmd := &cobra.Command{
		Use:   "set TABLE_OID ROW_OID COLUMN_OID [VALUE]",
		Short: "Store a primitive, select or reference value",
		Long: `Store VALUE in a cell.

Values that fail the column's constraints are stored anyway and reported as
validation issues. Pass --null (or omit VALUE) to clear the cell.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := cellArgs(args)
			if err != nil {
				return err
			}
			var value *string
			if len(args) == 4 && !null {
				value = &args[3]
			}
			if err := cc.Engine.UpdateCellPrimitive(cmd.Context(), oids[0], oids[1], oids[2], value); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"rowOid": oids[1], "columnOid": oids[2], "value": value},
				fmt.Sprintf("Updated cell %d/%d", oids[1], oids[2]))
		}),
	}
	cmd.Flags().BoolVar(&null, "null", false, "Clear the cell")
	return cmd
}

func newCellBlobCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "blob TABLE_OID ROW_OID COLUMN_OID FILE",
		Short: "Store a file in a file or image cell, or show the stored file",
		Long: `Store FILE in a file or image cell.

Without FILE, show the name and size of the stored file.`,
		Args: cobra.RangeArgs(3, 4),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := cellArgs(args)
			if err != nil {
				return err
			}
			if len(args) == 4 {
				if err := cc.Engine.UpdateCellBlob(cmd.Context(), oids[0], oids[1], oids[2], args[3]); err != nil {
					return err
				}
			}
			info, err := cc.Engine.BlobValue(cmd.Context(), oids[0], oids[1], oids[2])
			if err != nil {
				return err
			}
			return cc.Renderer.Result(view(info),
				fmt.Sprintf("%s (%s)", info.FileName, humanize.Bytes(uint64(info.Size)))) //nolint:gosec // sizes are never negative
		}),
	}
}

func newCellObjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "object TABLE_OID ROW_OID COLUMN_OID",
		Short: "Create, link or unlink the child object of a cell",
		Long: `Set the child object owned by a cell.

  --type OID            create a new object of that type
  --row OID --type OID  link an existing object row
  (no flags)            unlink and delete the current object`,
		Args: cobra.ExactArgs(3),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oids, err := cellArgs(args)
			if err != nil {
				return err
			}
			childType, err := optionalOID(cmd, "type")
			if err != nil {
				return err
			}
			childRow, err := optionalOID(cmd, "row")
			if err != nil {
				return err
			}
			link, err := cc.Engine.SetObjectCell(cmd.Context(), oids[0], oids[1], oids[2], childType, childRow)
			if err != nil {
				return err
			}
			text := fmt.Sprintf("Cleared object cell %d/%d", oids[1], oids[2])
			if link.RowOID != 0 {
				text = fmt.Sprintf("Linked object row %d of type %d", link.RowOID, link.TableOID)
			}
			return cc.Renderer.Result(link, text)
		}),
	}
	cmd.Flags().Int64("type", 0, "Object type oid")
	cmd.Flags().Int64("row", 0, "Existing object row oid")
	return cmd
}
