package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// NewDataCommand creates the data command.
func NewDataCommand() *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "data TABLE_OID",
		Short: "Show one page of table rows",
		Long: `Show one page of the rows visible in a table, including rows of its
subtypes. Rows appear in insertion order with their 1-based index.

With --parent, only the rows owned by that parent row are shown.`,
		Args: cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			table, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			parent, err := optionalOID(cmd, "parent")
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("page-size") {
				pageSize = cc.Cfg.PageSize
			}

			header := []string{"#", "ROW"}
			for c, err := range cc.Engine.TableColumns(cmd.Context(), table) {
				if err != nil {
					return err
				}
				header = append(header, c.Name)
			}
			header = append(header, "ISSUES")

			var (
				rows     [][]any
				records  = []rowView{}
				current  []any
				problems []string
			)
			flush := func() {
				if current != nil {
					rows = append(rows, append(current, strings.Join(problems, "; ")))
				}
			}
			for item, err := range cc.Engine.TableData(cmd.Context(), table, parent, page, pageSize) {
				if err != nil {
					return err
				}
				switch it := item.(type) {
				case core.RowStart:
					flush()
					current = []any{it.RowIndex, it.RowOID}
					problems = nil
					records = append(records, rowView{RowOID: it.RowOID, RowIndex: it.RowIndex, Cells: []cellView{}})
				case core.CellValue:
					current = append(current, display(it.DisplayValue))
					for _, f := range it.FailedValidations {
						problems = append(problems, fmt.Sprintf("%s: %s", it.ColumnName, f.Description))
					}
					last := &records[len(records)-1]
					last.Cells = append(last.Cells, newCellView(it))
				}
			}
			flush()
			return cc.Renderer.Table(header, rows, records)
		}),
	}
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Rows per page (default: page_size from config)")
	cmd.Flags().Int64("parent", 0, "Only show rows owned by this parent row")
	return cmd
}
