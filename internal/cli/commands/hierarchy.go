package commands

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewSubtypesCommand creates the subtypes command.
func NewSubtypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "subtypes TABLE_OID",
		Short: "List the tables that inherit from a table, at any depth",
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			table, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			var rows [][]any
			records := []optionView{}
			for opt, err := range cc.Engine.Subtypes(cmd.Context(), table) {
				if err != nil {
					return err
				}
				rows = append(rows, []any{opt.OID, indent(opt.HierarchyLevel, opt.Name), opt.HierarchyLevel})
				records = append(records, optionView{OID: opt.OID, Name: opt.Name, HierarchyLevel: opt.HierarchyLevel})
			}
			return cc.Renderer.Table([]string{"OID", "NAME", "LEVEL"}, rows, records)
		}),
	}
}

// NewMastersCommand creates the masters command.
func NewMastersCommand() *cobra.Command {
	var allowTables bool
	cmd := &cobra.Command{
		Use:   "masters [TABLE_OID]",
		Short: "List candidate master tables",
		Long: `List the tables that could be chosen as masters of TABLE_OID.

Candidates that would create an inheritance cycle are marked disabled. Without
TABLE_OID, candidates for a new table are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			var table *int64
			if len(args) == 1 {
				oid, err := parseOID("table oid", args[0])
				if err != nil {
					return err
				}
				table = &oid
			}
			var rows [][]any
			records := []optionView{}
			for opt, err := range cc.Engine.MasterListOptions(cmd.Context(), table, allowTables) {
				if err != nil {
					return err
				}
				state := ""
				if opt.IsDisabled {
					state = "disabled"
				}
				rows = append(rows, []any{opt.OID, indent(opt.HierarchyLevel, opt.Name), opt.HierarchyLevel, state})
				records = append(records, view(opt).(optionView))
			}
			return cc.Renderer.Table([]string{"OID", "NAME", "LEVEL", "STATE"}, rows, records)
		}),
	}
	cmd.Flags().BoolVar(&allowTables, "allow-tables", false, "Include plain tables as candidates for object types")
	return cmd
}

func indent(level int, name string) string {
	if level <= 0 {
		return name
	}
	return strings.Repeat("  ", level-1) + name
}
