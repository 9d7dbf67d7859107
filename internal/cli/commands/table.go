package commands

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leaptable/internal/engine"
	"github.com/leapstack-labs/leaptable/pkg/core"
)

// tableCommands binds the generic table subcommands to one table kind.
type tableCommands struct {
	kind    core.TableKind
	list    func(e *engine.Engine, ctx context.Context) iter.Seq2[core.TableSummary, error]
	create  func(e *engine.Engine, ctx context.Context, name string, masters []int64) (int64, error)
	edit    func(e *engine.Engine, ctx context.Context, oid int64, name string, masters []int64) error
	remove  func(e *engine.Engine, ctx context.Context, oid int64) (*core.TableDeletion, error)
	trash   func(e *engine.Engine, ctx context.Context, oid int64) error
	restore func(e *engine.Engine, ctx context.Context, oid int64) error
}

// NewTableCommand creates the table command group.
func NewTableCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Manage tables",
		Long: `Create, inspect, edit and delete tables.

Tables may inherit columns from one or more master tables. Rows pushed into a
table are visible in every master above it.`,
	}
	tc := tableCommands{
		kind:    core.KindTable,
		list:    (*engine.Engine).TableList,
		create:  (*engine.Engine).CreateTable,
		edit:    (*engine.Engine).EditTable,
		remove:  (*engine.Engine).DeleteTable,
		trash:   (*engine.Engine).TrashTable,
		restore: (*engine.Engine).RestoreTable,
	}
	tc.addTo(cmd)
	cmd.AddCommand(newTableDisplayCommand())
	return cmd
}

// NewObjectTypeCommand creates the objtype command group.
func NewObjectTypeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "objtype",
		Aliases: []string{"object-type"},
		Short:   "Manage object types",
		Long: `Create, inspect, edit and delete object types.

Object types are tables whose rows are owned by an object column of another row.`,
	}
	tc := tableCommands{
		kind:    core.KindObjectType,
		list:    (*engine.Engine).ObjectTypeList,
		create:  (*engine.Engine).CreateObjectType,
		edit:    (*engine.Engine).EditObjectType,
		remove:  (*engine.Engine).DeleteObjectType,
		trash:   (*engine.Engine).TrashObjectType,
		restore: (*engine.Engine).RestoreObjectType,
	}
	tc.addTo(cmd)
	return cmd
}

func (tc tableCommands) addTo(cmd *cobra.Command) {
	cmd.AddCommand(tc.listCommand(), tc.showCommand(), tc.createCommand(), tc.editCommand(), tc.deleteCommand(),
		tc.trashCommand("trash", "Move a %s to the trash", "Trashed", tc.trash),
		tc.trashCommand("restore", "Restore a trashed %s", "Restored", tc.restore))
}

func (tc tableCommands) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   fmt.Sprintf("List %ss", tc.kind),
		Args:    cobra.NoArgs,
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, _ []string) error {
			var rows [][]any
			records := []tableView{}
			for t, err := range tc.list(cc.Engine, cmd.Context()) {
				if err != nil {
					return err
				}
				rows = append(rows, []any{t.OID, indent(t.HierarchyLevel+1, t.Name)})
				records = append(records, tableView{OID: t.OID, Name: t.Name, HierarchyLevel: t.HierarchyLevel})
			}
			return cc.Renderer.Table([]string{"OID", "NAME"}, rows, records)
		}),
	}
}

func (tc tableCommands) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show OID",
		Short: fmt.Sprintf("Show %s metadata", tc.kind),
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			t, err := cc.Engine.TableMetadata(cmd.Context(), oid)
			if err != nil {
				return err
			}
			if t.Kind != tc.kind {
				return &core.NotFoundError{Kind: tc.kind.String(), OID: oid}
			}

			display := "(first column)"
			if t.DisplayColumnOID != nil {
				display = fmt.Sprint(*t.DisplayColumnOID)
			}
			text := fmt.Sprintf("%s %d %q\nmasters: %s\ndisplay column: %s",
				t.Kind, t.OID, t.Name, joinOIDs(t.MasterOIDs), display)
			if t.Trashed {
				text += "\ntrashed: yes"
			}
			return cc.Renderer.Result(view(t), text)
		}),
	}
}

func (tc tableCommands) createCommand() *cobra.Command {
	var masters []int64
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: fmt.Sprintf("Create a %s", tc.kind),
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := tc.create(cc.Engine, cmd.Context(), args[0], masters)
			if err != nil {
				return err
			}
			return cc.Renderer.Result(tableView{OID: oid, Name: strings.TrimSpace(args[0])},
				fmt.Sprintf("Created %s %d", tc.kind, oid))
		}),
	}
	cmd.Flags().Int64SliceVar(&masters, "master", nil, "Master table oid (repeatable)")
	return cmd
}

func (tc tableCommands) editCommand() *cobra.Command {
	var (
		name    string
		masters []int64
	)
	cmd := &cobra.Command{
		Use:   "edit OID",
		Short: fmt.Sprintf("Rename a %s or replace its masters", tc.kind),
		Long: `Rename a table or replace its master list.

Omitted flags keep their current values. Pass --master=0 alone to clear the masters.`,
		Args: cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			current, err := cc.Engine.TableMetadata(cmd.Context(), oid)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("name") {
				name = current.Name
			}
			newMasters := current.MasterOIDs
			if cmd.Flags().Changed("master") {
				newMasters = nil
				for _, m := range masters {
					if m != 0 {
						newMasters = append(newMasters, m)
					}
				}
			}
			if err := tc.edit(cc.Engine, cmd.Context(), oid, name, newMasters); err != nil {
				return err
			}
			return cc.Renderer.Result(tableView{OID: oid, Name: strings.TrimSpace(name)},
				fmt.Sprintf("Updated %s %d", tc.kind, oid))
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().Int64SliceVar(&masters, "master", nil, "Master table oid (repeatable)")
	return cmd
}

func (tc tableCommands) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete OID",
		Aliases: []string{"rm"},
		Short:   fmt.Sprintf("Delete a %s with its columns and rows", tc.kind),
		Args:    cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			d, err := tc.remove(cc.Engine, cmd.Context(), oid)
			if err != nil {
				return err
			}
			text := fmt.Sprintf("Deleted %s %q (%d columns, %d rows)", tc.kind, d.Table.Name, d.ColumnCount, d.RowCount)
			if len(d.DetachedOIDs) > 0 {
				text += "\ndetached inheritors: " + joinOIDs(d.DetachedOIDs)
			}
			return cc.Renderer.Result(newDeletionView(d), text)
		}),
	}
}

func (tc tableCommands) trashCommand(use, short, verb string, fn func(e *engine.Engine, ctx context.Context, oid int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " OID",
		Short: fmt.Sprintf(short, tc.kind),
		Args:  cobra.ExactArgs(1),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			if err := fn(cc.Engine, cmd.Context(), oid); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"oid": oid}, fmt.Sprintf("%s %s %d", verb, tc.kind, oid))
		}),
	}
}

func newTableDisplayCommand() *cobra.Command {
	var clearDisplay bool
	cmd := &cobra.Command{
		Use:   "display TABLE_OID [COLUMN_OID]",
		Short: "Set the column used to display references to a table",
		Args:  cobra.RangeArgs(1, 2),
		RunE: withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
			oid, err := parseOID("table oid", args[0])
			if err != nil {
				return err
			}
			var column *int64
			switch {
			case len(args) == 2:
				c, err := parseOID("column oid", args[1])
				if err != nil {
					return err
				}
				column = &c
			case !clearDisplay:
				return fmt.Errorf("either COLUMN_OID or --clear is required")
			}
			if err := cc.Engine.SetDisplayColumn(cmd.Context(), oid, column); err != nil {
				return err
			}
			return cc.Renderer.Result(map[string]any{"tableOid": oid, "displayColumnOid": column},
				fmt.Sprintf("Updated display column of table %d", oid))
		}),
	}
	cmd.Flags().BoolVar(&clearDisplay, "clear", false, "Fall back to the first visible column")
	return cmd
}

func joinOIDs(oids []int64) string {
	if len(oids) == 0 {
		return "(none)"
	}
	parts := make([]string, len(oids))
	for i, oid := range oids {
		parts[i] = fmt.Sprint(oid)
	}
	return strings.Join(parts, ", ")
}
