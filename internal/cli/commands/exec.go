package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leaptable/internal/engine"
)

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	var (
		payloadFile string
		list        bool
	)
	cmd := &cobra.Command{
		Use:   "exec OPERATION",
		Short: "Run a named action or query with a YAML or JSON payload",
		Long: `Run any action or query by its operation name.

The payload is read from --payload (use - for stdin) and may be YAML or JSON.
Action results and query streams are written as YAML, or as JSON with -o json.

Examples:
  leaptable exec createTable --payload - <<< 'name: Monsters'
  leaptable exec get_table_data --payload page.yaml -o json
  leaptable exec --list`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				return listOperations(cmd.OutOrStdout())
			}
			return withEngine(func(cmd *cobra.Command, cc *CommandContext, args []string) error {
				payload, err := readPayload(cmd.InOrStdin(), payloadFile)
				if err != nil {
					return err
				}
				result, err := execOperation(cmd, cc.Engine, args[0], payload)
				if err != nil {
					return err
				}
				return cc.Renderer.Document(result)
			})(cmd, args)
		},
	}
	cmd.Flags().StringVarP(&payloadFile, "payload", "p", "", "Payload file (YAML or JSON, - for stdin)")
	cmd.Flags().BoolVar(&list, "list", false, "List operation names")
	return cmd
}

func execOperation(cmd *cobra.Command, e *engine.Engine, name string, payload map[string]any) (any, error) {
	if !engine.IsQuery(name) {
		res, err := e.Dispatch(cmd.Context(), name, payload)
		if err != nil {
			return nil, err
		}
		return map[string]any{"operation": name, "result": view(res)}, nil
	}

	seq, err := e.Query(cmd.Context(), name, payload)
	if err != nil {
		return nil, err
	}
	items := []any{}
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		items = append(items, view(item))
	}
	return map[string]any{"operation": name, "items": items}, nil
}

// readPayload decodes a YAML or JSON document into a payload map.
// An empty path yields an empty payload.
func readPayload(stdin io.Reader, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	switch path {
	case "":
		return map[string]any{}, nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path) //nolint:gosec // path is supplied by the user
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	payload := map[string]any{}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return payload, nil
}

func listOperations(w io.Writer) error {
	_, _ = fmt.Fprintln(w, "Actions:")
	for _, name := range engine.Actions() {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}
	_, _ = fmt.Fprintln(w, "Queries:")
	for _, name := range engine.Queries() {
		_, _ = fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}
