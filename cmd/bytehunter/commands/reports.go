package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
	"github.com/vulntor/bytehunter/pkg/engine"
)

var errNoWorkspace = errors.New("workspace is disabled; reports are only kept in the workspace")

func newReportsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports [workflow-id]",
		Short:   "List stored reports, or print one",
		GroupID: "core",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws := workspaceFrom(cmd)
			if ws == nil {
				return errNoWorkspace
			}

			if len(args) == 1 {
				data, err := os.ReadFile(ws.ReportPath(args[0]))
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("%w: no report for %s", engine.ErrWorkflowNotFound, args[0])
				}
				if err != nil {
					return fmt.Errorf("read report: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}

			ids, err := ws.Reports()
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []string{id, ws.ReportPath(id)})
			}
			return format.FromCommand(cmd).PrintTable([]string{"Workflow", "Path"}, rows)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}
