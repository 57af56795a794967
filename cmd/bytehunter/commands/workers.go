package commands

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
)

func newWorkersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workers",
		Short:   "List the registered specialist workers",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := log.With().Str("command", "workers").Logger()
			reg := newRegistry(configFrom(cmd), workspaceFrom(cmd), &logger)

			rows := [][]string{}
			for _, w := range reg.Workers() {
				md := w.Metadata()
				rows = append(rows, []string{md.ID, md.Name, string(md.Category), strings.Join(md.Capabilities, ",")})
			}
			return format.FromCommand(cmd).PrintTable([]string{"ID", "Name", "Category", "Capabilities"}, rows)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}
