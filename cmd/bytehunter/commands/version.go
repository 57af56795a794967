package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
	v "github.com/vulntor/bytehunter/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := format.FromCommand(cmd)
			info := v.Get()
			if f.Mode() != format.ModeText {
				return f.PrintData(info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s version: %s\n", cliExecutable, info.Version)
			if short {
				return nil
			}
			fmt.Fprintf(out, "Commit: %s\n", info.Commit)
			fmt.Fprintf(out, "Build Date: %s\n", info.BuildDate)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}
