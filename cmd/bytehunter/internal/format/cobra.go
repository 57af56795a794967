package format

import (
	"os"

	"github.com/spf13/cobra"
)

// FromCommand builds a Formatter from the command's writers and the output,
// quiet and no-color flags. Color is also off when NO_COLOR is set.
func FromCommand(cmd *cobra.Command) Formatter {
	flags := cmd.Flags()

	mode := ModeText
	if out, err := flags.GetString("output"); err == nil && out != "" {
		mode = ParseMode(out)
	}
	quiet, _ := flags.GetBool("quiet")
	noColor, _ := flags.GetBool("no-color")
	if _, set := os.LookupEnv("NO_COLOR"); set {
		noColor = true
	}

	return New(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode, quiet, !noColor)
}
