package bind

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
)

// AssessOptions holds the validated options of the assess command.
type AssessOptions struct {
	Target     string `validate:"required,max=253"`
	Profile    string `validate:"omitempty,oneof=comprehensive quick"`
	PlanPath   string `validate:"omitempty,file"`
	Output     string `validate:"oneof=text json yaml"`
	NoReport   bool
	ShowReport bool
	Progress   bool
}

var validate = validator.New()

// BindAssessOptions extracts and validates assess command flags.
//
// Flags read:
//   - --profile: built-in profile (comprehensive|quick)
//   - --plan: YAML/JSON plan file, mutually exclusive with an explicit --profile
//   - --output: text|json|yaml
//   - --no-report, --show-report, --progress
func BindAssessOptions(cmd *cobra.Command, args []string) (AssessOptions, error) {
	if len(args) != 1 {
		return AssessOptions{}, fmt.Errorf("expected exactly one target, got %d", len(args))
	}

	profile, _ := cmd.Flags().GetString("profile")
	planPath, _ := cmd.Flags().GetString("plan")
	output, _ := cmd.Flags().GetString("output")
	noReport, _ := cmd.Flags().GetBool("no-report")
	showReport, _ := cmd.Flags().GetBool("show-report")
	progress, _ := cmd.Flags().GetBool("progress")

	if planPath != "" && cmd.Flags().Changed("profile") {
		return AssessOptions{}, fmt.Errorf("--plan and --profile cannot be combined")
	}

	opts := AssessOptions{
		Target:     strings.TrimSpace(args[0]),
		Profile:    strings.ToLower(strings.TrimSpace(profile)),
		PlanPath:   planPath,
		Output:     strings.ToLower(output),
		NoReport:   noReport,
		ShowReport: showReport,
		Progress:   progress,
	}
	if opts.Output == "" {
		opts.Output = "text"
	}

	if strings.ContainsAny(opts.Target, " \t\n") {
		return AssessOptions{}, fmt.Errorf("invalid target %q: contains whitespace", opts.Target)
	}
	if err := validate.Struct(opts); err != nil {
		return AssessOptions{}, fmt.Errorf("invalid assess options: %w", err)
	}
	return opts, nil
}
