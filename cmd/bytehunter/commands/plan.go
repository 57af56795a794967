package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
	"github.com/vulntor/bytehunter/pkg/engine"
	"github.com/vulntor/bytehunter/pkg/task"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "plan",
		Short:   "Inspect and validate assessment plans",
		GroupID: "assess",
	}
	cmd.AddCommand(newPlanValidateCommand())
	cmd.AddCommand(newPlanShowCommand())
	return cmd
}

func newPlanValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that a plan file forms a valid task graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := engine.LoadPlanFromFile(args[0])
			if err != nil {
				return err
			}
			return format.FromCommand(cmd).PrintSummary(fmt.Sprintf("✓ Plan %q is valid (%d tasks)", plan.Name, len(plan.Tasks)))
		},
	}
}

func newPlanShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <target>",
		Short: "Print the tasks a profile or plan file expands to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _ := cmd.Flags().GetString("profile")
			planPath, _ := cmd.Flags().GetString("plan")

			var tasks []task.Task
			if planPath != "" {
				plan, err := engine.LoadPlanFromFile(planPath)
				if err != nil {
					return err
				}
				tasks = plan.TasksFor(args[0])
			} else {
				var err error
				tasks, err = engine.PlanProfile("workflow", args[0], profile)
				if err != nil {
					return err
				}
			}

			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{t.ID, string(t.Category), strconv.Itoa(t.Priority), strings.Join(t.DependsOn, ",")})
			}
			return format.FromCommand(cmd).PrintTable([]string{"ID", "Category", "Priority", "Depends_On"}, rows)
		},
	}
	cmd.Flags().String("profile", engine.ProfileComprehensive, "Assessment profile (comprehensive, quick)")
	cmd.Flags().String("plan", "", "Plan file (YAML or JSON)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}
