package bind

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssessCmd(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "assess"}
	cmd.Flags().String("profile", "comprehensive", "")
	cmd.Flags().String("plan", "", "")
	cmd.Flags().StringP("output", "o", "text", "")
	cmd.Flags().Bool("no-report", false, "")
	cmd.Flags().Bool("show-report", false, "")
	cmd.Flags().Bool("progress", false, "")
	require.NoError(t, cmd.Flags().Parse(flags))
	return cmd
}

func TestBindAssessOptions_Defaults(t *testing.T) {
	opts, err := BindAssessOptions(newAssessCmd(t), []string{" example.com "})
	require.NoError(t, err)
	assert.Equal(t, AssessOptions{Target: "example.com", Profile: "comprehensive", Output: "text"}, opts)
}

func TestBindAssessOptions_Flags(t *testing.T) {
	opts, err := BindAssessOptions(newAssessCmd(t, "--profile", "Quick", "-o", "json", "--no-report", "--progress"), []string{"10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "quick", opts.Profile)
	assert.Equal(t, "json", opts.Output)
	assert.True(t, opts.NoReport)
	assert.True(t, opts.Progress)
}

func TestBindAssessOptions_Plan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: p\n"), 0o600))

	opts, err := BindAssessOptions(newAssessCmd(t, "--plan", path), []string{"example.com"})
	require.NoError(t, err)
	assert.Equal(t, path, opts.PlanPath)

	_, err = BindAssessOptions(newAssessCmd(t, "--plan", path, "--profile", "quick"), []string{"example.com"})
	assert.ErrorContains(t, err, "cannot be combined")

	_, err = BindAssessOptions(newAssessCmd(t, "--plan", filepath.Join(t.TempDir(), "missing.yaml")), []string{"example.com"})
	assert.Error(t, err)
}

func TestBindAssessOptions_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
		args  []string
	}{
		{name: "no target", args: nil},
		{name: "two targets", args: []string{"a.com", "b.com"}},
		{name: "blank target", args: []string{"  "}},
		{name: "target with space", args: []string{"a b.com"}},
		{name: "unknown profile", flags: []string{"--profile", "stealth"}, args: []string{"a.com"}},
		{name: "unknown output", flags: []string{"-o", "xml"}, args: []string{"a.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BindAssessOptions(newAssessCmd(t, tt.flags...), tt.args)
			assert.Error(t, err)
		})
	}
}
