package format

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/vulntor/bytehunter/pkg/finding"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("57")).Padding(0, 1)
)

func styleForStatus(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "completed":
		return successStyle
	case "failed":
		return errorStyle
	case "blocked":
		return warnStyle
	case "running":
		return infoStyle
	default:
		return subtleStyle
	}
}

func severityColor(s finding.Severity) *color.Color {
	switch s {
	case finding.SeverityCritical:
		return color.New(color.FgHiRed, color.Bold)
	case finding.SeverityHigh:
		return color.New(color.FgRed)
	case finding.SeverityMedium:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgCyan)
	}
}

// TaskRow is one line of the task table.
type TaskRow struct {
	ID       string
	Category string
	Status   string
	Error    string
}

// Assessment is what an assess run prints.
type Assessment struct {
	WorkflowID string
	Target     string
	Profile    string
	Duration   time.Duration
	Tasks      []TaskRow
	Severity   map[finding.Severity]int
	Findings   []finding.Finding
	ReportPath string
	// Report is the markdown body, printed when ShowReport is set.
	Report     string
	ShowReport bool

	// Data is printed as-is in json and yaml modes.
	Data any
}

func (f *formatter) style(s lipgloss.Style, text string) string {
	if !f.color {
		return text
	}
	return s.Render(text)
}

func (f *formatter) PrintAssessment(a Assessment) error {
	if f.mode != ModeText {
		return f.PrintData(a.Data)
	}

	var sb strings.Builder

	header := strings.Join([]string{
		f.style(titleStyle, "ByteHunter assessment"),
		fmt.Sprintf("%s %s", f.style(subtleStyle, "Workflow:"), a.WorkflowID),
		fmt.Sprintf("%s %s", f.style(subtleStyle, "Target:  "), a.Target),
		fmt.Sprintf("%s %s", f.style(subtleStyle, "Profile: "), a.Profile),
		fmt.Sprintf("%s %s", f.style(subtleStyle, "Duration:"), a.Duration.Round(time.Millisecond)),
	}, "\n")
	if f.color {
		sb.WriteString(panelStyle.Render(header))
	} else {
		sb.WriteString(header)
	}
	sb.WriteString("\n\n")

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tCATEGORY\tSTATUS\tERROR")
	for _, row := range a.Tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.ID, row.Category, f.style(styleForStatus(row.Status), row.Status), row.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total := 0
	parts := make([]string, 0, 4)
	for _, sev := range finding.Severities() {
		n := a.Severity[sev]
		total += n
		label := fmt.Sprintf("%s: %d", sev, n)
		if f.color && n > 0 {
			label = severityColor(sev).Sprint(label)
		}
		parts = append(parts, label)
	}
	fmt.Fprintf(&sb, "\nFindings (%d): %s\n", total, strings.Join(parts, "  "))

	for _, fd := range finding.Sorted(a.Findings) {
		sev := fmt.Sprintf("[%s]", fd.Severity)
		if f.color {
			sev = severityColor(fd.Severity).Sprint(sev)
		}
		fmt.Fprintf(&sb, "  %s %s\n", sev, fd.Title)
	}

	if a.ReportPath != "" {
		fmt.Fprintf(&sb, "\nReport written to %s\n", a.ReportPath)
	}
	if a.ShowReport && a.Report != "" {
		sb.WriteString("\n")
		sb.WriteString(a.Report)
	}

	_, err := f.stdout.Write([]byte(sb.String()))
	return err
}

func (f *formatter) PrintProgress(taskID, category, status, errText string) error {
	if f.quiet {
		return nil
	}
	line := fmt.Sprintf("%-10s %s (%s)", f.style(styleForStatus(status), status), taskID, category)
	if errText != "" {
		line += " " + f.style(subtleStyle, errText)
	}
	_, err := fmt.Fprintln(f.stderr, line)
	return err
}
