package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// OutputMode defines the output format for CLI commands
type OutputMode string

const (
	// ModeText prints tables and panels for humans
	ModeText OutputMode = "text"
	// ModeJSON outputs data as JSON
	ModeJSON OutputMode = "json"
	// ModeYAML outputs data as YAML
	ModeYAML OutputMode = "yaml"
)

// Modes lists the accepted --output values.
func Modes() []string {
	return []string{string(ModeText), string(ModeJSON), string(ModeYAML)}
}

// Formatter provides consistent output formatting across CLI commands
type Formatter interface {
	// Mode returns the selected output mode.
	Mode() OutputMode

	// PrintData outputs data as JSON or YAML depending on the mode. In text
	// mode it falls back to YAML.
	PrintData(data any) error

	// PrintTable outputs rows as an aligned table, or as a list of objects in
	// structured modes.
	PrintTable(headers []string, rows [][]string) error

	// PrintSummary outputs a summary message to stdout (unless quiet mode)
	PrintSummary(message string) error

	// PrintError outputs an error and its suggestions to stderr
	PrintError(err error, suggestions []string) error

	// PrintAssessment renders a finished assessment.
	PrintAssessment(a Assessment) error

	// PrintProgress writes one task transition line to stderr.
	PrintProgress(taskID, category, status, errText string) error
}

type formatter struct {
	stdout io.Writer
	stderr io.Writer
	mode   OutputMode
	quiet  bool
	color  bool
}

// New creates a new Formatter
func New(stdout, stderr io.Writer, mode OutputMode, quiet, color bool) Formatter {
	return &formatter{
		stdout: stdout,
		stderr: stderr,
		mode:   mode,
		quiet:  quiet,
		color:  color,
	}
}

func (f *formatter) Mode() OutputMode { return f.mode }

func (f *formatter) printJSON(data any) error {
	enc := json.NewEncoder(f.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *formatter) printYAML(data any) error {
	enc := yaml.NewEncoder(f.stdout)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (f *formatter) PrintData(data any) error {
	if f.mode == ModeJSON {
		return f.printJSON(data)
	}
	return f.printYAML(data)
}

func (f *formatter) PrintTable(headers []string, rows [][]string) error {
	if f.mode != ModeText {
		items := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			item := make(map[string]string)
			for i, header := range headers {
				if i < len(row) {
					item[strings.ToLower(header)] = row[i]
				}
			}
			items = append(items, item)
		}
		return f.PrintData(items)
	}

	w := tabwriter.NewWriter(f.stdout, 0, 0, 2, ' ', 0)

	headerLine := make([]string, len(headers))
	for i, h := range headers {
		headerLine[i] = strings.ToUpper(h)
		if f.color {
			headerLine[i] = color.New(color.Bold).Sprint(headerLine[i])
		}
	}
	if _, err := fmt.Fprintln(w, strings.Join(headerLine, "\t")); err != nil {
		return err
	}

	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}

	return w.Flush()
}

func (f *formatter) PrintSummary(message string) error {
	if f.quiet {
		return nil
	}

	if f.mode != ModeText {
		// keep stdout parseable
		_, err := fmt.Fprintln(f.stderr, message)
		return err
	}

	if f.color {
		_, err := color.New(color.FgGreen).Fprintln(f.stdout, message)
		return err
	}

	_, err := fmt.Fprintln(f.stdout, message)
	return err
}

func (f *formatter) PrintError(err error, suggestions []string) error {
	if err == nil {
		return nil
	}

	var sb strings.Builder
	msg := fmt.Sprintf("Error: %v", err)
	if f.color {
		sb.WriteString(color.RedString("%s", msg))
	} else {
		sb.WriteString(msg)
	}
	sb.WriteString("\n")

	if len(suggestions) > 0 && !f.quiet {
		sb.WriteString("\nSuggestions:\n")
		for _, s := range suggestions {
			fmt.Fprintf(&sb, "  → %s\n", s)
		}
	}

	_, writeErr := io.WriteString(f.stderr, sb.String())
	return writeErr
}

// ValidateMode checks if the output mode is valid
func ValidateMode(mode string) error {
	switch OutputMode(strings.ToLower(mode)) {
	case ModeText, ModeJSON, ModeYAML:
		return nil
	default:
		return fmt.Errorf("invalid output mode: %s (must be one of %s)", mode, strings.Join(Modes(), ", "))
	}
}

// ParseMode converts a string to OutputMode
func ParseMode(mode string) OutputMode {
	switch strings.ToLower(mode) {
	case "json":
		return ModeJSON
	case "yaml", "yml":
		return ModeYAML
	default:
		return ModeText
	}
}
