package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/alexjbarnes/reel-sync/internal/models"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed (remote error, sync failure)
	ExitCommandError = 2 // Command error (bad arguments, missing config)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitFailure
}

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true)
	starStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
)

// OutputFormatter renders command results as text, JSON or YAML.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Render writes v in the structured formats, or calls text for the
// human-readable one.
func (f *OutputFormatter) Render(v any, text func(w io.Writer)) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	case "yaml":
		return writeYAML(f.Writer, v)
	default:
		text(f.Writer)
		return nil
	}
}

// writeYAML encodes v through its JSON form so YAML output carries the
// same field names and order as JSON output.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}

	return enc.Close()
}

// Message prints a one-line status in text mode and {"message": ...} in
// the structured formats.
func (f *OutputFormatter) Message(msg string) error {
	return f.Render(map[string]string{"message": msg}, func(w io.Writer) {
		fmt.Fprintln(w, okStyle.Render(msg))
	})
}

// movieTable renders records as an aligned table. isFavorite marks rows
// with a star; it may be nil.
func movieTable(w io.Writer, records []models.FavoriteRecord, isFavorite func(models.MovieID) bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no movies"))
		return
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("", "ID", "YEAR", "RATING", "TITLE")

	for _, r := range records {
		mark := ""
		if isFavorite != nil && isFavorite(r.ID) {
			mark = starStyle.Render("★")
		}

		rating := ""
		if r.VoteAverage > 0 {
			rating = strconv.FormatFloat(r.VoteAverage, 'f', 1, 64)
		}

		t.Row(mark, r.Key(), r.ReleaseYear(), rating, r.Title)
	}

	fmt.Fprintln(w, t.Render())
}
