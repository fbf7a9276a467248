package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ErrorLevel is the severity of a formatted message.
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the standard message format.
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Consequence  string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders the standard message format: a context header, the
// problem, an optional consequence, fuzzy suggestions, and follow-up
// commands.
//
// Example output:
//
//	✗ TABLE NOT FOUND: pots
//	   No table named 'pots' in the schema.
//
//	   Did you mean: posts?
//
//	   → See all tables: zerogen schema dump
//	   → Get help: zerogen generate --help
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var headerColor, bodyColor *color.Color
	var symbol string

	switch opts.Level {
	case ErrorLevelError:
		headerColor = color.New(color.FgRed, color.Bold)
		bodyColor = color.New(color.FgRed)
		symbol = "✗"
	case ErrorLevelWarning:
		headerColor = color.New(color.FgYellow, color.Bold)
		bodyColor = color.New(color.FgYellow)
		symbol = "!"
	case ErrorLevelInfo:
		headerColor = color.New(color.FgCyan, color.Bold)
		bodyColor = color.New(color.FgCyan)
		symbol = "i"
	}

	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Consequence != "" {
		b.WriteString("\n")
		bodyColor.Fprintf(&b, "   %s\n", opts.Consequence)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted message to the writer.
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess renders a success line.
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line to the writer.
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// TableNotFoundError formats the message for a --table value that matches
// nothing in the extracted schema.
func TableNotFoundError(tableName string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "table not found",
		Problem:     fmt.Sprintf("No table named '%s' in the schema.", tableName),
		Suggestions: suggestions,
		HelpCommands: []string{
			"See all tables: zerogen schema dump",
			"Get help: zerogen generate --help",
		},
		NoColor: noColor,
	})
}

// SchemaError formats an extraction or validation failure.
func SchemaError(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "schema error",
		Problem:     message,
		Suggestions: suggestions,
		HelpCommands: []string{
			"Validate the snapshot: zerogen schema validate",
			"Get help: zerogen schema --help",
		},
		NoColor: noColor,
	})
}

// ConfigError formats a configuration loading or validation failure.
func ConfigError(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "configuration error",
		Problem:     message,
		Suggestions: suggestions,
		HelpCommands: []string{
			"View config: cat zerogen.yml",
			"Create one: zerogen init",
		},
		NoColor: noColor,
	})
}

// MigrationError formats a pipeline routing failure with the consequence
// spelled out, pointing at the rollback controls.
func MigrationError(message, consequence string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "migration error",
		Problem:     message,
		Consequence: consequence,
		HelpCommands: []string{
			"Check status: zerogen status",
			"Pin the legacy path: zerogen rollback trigger",
			"Get help: zerogen rollback --help",
		},
		NoColor: noColor,
	})
}

// Warning formats a non-fatal condition.
func Warning(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelWarning,
		Problem:     message,
		Suggestions: suggestions,
		NoColor:     noColor,
	})
}

// Info formats an informational line.
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:   ErrorLevelInfo,
		Problem: message,
		NoColor: noColor,
	})
}
