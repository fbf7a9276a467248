package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestFormatError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name: "error with context",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "schema error",
				Problem: "missing tables collection",
			},
			contains: []string{
				"✗ SCHEMA ERROR",
				"   missing tables collection",
			},
		},
		{
			name: "error with suggestions",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "table not found",
				Problem:     "No table named 'pots' in the schema.",
				Suggestions: []string{"posts", "pots_archive"},
			},
			contains: []string{
				"Did you mean: posts, pots_archive?",
			},
		},
		{
			name: "error with help commands",
			opts: ErrorOptions{
				Level:   ErrorLevelError,
				Context: "configuration error",
				Problem: "types.unknown_fallback must be a TypeScript type",
				HelpCommands: []string{
					"View config: cat zerogen.yml",
					"Create one: zerogen init",
				},
			},
			contains: []string{
				"→ View config: cat zerogen.yml",
				"→ Create one: zerogen init",
			},
		},
		{
			name: "consequence line",
			opts: ErrorOptions{
				Level:       ErrorLevelError,
				Context:     "migration error",
				Problem:     "new pipeline failed 5 consecutive times",
				Consequence: "The circuit breaker is open; all runs use the legacy path.",
			},
			contains: []string{
				"circuit breaker is open",
			},
		},
		{
			name: "warning without context",
			opts: ErrorOptions{
				Level:   ErrorLevelWarning,
				Problem: "prettier not found, output is unformatted",
			},
			contains: []string{
				"! prettier not found",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatError(tt.opts)
			for _, want := range tt.contains {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	WriteError(&buf, ErrorOptions{Level: ErrorLevelError, Problem: "boom"})
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("WriteError produced %q", buf.String())
	}
}

func TestTableNotFoundError(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	out := TableNotFoundError("pots", []string{"posts"}, true)

	for _, want := range []string{
		"TABLE NOT FOUND",
		"No table named 'pots'",
		"Did you mean: posts?",
		"zerogen schema dump",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMigrationErrorPointsAtRollback(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	out := MigrationError("pipeline output diverged from legacy", "Canary comparisons are failing.", true)

	if !strings.Contains(out, "zerogen rollback trigger") {
		t.Errorf("migration error does not mention rollback:\n%s", out)
	}
	if !strings.Contains(out, "Canary comparisons are failing.") {
		t.Errorf("migration error dropped the consequence:\n%s", out)
	}
}

func TestFormatSuccess(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	if got := FormatSuccess("Generated 12 models", true); got != "✓ Generated 12 models" {
		t.Errorf("FormatSuccess = %q", got)
	}
}

func TestWarningAndInfo(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	if out := Warning("unknown column type 'money'", nil, true); !strings.Contains(out, "! unknown column type") {
		t.Errorf("Warning = %q", out)
	}
	if out := Info("cache hit for posts,users", true); !strings.Contains(out, "i cache hit") {
		t.Errorf("Info = %q", out)
	}
}
