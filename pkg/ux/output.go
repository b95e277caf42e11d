// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the leaktrace CLI.
package ux

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	// Semantic colors
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled output at one personality level.
//
// Machine output is stable and unstyled: one record per line, fields
// separated by tabs or key=value pairs, warnings and errors on the error
// writer.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel
}

// NewPrinter returns a printer at the process-wide personality level.
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{Out: out, Err: errOut, Level: GetPersonalityLevel()}
}

func (p *Printer) machine() bool { return p.Level == PersonalityMachine }

// Title prints a styled title
func (p *Printer) Title(text string) {
	if p.machine() {
		return
	}
	fmt.Fprintln(p.Out, Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message. Errors always go to the error writer.
func (p *Printer) Error(text string) {
	switch p.Level {
	case PersonalityMachine:
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(p.Err, "%s %s\n", IconError.Render(), text)
	default:
		fmt.Fprintf(p.Err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func (p *Printer) Info(text string) {
	if p.machine() {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Suppressed in machine output.
func (p *Printer) Muted(text string) {
	if p.machine() {
		return
	}
	fmt.Fprintln(p.Out, Styles.Muted.Render(text))
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	if p.machine() {
		fmt.Fprintf(p.Out, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.Out, Styles.Box.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints text in a warning-styled box
func (p *Printer) WarningBox(title, content string) {
	if p.machine() {
		fmt.Fprintf(p.Err, "WARN %s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.Out, Styles.WarningBox.Width(72).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}

// =============================================================================
// Reports
// =============================================================================

// Paths prints the routes from root to each match, one per line.
func (p *Printer) Paths(root string, paths []string) {
	if p.machine() {
		for _, s := range paths {
			fmt.Fprintln(p.Out, s)
		}
		return
	}
	if len(paths) == 0 {
		p.Muted(fmt.Sprintf("no matches reachable from %s", root))
		return
	}
	p.Title(fmt.Sprintf("%d %s reachable from %s", len(paths), plural(len(paths), "match", "matches"), root))
	for _, s := range paths {
		fmt.Fprintf(p.Out, "  %s %s\n", IconBullet.Render(), Styles.Highlight.Render(s))
	}
}

// Summary is the outcome of one traversal as shown to the user.
type Summary struct {
	Matches      int
	Visited      int
	Ignored      int
	AccessErrors int
	Elapsed      time.Duration
	Stats        string
}

// Summary prints a summary line with counts
func (p *Printer) Summary(s Summary) {
	if p.machine() {
		fmt.Fprintf(p.Out, "SUMMARY: matches=%d visited=%d ignored=%d access_errors=%d elapsed_ms=%d\n",
			s.Matches, s.Visited, s.Ignored, s.AccessErrors, s.Elapsed.Milliseconds())
		if s.Stats != "" {
			fmt.Fprintln(p.Out, s.Stats)
		}
		return
	}
	fmt.Fprintf(p.Out, "\n%s %s  %s %s  %s %s  %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", s.Matches)), Styles.Muted.Render("matches"),
		Styles.Bold.Render(fmt.Sprintf("%d", s.Visited)), Styles.Muted.Render("visited"),
		Styles.Warning.Render(fmt.Sprintf("%d", s.Ignored)), Styles.Muted.Render("ignored"),
		Styles.Muted.Render(s.Elapsed.Round(time.Microsecond).String()),
	)
	if s.AccessErrors > 0 {
		p.Warning(fmt.Sprintf("%d attribute %s could not be read", s.AccessErrors, plural(s.AccessErrors, "access", "accesses")))
	}
	if s.Stats != "" {
		p.Muted(s.Stats)
	}
}

// Agreement is one row of a strategy comparison.
type Agreement struct {
	Before  string
	After   string
	Agree   bool
	Details string
}

// Agreements prints one line per compared pair.
func (p *Printer) Agreements(rows []Agreement) {
	for _, r := range rows {
		if p.machine() {
			status := "AGREE"
			if !r.Agree {
				status = "DIFFER"
			}
			fmt.Fprintf(p.Out, "%s\t%s\t%s\t%s\n", status, r.Before, r.After, r.Details)
			continue
		}
		icon := IconSuccess
		if !r.Agree {
			icon = IconError
		}
		fmt.Fprintf(p.Out, "%s %s %s %s  %s\n", icon.Render(), r.Before, IconArrow.Render(), r.After, Styles.Muted.Render(r.Details))
	}
}

// Diff prints a unified diff, colouring additions, removals and hunk
// headers.
func (p *Printer) Diff(unified string) {
	if p.machine() {
		fmt.Fprint(p.Out, unified)
		return
	}
	for _, line := range strings.SplitAfter(unified, "\n") {
		if line == "" {
			continue
		}
		text := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(text, "+++"), strings.HasPrefix(text, "---"):
			text = Styles.Bold.Render(text)
		case strings.HasPrefix(text, "@@"):
			text = Styles.Subtitle.Render(text)
		case strings.HasPrefix(text, "+"):
			text = Styles.Success.Render(text)
		case strings.HasPrefix(text, "-"):
			text = Styles.Error.Render(text)
		}
		fmt.Fprintln(p.Out, text)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
