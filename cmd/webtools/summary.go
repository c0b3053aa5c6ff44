package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/solarecho3/web-tools/pkg/ratelimit"
	"github.com/solarecho3/web-tools/pkg/snapshot"
)

var (
	accent = lipgloss.Color("#1DA1F2")
	green  = lipgloss.Color("#39FF14")
	yellow = lipgloss.Color("#FFFF00")
	red    = lipgloss.Color("#FF0000")
	dim    = lipgloss.Color("#B0B0B0")

	titleStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(dim).
			Width(16)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	warnStyle = lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true)
)

// percentStyle colors a remaining-quota percentage.
func percentStyle(pct int) lipgloss.Style {
	switch {
	case pct <= 10:
		return lipgloss.NewStyle().Foreground(red).Bold(true)
	case pct <= 50:
		return lipgloss.NewStyle().Foreground(yellow)
	default:
		return lipgloss.NewStyle().Foreground(green)
	}
}

// renderLimits formats the rate-limit log, one line per endpoint.
func renderLimits(log map[string]ratelimit.Snapshot) string {
	if len(log) == 0 {
		return panelStyle.Render(titleStyle.Render("Rate limits") + "\n" + "no responses tracked")
	}

	names := make([]string, 0, len(log))
	for name := range log {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{titleStyle.Render("Rate limits")}
	for _, name := range names {
		snap := log[name]
		lines = append(lines, fmt.Sprintf("%s %s  %.0f/%.0f  resets %s (in %s)",
			labelStyle.Render(name),
			percentStyle(snap.PercentRemaining).Render(fmt.Sprintf("%3d%%", snap.PercentRemaining)),
			snap.Remaining, snap.Limit,
			snap.ResetClock(), snap.UntilReset,
		))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// renderReport formats the stages of a snapshot run.
func renderReport(r *snapshot.Report) string {
	title := "@" + strings.TrimPrefix(r.Username, "@")
	if r.UserID != "" {
		title += " (" + r.UserID + ")"
	}

	lines := []string{titleStyle.Render(title)}
	for _, st := range r.Stages {
		lines = append(lines, renderStage(st))
	}
	for _, kind := range r.Skipped {
		lines = append(lines, labelStyle.Render(string(kind))+" "+warnStyle.Render("skipped"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderStage(st snapshot.Stage) string {
	status := fmt.Sprintf("%d rows, %d pages", st.Rows, st.Pages)
	switch {
	case st.Diagnostic:
		status += " " + warnStyle.Render("diagnostic, not stored")
	case st.Persisted:
		status += " -> " + st.Capture.Table + " in " + st.Capture.Path
	}
	return labelStyle.Render(string(st.Kind)) + " " + status
}
