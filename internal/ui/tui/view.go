package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderResources(&b, m)
	if len(m.Logs) > 0 {
		renderLogs(&b, m)
	}
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	b.WriteString(titleStyle.Render(m.Title))

	status := " "
	switch {
	case m.Done && m.Err != nil:
		status += failedStyle.Render(fmt.Sprintf("Error: %v", m.Err))
	case m.Done:
		status += readyStyle.Render("Complete")
	case m.Interrupted:
		status += warningStyle.Render("Interrupted, waiting for in-flight calls")
	default:
		status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + dimStyle.Render(m.Verb+"ing...")
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	finished, total := m.Counts()
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = m.Width - 30
		if barWidth < 10 {
			barWidth = 10
		}
	}
	progress := calculateProgress(m)
	filled := int(float64(barWidth) * progress)
	if filled > barWidth {
		filled = barWidth
	}

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(b, "  %s %d/%d  %s\n", bar, finished, total, formatDuration(time.Since(m.StartTime)))
}

func renderResources(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Resources"))
	b.WriteString("\n")

	if len(m.Resources) == 0 {
		fmt.Fprintf(b, "    %s\n", dimStyle.Render("waiting for the first change"))
		return
	}
	for _, r := range m.Resources {
		icon, style := resourceIcon(r.Status, m.SpinnerFrame)
		dur := ""
		if r.Finished() {
			dur = formatDuration(r.Elapsed)
		}
		fmt.Fprintf(b, "    %s %-40s %s %s\n", style(icon), style(r.Addr), dimStyle.Render(r.Detail), dimStyle.Render(dur))
	}
}

func renderLogs(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Log"))
	b.WriteString("\n")
	for _, line := range m.Logs {
		fmt.Fprintf(b, "    %s\n", dimStyle.Render(line))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	var parts []string
	if m.Summary != "" {
		parts = append(parts, m.Summary)
	}
	if m.Saves > 0 {
		parts = append(parts, fmt.Sprintf("state saved %d times", m.Saves))
	}
	if !m.Done {
		parts = append(parts, "q/ctrl+c: interrupt")
	}
	if len(parts) == 0 {
		return
	}
	b.WriteString(footerStyle.Render("  " + strings.Join(parts, "  |  ")))
	b.WriteString("\n")
}

func resourceIcon(s Status, frame int) (string, styleFunc) {
	switch s {
	case StatusDone:
		return checkMark, sf(readyStyle)
	case StatusUnchanged:
		return sameMark, sf(dimStyle)
	case StatusFailed:
		return crossMark, sf(failedStyle)
	case StatusSkipped:
		return skipMark, sf(dimStyle)
	case StatusRetrying:
		return warnMark, sf(warningStyle)
	default:
		return currentSpinner(frame), sf(activeStyle)
	}
}

func calculateProgress(m Model) float64 {
	if m.Done && m.Err == nil {
		return 1.0
	}
	finished, total := m.Counts()
	if total == 0 {
		return 0
	}
	return float64(finished) / float64(total)
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
