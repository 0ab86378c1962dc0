package engine

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	dimStyle     = lipgloss.NewStyle().Foreground(colorDim)

	actionStyles = map[Action]lipgloss.Style{
		ActionCreate:  lipgloss.NewStyle().Foreground(colorGreen),
		ActionUpdate:  lipgloss.NewStyle().Foreground(colorYellow),
		ActionReplace: lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		ActionDelete:  lipgloss.NewStyle().Foreground(colorRed),
	}

	actionSymbols = map[Action]string{
		ActionCreate:  "+",
		ActionUpdate:  "~",
		ActionReplace: "-/+",
		ActionDelete:  "-",
	}
)

// RenderPlan renders the plan for humans. Styled output uses terminal
// colours; plain output is stable for files and tests.
func RenderPlan(title string, p *Plan, styled bool) string {
	render := func(s lipgloss.Style, text string) string {
		if !styled {
			return text
		}
		return s.Render(text)
	}

	var b strings.Builder
	b.WriteString(render(titleStyle, "  "+title))
	b.WriteString("\n")
	b.WriteString(render(dimStyle, "  "+strings.Repeat("═", 40)))
	b.WriteString("\n")

	if p.Empty() {
		b.WriteString("\n  No changes. Infrastructure matches the configuration.\n")
		return b.String()
	}

	b.WriteString("\n")
	b.WriteString(render(sectionStyle, "  Changes"))
	b.WriteString("\n")
	for _, c := range p.Changes {
		if c.Action == ActionNoOp {
			continue
		}
		line := fmt.Sprintf("  %3s %-40s %s", actionSymbols[c.Action], c.Addr, c.Type)
		b.WriteString(render(actionStyles[c.Action], line))
		b.WriteString("\n")
		if c.Reason != "" {
			b.WriteString(render(dimStyle, "        # "+c.Reason))
			b.WriteString("\n")
		}
		if len(c.Attrs) > 0 && c.Action != ActionCreate {
			b.WriteString(render(dimStyle, "        changed: "+strings.Join(c.Attrs, ", ")))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "  Plan: %s.\n", p.Summary())
	return b.String()
}
