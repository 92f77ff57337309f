package export

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"intervene/internal/domain"
	"intervene/internal/plan"
)

var (
	ganttLabel    = lipgloss.NewStyle().Width(24).MaxWidth(24)
	ganttHeader   = lipgloss.NewStyle().Faint(true)
	ganttBar      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2e86de"))
	ganttCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("#c0392b")).Bold(true)
	ganttOverflow = lipgloss.NewStyle().Foreground(lipgloss.Color("#f39c12"))
	ganttEmpty    = lipgloss.NewStyle().Faint(true)
)

const (
	ganttFill  = "█"
	ganttBlank = "·"
)

// RenderGantt draws one row per intervention, one column per week. Weeks
// past the planning window are drawn in the overflow colour.
func RenderGantt(b domain.Bundle, tl plan.Timeline) string {
	span := tl.Weeks
	if tl.TotalWeeks > span {
		span = tl.TotalWeeks
	}
	var sb strings.Builder
	sb.WriteString(ganttLabel.Render(""))
	sb.WriteString(" ")
	sb.WriteString(ganttHeader.Render(weekRuler(span)))
	sb.WriteString("\n")
	for _, iv := range b.Interventions {
		entry, ok := tl.Entry(iv.ID)
		if !ok {
			continue
		}
		sb.WriteString(ganttLabel.Render(iv.Label()))
		sb.WriteString(" ")
		for w := 1; w <= span; w++ {
			switch {
			case w < entry.StartWeek || w > entry.EndWeek:
				sb.WriteString(ganttEmpty.Render(ganttBlank))
			case w > tl.Weeks:
				sb.WriteString(ganttOverflow.Render(ganttFill))
			case entry.CriticalPath:
				sb.WriteString(ganttCritical.Render(ganttFill))
			default:
				sb.WriteString(ganttBar.Render(ganttFill))
			}
		}
		fmt.Fprintf(&sb, " %d-%d\n", entry.StartWeek, entry.EndWeek)
	}
	return sb.String()
}

// weekRuler marks every fifth week, e.g. "1   5    10".
func weekRuler(span int) string {
	cells := []rune(strings.Repeat(" ", span))
	for w := 1; w <= span; w++ {
		if w != 1 && w%5 != 0 {
			continue
		}
		label := []rune(fmt.Sprint(w))
		if w-1+len(label) > span {
			break
		}
		copy(cells[w-1:], label)
	}
	return string(cells)
}
