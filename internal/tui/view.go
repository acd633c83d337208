package tui

import (
	"fmt"
	"strings"
)

const helpText = "space toggle • a select page • n select N rows • c clear • ←/→ page • q quit"

// View renders the model (Bubble Tea interface).
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("Selected: %d rows", m.view.SelectionCount)))
	if m.view.Pending {
		b.WriteString(SubtleStyle.Render(fmt.Sprintf("  (%d picked so far, more as pages load)", m.view.SelectedCount)))
	}
	b.WriteString("\n\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")

	b.WriteString(m.footer())
	b.WriteString("\n")

	if m.loading {
		b.WriteString(fmt.Sprintf("%s Loading...\n", m.spinner.View()))
	}
	if m.status != "" {
		b.WriteString(ErrorStyle.Render(m.status))
		b.WriteString("\n")
	}

	if m.overlay {
		b.WriteString("\n")
		b.WriteString(OverlayStyle.Render(targetPrompt + "\n\n" + m.input.View() + "\n\n" +
			SubtleStyle.Render("enter select • esc cancel")))
		b.WriteString("\n")
	}

	b.WriteString(SubtleStyle.Render(helpText))
	return b.String()
}

// footer is the "Showing a to b of T entries" line plus the page position.
func (m Model) footer() string {
	pages := m.view.TotalPages
	if pages < 1 {
		pages = 1
	}
	return SubtleStyle.Render(fmt.Sprintf("Showing %d to %d of %d entries   Page %d of %d",
		m.view.FirstRow(), m.view.LastRow(), m.view.TotalCount, m.view.Page, pages))
}
