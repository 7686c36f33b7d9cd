package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.state {
	case StateAddHabit, StateEditHabit, StateAskCoach:
		content = docStyle.Render(m.form.View())
	case StateConfirmDelete:
		content = m.viewConfirmDelete()
	default:
		content = docStyle.Render(m.habitsModel.View())
	}

	parts := []string{m.viewHeader(), content}
	if panel := m.viewCoach(); panel != "" {
		parts = append(parts, panel)
	}
	if m.notice != "" {
		parts = append(parts, warningStyle.Render("⚠ "+m.notice))
	}
	parts = append(parts, m.help.View(m))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) viewHeader() string {
	rows := m.store.Habits()
	done := m.store.CompletedHabitsCount()
	progress := progressStyle.Render(fmt.Sprintf("%d/%d today (%d%%)", done, len(rows), m.store.ProgressPercentage()))

	status := ""
	switch {
	case m.store.Loading():
		status = mutedStyle.Render("syncing…")
	case !m.store.LastSync().IsZero():
		status = mutedStyle.Render("synced " + m.store.LastSync().Format("15:04:05"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("habitcoach"), " ", progress, "  ", status)
}

func (m Model) viewCoach() string {
	switch {
	case m.thinking:
		return mutedStyle.Render("Coach is thinking…")
	case m.reply != "":
		width := m.width - 4
		if width < 20 {
			width = 60
		}
		return replyStyle.Width(width).Render(m.reply)
	}
	return ""
}

func (m Model) viewConfirmDelete() string {
	return lipgloss.Place(m.width, m.height-4,
		lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center,
			dangerStyle.Render(fmt.Sprintf("Delete %q and all of its history?", m.habitToDelete)),
			"",
			"[y] Yes",
			"[n] No",
		),
	)
}
