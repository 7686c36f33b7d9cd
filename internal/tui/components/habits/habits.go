package habits

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/habitcoach/internal/models"
)

type AddHabitMsg struct{}

type ToggleHabitMsg struct {
	ID string
}

type EditHabitMsg struct {
	Row models.HabitRow
}

type DeleteHabitMsg struct {
	ID   string
	Name string
}

type Item struct {
	Row models.HabitRow
}

func (i Item) Title() string {
	title := i.Row.Habit.Name
	if i.Row.CompletedToday {
		title = "✓ " + title
	} else {
		title = "○ " + title
	}
	if i.Row.IsLoading {
		title += " …"
	}
	return title
}

func (i Item) Description() string {
	desc := "no streak"
	switch {
	case i.Row.Streak == 1:
		desc = "1 day streak"
	case i.Row.Streak > 1:
		desc = fmt.Sprintf("%d day streak", i.Row.Streak)
	}
	if i.Row.LongestStreak > i.Row.Streak {
		desc += fmt.Sprintf(" (best %d)", i.Row.LongestStreak)
	}
	if i.Row.Stale {
		desc += " · may be out of date"
	}
	return desc
}

func (i Item) FilterValue() string { return i.Row.Habit.Name }

type KeyMap struct {
	Add    key.Binding
	Toggle key.Binding
	Edit   key.Binding
	Delete key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "toggle today"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "edit"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
	}
}

type Model struct {
	list list.Model
	keys KeyMap
}

func New(rows []models.HabitRow, width, height int) Model {
	l := list.New(items(rows), list.NewDefaultDelegate(), width, height)
	l.Title = "Habits"
	l.SetShowTitle(false)
	l.SetShowHelp(false)

	keys := DefaultKeyMap()
	l.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{keys.Toggle, keys.Add, keys.Edit, keys.Delete}
	}
	l.AdditionalFullHelpKeys = l.AdditionalShortHelpKeys

	return Model{list: l, keys: keys}
}

func items(rows []models.HabitRow) []list.Item {
	out := make([]list.Item, len(rows))
	for i, r := range rows {
		out[i] = Item{Row: r}
	}
	return out
}

// SetRows replaces the list contents and keeps the cursor on the same
// habit when it still exists.
func (m *Model) SetRows(rows []models.HabitRow) {
	selected := ""
	if i, ok := m.list.SelectedItem().(Item); ok {
		selected = i.Row.Habit.ID
	}
	m.list.SetItems(items(rows))
	for idx, r := range rows {
		if r.Habit.ID == selected {
			m.list.Select(idx)
			break
		}
	}
}

func (m Model) Selected() (models.HabitRow, bool) {
	i, ok := m.list.SelectedItem().(Item)
	return i.Row, ok
}

func (m Model) Filtering() bool {
	return m.list.FilterState() == list.Filtering
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok && !m.Filtering() {
		switch {
		case key.Matches(msg, m.keys.Add):
			return m, func() tea.Msg { return AddHabitMsg{} }
		case key.Matches(msg, m.keys.Toggle):
			if row, ok := m.Selected(); ok && !row.IsLoading {
				return m, func() tea.Msg { return ToggleHabitMsg{ID: row.Habit.ID} }
			}
			return m, nil
		case key.Matches(msg, m.keys.Edit):
			if row, ok := m.Selected(); ok && !row.IsLoading {
				return m, func() tea.Msg { return EditHabitMsg{Row: row} }
			}
			return m, nil
		case key.Matches(msg, m.keys.Delete):
			if row, ok := m.Selected(); ok && !row.IsLoading {
				return m, func() tea.Msg { return DeleteHabitMsg{ID: row.Habit.ID, Name: row.Habit.Name} }
			}
			return m, nil
		}
	}

	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.list.Items()) == 0 && !m.Filtering() {
		return "\n  No habits yet.\n  Press 'a' to add one."
	}
	return m.list.View()
}

func (m *Model) SetSize(width, height int) {
	m.list.SetSize(width, height)
}
