package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitcoach/internal/models"
	"github.com/julianstephens/habitcoach/internal/store"
	"github.com/julianstephens/habitcoach/internal/tui/components/habits"
)

// mutationMsg reports a store call that ran off the UI goroutine.
type mutationMsg struct {
	op  string
	err error
}

type coachReplyMsg struct {
	reply string
	err   error
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		// header, notice and help lines
		listHeight := msg.Height - 6
		h, v := docStyle.GetFrameSize()
		m.habitsModel.SetSize(msg.Width-h, listHeight-v)
		return m, nil

	case storeEventMsg:
		switch msg.Kind {
		case store.EventNotification:
			if msg.Err != nil {
				m.notice = msg.Err.Error()
			}
		default:
			m.habitsModel.SetRows(m.store.Habits())
		}
		return m, m.listen()

	case mutationMsg:
		if msg.err != nil {
			m.notice = describe(msg.op, msg.err)
		}
		m.habitsModel.SetRows(m.store.Habits())
		return m, nil

	case coachReplyMsg:
		m.thinking = false
		if msg.err != nil {
			m.notice = describe("coach", msg.err)
			return m, nil
		}
		m.reply = msg.reply
		return m, nil
	}

	switch m.state {
	case StateAddHabit, StateEditHabit, StateAskCoach:
		return m.updateForm(msg)
	case StateConfirmDelete:
		return m.updateConfirmDelete(msg)
	}
	return m.updateHabits(msg)
}

func (m Model) updateHabits(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.habitsModel.Filtering() {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
			return m, nil
		case key.Matches(msg, m.keys.Refresh):
			return m, m.mutate("refresh", m.store.RefreshAll)
		case key.Matches(msg, m.keys.Dismiss):
			m.notice = ""
			m.reply = ""
			m.store.ClearError()
			return m, nil
		case key.Matches(msg, m.keys.Coach):
			return m.openCoachForm()
		}

	case habits.AddHabitMsg:
		m.habitForm = &HabitFormModel{}
		m.form = m.newHabitForm("New habit")
		m.state = StateAddHabit
		return m, m.form.Init()

	case habits.EditHabitMsg:
		m.editingID = msg.Row.Habit.ID
		m.habitForm = &HabitFormModel{Name: msg.Row.Habit.Name, Description: msg.Row.Habit.Description}
		m.form = m.newHabitForm("Edit habit")
		m.state = StateEditHabit
		return m, m.form.Init()

	case habits.ToggleHabitMsg:
		id := msg.ID
		return m, m.mutate("toggle", func(ctx context.Context) error {
			return m.store.ToggleCompletion(ctx, id)
		})

	case habits.DeleteHabitMsg:
		m.habitToDeleteID = msg.ID
		m.habitToDelete = msg.Name
		m.state = StateConfirmDelete
		return m, nil
	}

	var cmd tea.Cmd
	m.habitsModel, cmd = m.habitsModel.Update(msg)
	return m, cmd
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.Type == tea.KeyEsc {
		m.state = StateHabits
		return m, nil
	}

	var cmds []tea.Cmd
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	cmds = append(cmds, cmd)

	switch m.form.State {
	case huh.StateCompleted:
		cmds = append(cmds, m.submitForm())
		m.state = StateHabits
	case huh.StateAborted:
		m.state = StateHabits
	}
	return m, tea.Batch(cmds...)
}

// submitForm turns the completed form into a store call or coach request.
func (m *Model) submitForm() tea.Cmd {
	switch m.state {
	case StateAddHabit:
		name := strings.TrimSpace(m.habitForm.Name)
		desc := strings.TrimSpace(m.habitForm.Description)
		return m.mutate("add", func(ctx context.Context) error {
			_, err := m.store.AddHabit(ctx, name, desc)
			return err
		})
	case StateEditHabit:
		row, ok := m.store.HabitByID(m.editingID)
		if !ok {
			return nil
		}
		var patch models.HabitPatch
		name := strings.TrimSpace(m.habitForm.Name)
		desc := strings.TrimSpace(m.habitForm.Description)
		if name != row.Habit.Name {
			patch.Name = &name
		}
		if desc != row.Habit.Description {
			patch.Description = &desc
		}
		if patch.Name == nil && patch.Description == nil {
			return nil
		}
		id := m.editingID
		return m.mutate("edit", func(ctx context.Context) error {
			return m.store.UpdateHabit(ctx, id, patch)
		})
	case StateAskCoach:
		m.thinking = true
		m.reply = ""
		return m.ask(m.coachForm.Message)
	}
	return nil
}

func (m Model) updateConfirmDelete(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "y", "Y":
		id := m.habitToDeleteID
		m.habitToDeleteID = ""
		m.habitToDelete = ""
		m.state = StateHabits
		return m, m.mutate("delete", func(ctx context.Context) error {
			return m.store.DeleteHabit(ctx, id)
		})
	case "n", "N", "esc":
		m.habitToDeleteID = ""
		m.habitToDelete = ""
		m.state = StateHabits
	}
	return m, nil
}

func (m Model) openCoachForm() (tea.Model, tea.Cmd) {
	m.coachForm = &CoachFormModel{}
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("Ask your coach").
				Value(&m.coachForm.Message).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("message cannot be empty")
					}
					return nil
				}),
		),
	)
	m.state = StateAskCoach
	return m, m.form.Init()
}

func (m Model) newHabitForm(title string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Prompt("Name: ").
				Value(&m.habitForm.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("name cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Description").
				Value(&m.habitForm.Description),
		),
	)
}

// mutate runs fn as a command. The store redraws through its events; the
// result only carries the error.
func (m Model) mutate(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return mutationMsg{op: op, err: fn(ctx)}
	}
}

func (m Model) ask(message string) tea.Cmd {
	ctx, c, s := m.ctx, m.coach, m.store
	return func() tea.Msg {
		reply, err := c.SendMessage(ctx, s.ChatContext(), message)
		return coachReplyMsg{reply: reply, err: err}
	}
}

func describe(op string, err error) string {
	switch {
	case errors.Is(err, store.ErrBusy):
		return "Still saving the previous change, try again in a moment"
	case errors.Is(err, store.ErrNoOwner):
		return "Not signed in"
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}
