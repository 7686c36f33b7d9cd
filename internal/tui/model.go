// Package tui is the interactive habit checklist. It renders the store's
// rows, runs every mutation through the store and redraws on store events.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitcoach/internal/coach"
	"github.com/julianstephens/habitcoach/internal/store"
	"github.com/julianstephens/habitcoach/internal/tui/components/habits"
)

type SessionState int

const (
	StateHabits SessionState = iota
	StateAddHabit
	StateEditHabit
	StateConfirmDelete
	StateAskCoach
)

type HabitFormModel struct {
	Name        string
	Description string
}

type CoachFormModel struct {
	Message string
}

// eventBuffer bounds queued store events. Dropped events are harmless:
// every redraw reads the current rows from the store.
const eventBuffer = 64

type Model struct {
	store *store.Store
	coach coach.Backend
	ctx   context.Context

	state       SessionState
	keys        KeyMap
	help        help.Model
	habitsModel habits.Model
	form        *huh.Form
	habitForm   *HabitFormModel
	coachForm   *CoachFormModel

	events      chan store.Event
	cancelWatch func()

	editingID       string
	habitToDeleteID string
	habitToDelete   string
	notice          string
	reply           string
	thinking        bool
	quitting        bool
	width           int
	height          int
}

// NewModel subscribes to store events. Close releases the subscription.
func NewModel(ctx context.Context, s *store.Store, c coach.Backend) Model {
	events := make(chan store.Event, eventBuffer)
	cancel := s.Watch(func(ev store.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	return Model{
		store:       s,
		coach:       c,
		ctx:         ctx,
		state:       StateHabits,
		keys:        DefaultKeyMap(),
		help:        help.New(),
		habitsModel: habits.New(s.Habits(), 0, 0),
		events:      events,
		cancelWatch: cancel,
	}
}

// Close stops watching the store.
func (m Model) Close() {
	if m.cancelWatch != nil {
		m.cancelWatch()
	}
}

func (m Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.Coach, m.keys.Refresh, m.keys.Help, m.keys.Quit}
}

func (m Model) FullHelp() [][]key.Binding {
	hk := habits.DefaultKeyMap()
	return [][]key.Binding{
		{m.keys.Up, m.keys.Down},
		{hk.Toggle, hk.Add, hk.Edit, hk.Delete},
		{m.keys.Coach, m.keys.Refresh, m.keys.Dismiss, m.keys.Help, m.keys.Quit},
	}
}

func (m Model) Init() tea.Cmd {
	return m.listen()
}

type storeEventMsg store.Event

// listen waits for the next store event.
func (m Model) listen() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return storeEventMsg(ev)
	}
}
