package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"marketplace-service/internal/chatsync"
	"marketplace-service/internal/models"
)

const requestTimeout = 15 * time.Second

type (
	changedMsg   struct{}
	connectedMsg struct{ err error }
	selectedMsg  struct{ err error }
	sentMsg      struct{ err error }
	readMsg      struct{ err error }
)

// Model is a single-room chat screen on top of a chatsync.Store.
type Model struct {
	store     *chatsync.Store
	roomID    string
	textInput textinput.Model
	notice    string
	reading   bool
	width     int
	now       func() time.Time
}

// New builds the chat screen for roomID.
func New(store *chatsync.Store, roomID string) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message…"
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	return &Model{
		store:     store,
		roomID:    roomID,
		textInput: input,
		now:       time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.connectCmd(), m.waitForChange())
}

func (m *Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := message.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.store.Disconnect()
			return m, tea.Quit
		case tea.KeyEnter:
			content := m.textInput.Value()
			if strings.TrimSpace(content) == "" {
				return m, nil
			}
			m.textInput.SetValue("")
			return m, m.sendCmd(content)
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case connectedMsg:
		if msg.err != nil {
			m.notice = "live updates unavailable: " + msg.err.Error()
		}
		return m, m.selectCmd()
	case selectedMsg:
		if msg.err != nil {
			m.notice = msg.err.Error()
			return m, nil
		}
		return m, m.markReadIfUnread()
	case sentMsg:
		if msg.err != nil && !errors.Is(msg.err, chatsync.ErrEmptyMessage) {
			m.notice = "send failed: " + msg.err.Error()
		}
		return m, nil
	case readMsg:
		m.reading = false
		if msg.err != nil {
			m.notice = "mark read failed: " + msg.err.Error()
		}
		return m, nil
	case changedMsg:
		return m, tea.Batch(m.waitForChange(), m.markReadIfUnread())
	}
	return m, nil
}

// waitForChange blocks until the store reports a change.
func (m *Model) waitForChange() tea.Cmd {
	changes := m.store.Changes()
	return func() tea.Msg {
		<-changes
		return changedMsg{}
	}
}

func (m *Model) connectCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return connectedMsg{err: m.store.Connect(ctx)}
	}
}

func (m *Model) selectCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.store.LoadRooms(ctx); err != nil {
			return selectedMsg{err: err}
		}
		return selectedMsg{err: m.store.SelectRoom(ctx, m.roomID)}
	}
}

func (m *Model) sendCmd(content string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := m.store.SendMessage(ctx, content, m.roomID, models.MessageText)
		return sentMsg{err: err}
	}
}

// markReadIfUnread clears the open room's unread counter, one request at a time.
func (m *Model) markReadIfUnread() tea.Cmd {
	room, ok := m.store.Room(m.roomID)
	if !ok || room.UnreadCount == 0 || m.reading {
		return nil
	}
	m.reading = true
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return readMsg{err: m.store.MarkAsRead(ctx, m.roomID)}
	}
}

// Run starts the chat screen and blocks until the user quits.
func Run(store *chatsync.Store, roomID string) error {
	_, err := tea.NewProgram(New(store, roomID), tea.WithAltScreen()).Run()
	return err
}
