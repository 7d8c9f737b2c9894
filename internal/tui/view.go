package tui

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"marketplace-service/internal/chatsync"
	"marketplace-service/internal/models"
)

var (
	chatHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	dayStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).Bold(true).MarginTop(1)
	timestampStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle   = lipgloss.NewStyle().Bold(true)
	ownStyle        = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	bodyStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	readStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	onlineStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	offlineStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle      = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	inputBoxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	userPalette     = []lipgloss.Color{"45", "81", "141", "98", "135", "32"}
)

func (m *Model) View() string {
	me := m.store.Me()
	title := m.roomID
	if room, ok := m.store.Room(m.roomID); ok {
		title = chatsync.RoomTitle(room, me.UserID)
	}

	sections := []string{chatHeaderStyle.Render(title)}
	sections = append(sections, m.renderMessages(me.UserID)...)
	sections = append(sections, m.renderStatus(me.UserID))
	if m.notice != "" {
		sections = append(sections, errorStyle.Render(m.notice))
	}
	sections = append(sections, inputBoxStyle.Render(m.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderMessages(viewerID string) []string {
	groups := chatsync.GroupByDay(m.store.Messages(m.roomID), m.now(), time.Local)
	if len(groups) == 0 {
		return []string{timestampStyle.Render("No messages yet.")}
	}

	var lines []string
	for _, group := range groups {
		lines = append(lines, dayStyle.Render(group.Label))
		for _, msg := range group.Messages {
			lines = append(lines, renderMessage(msg, viewerID))
		}
	}
	return lines
}

func renderMessage(msg models.Message, viewerID string) string {
	stamp := timestampStyle.Render(msg.CreatedAt.Local().Format("15:04"))
	body := bodyStyle.Render(msg.Content)
	if msg.Type != models.MessageText {
		body = bodyStyle.Render(fmt.Sprintf("[%s] %s", msg.Type, msg.Content))
	}

	if chatsync.IsOwnMessage(msg, viewerID) {
		line := fmt.Sprintf("%s %s %s", stamp, ownStyle.Render("You"), body)
		if msg.Read {
			line += " " + readStyle.Render("✓✓")
		}
		return line
	}
	name := chatsync.SenderLabel(msg, viewerID)
	return fmt.Sprintf("%s %s %s", stamp, usernameStyle.Copy().Foreground(colorFor(msg.SenderID)).Render(name), body)
}

func (m *Model) renderStatus(viewerID string) string {
	if err := m.store.ConnectionError(); err != nil {
		return offlineStyle.Render("offline: " + err.Error())
	}
	if !m.store.Connected() {
		return offlineStyle.Render("connecting…")
	}

	room, ok := m.store.Room(m.roomID)
	if !ok {
		return onlineStyle.Render("connected")
	}
	var parts []string
	for _, id := range room.Participants {
		if id == viewerID {
			continue
		}
		name := room.ParticipantName(id)
		if name == "" {
			name = id
		}
		user, known := m.store.Presence(id)
		switch {
		case known && user.Online:
			parts = append(parts, name+" online")
		case known && user.LastSeen != nil:
			parts = append(parts, name+" last seen "+user.LastSeen.Local().Format("Jan 2 15:04"))
		default:
			parts = append(parts, name+" offline")
		}
	}
	return onlineStyle.Render(strings.Join(parts, " • "))
}

func colorFor(userID string) lipgloss.Color {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return userPalette[h.Sum32()%uint32(len(userPalette))]
}
