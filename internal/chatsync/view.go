package chatsync

import (
	"sort"
	"strings"
	"time"

	"marketplace-service/internal/models"
)

const dayLabelLayout = "January 2, 2006"

// DayGroup is the messages of one calendar day, oldest first.
type DayGroup struct {
	Label    string
	Day      time.Time
	Messages []models.Message
}

// GroupByDay sorts msgs by creation time and groups them by calendar day in
// loc. Days are labelled relative to now.
func GroupByDay(msgs []models.Message, now time.Time, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}
	sorted := append([]models.Message(nil), msgs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	today := startOfDay(now, loc)
	var groups []DayGroup
	for _, msg := range sorted {
		day := startOfDay(msg.CreatedAt, loc)
		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, DayGroup{Label: dayLabel(day, today), Day: day})
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, msg)
	}
	return groups
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func dayLabel(day, today time.Time) string {
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	default:
		return day.Format(dayLabelLayout)
	}
}

// RoomTitle is the room's name, or the names of the other participants when
// the room is unnamed.
func RoomTitle(room models.Room, viewerID string) string {
	if name := strings.TrimSpace(room.Name); name != "" {
		return name
	}
	var others []string
	for _, id := range room.Participants {
		if id == viewerID {
			continue
		}
		if name := room.ParticipantName(id); name != "" {
			others = append(others, name)
		} else {
			others = append(others, id)
		}
	}
	if len(others) == 0 {
		return "Untitled room"
	}
	return strings.Join(others, ", ")
}

// IsOwnMessage reports whether viewerID sent msg.
func IsOwnMessage(msg models.Message, viewerID string) bool {
	return msg.SenderID == viewerID
}

// SenderLabel is the sender name shown above a message. Own messages are not labelled.
func SenderLabel(msg models.Message, viewerID string) string {
	if IsOwnMessage(msg, viewerID) {
		return ""
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}

// SignatureBadge renders a contract's signing progress, e.g. "1/2".
func SignatureBadge(contract models.Contract) string {
	return contract.SignatureProgress()
}
