package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace-service/internal/models"
)

func TestGroupByDaySortsByTimestamp(t *testing.T) {
	loc := time.UTC
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, loc)

	arrival := []models.Message{
		textMessage("late", "r1", "a", now.Add(-time.Minute)),
		textMessage("early", "r1", "b", now.Add(-2*time.Hour)),
		textMessage("yesterday", "r1", "a", now.AddDate(0, 0, -1)),
		textMessage("old", "r1", "b", time.Date(2024, 5, 1, 9, 0, 0, 0, loc)),
	}

	groups := GroupByDay(arrival, now, loc)
	require.Len(t, groups, 3)

	assert.Equal(t, "May 1, 2024", groups[0].Label)
	assert.Equal(t, "Yesterday", groups[1].Label)
	assert.Equal(t, "Today", groups[2].Label)

	require.Len(t, groups[2].Messages, 2)
	assert.Equal(t, "early", groups[2].Messages[0].ID)
	assert.Equal(t, "late", groups[2].Messages[1].ID)
}

func TestGroupByDayUsesLocation(t *testing.T) {
	tz := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, tz)
	// 22:30 UTC on the 9th is already the 10th at UTC+3.
	msg := textMessage("m1", "r1", "a", time.Date(2024, 5, 9, 22, 30, 0, 0, time.UTC))

	groups := GroupByDay([]models.Message{msg}, now, tz)
	require.Len(t, groups, 1)
	assert.Equal(t, "Today", groups[0].Label)
}

func TestGroupByDayEmpty(t *testing.T) {
	assert.Empty(t, GroupByDay(nil, time.Now(), nil))
}

func TestRoomTitle(t *testing.T) {
	room := models.Room{
		ID:               "r1",
		Participants:     []string{"a", "b", "c"},
		ParticipantNames: []string{"Ann", "Ben", ""},
	}
	assert.Equal(t, "Ben, c", RoomTitle(room, "a"))

	room.Name = "Launch"
	assert.Equal(t, "Launch", RoomTitle(room, "a"))

	assert.Equal(t, "Untitled room", RoomTitle(models.Room{ID: "r2", Participants: []string{"a"}}, "a"))
}

func TestSenderLabel(t *testing.T) {
	msg := models.Message{SenderID: "a", SenderName: "Ann"}
	assert.Empty(t, SenderLabel(msg, "a"))
	assert.Equal(t, "Ann", SenderLabel(msg, "b"))

	msg.SenderName = ""
	assert.Equal(t, "a", SenderLabel(msg, "b"))
}

func TestSignatureBadge(t *testing.T) {
	contract := models.Contract{ID: "c1"}
	assert.Equal(t, "0/2", SignatureBadge(contract))

	contract.Signatures = []models.Signature{{Role: models.SignerClient}, {Role: models.SignerFreelancer}}
	assert.Equal(t, "2/2", SignatureBadge(contract))
}
