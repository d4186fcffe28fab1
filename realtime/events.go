package realtime

import (
	"encoding/json"
	"time"

	"teamcollab/apperror"
	"teamcollab/models"
)

// Client to server.
const (
	EventJoinTeamRoom = "joinTeamRoom"
	EventLeaveRoom    = "leaveRoom"
	EventSendMessage  = "sendMessage"
)

// Server to client.
const (
	EventReceiveMessage = "receiveMessage"
	EventJoinedRoom     = "joinedRoom"
	EventLeftRoom       = "leftRoom"
	EventMessageError   = "messageError"
	EventError          = "error"
)

// Envelope is the JSON text frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinPayload struct {
	TeamID  uint `json:"teamId"`
	SinceID uint `json:"sinceId"`
}

type LeavePayload struct {
	TeamID uint `json:"teamId"`
}

type SendPayload struct {
	TeamID      uint   `json:"teamId"`
	SenderID    uint   `json:"senderId"`
	Content     string `json:"content"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// MessagePayload is a persisted message as broadcast to a room.
type MessagePayload struct {
	ID        uint                `json:"_id"`
	TeamID    uint                `json:"teamId"`
	Content   string              `json:"content"`
	SenderID  uint                `json:"senderId"`
	Sender    *models.UserSummary `json:"sender,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

func NewMessagePayload(m *models.Message) MessagePayload {
	p := MessagePayload{
		ID:        m.ID,
		TeamID:    m.TeamID,
		Content:   m.Content,
		SenderID:  m.SenderID,
		Timestamp: m.Timestamp,
	}
	if m.Sender != nil {
		s := m.Sender.Summary()
		s.Role = ""
		p.Sender = &s
	}
	return p
}

type JoinedPayload struct {
	TeamID  uint             `json:"teamId"`
	Backlog []MessagePayload `json:"backlog"`
}

// ErrorPayload reports a rejected frame. ClientMsgID echoes the id the
// client attached to a failed sendMessage.
type ErrorPayload struct {
	ClientMsgID string `json:"clientMsgId,omitempty"`
	TeamID      uint   `json:"teamId,omitempty"`
	apperror.Body
}

// Encode renders an outgoing frame.
func Encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
