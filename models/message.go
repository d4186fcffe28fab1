package models

import "time"

// MaxMessageLength bounds the trimmed content of a chat message.
const MaxMessageLength = 2000

// Message is an immutable chat line posted to a team room.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	SenderID  uint      `gorm:"not null;index" json:"senderId"`
	TeamID    uint      `gorm:"not null;index:idx_messages_team_time" json:"teamId"`
	Timestamp time.Time `gorm:"not null;index:idx_messages_team_time" json:"timestamp"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}
