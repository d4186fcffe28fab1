package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"teamcollab/apperror"
	"teamcollab/models"
)

type MessageService struct {
	db    *gorm.DB
	teams *TeamService
}

func NewMessageService(db *gorm.DB, teams *TeamService) *MessageService {
	return &MessageService{db: db, teams: teams}
}

// History returns the messages of teamID with an id greater than afterID in
// persistence order. Callers outside the roster get NOT_FOUND.
func (s *MessageService) History(ctx context.Context, user *models.User, teamID, afterID uint) ([]models.Message, error) {
	ok, err := s.teams.IsMember(ctx, teamID, user.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.NotFound("team")
	}
	return s.ListSince(ctx, teamID, afterID)
}

// ListSince is History without the membership check; the relay uses it for
// the join backlog after authorizing the connection itself.
func (s *MessageService) ListSince(ctx context.Context, teamID, afterID uint) ([]models.Message, error) {
	messages := []models.Message{}
	q := s.db.WithContext(ctx).Preload("Sender").Where("team_id = ?", teamID)
	if afterID > 0 {
		q = q.Where("id > ?", afterID)
	}
	if err := q.Order("timestamp ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, apperror.Internal("Failed to fetch messages", err)
	}
	return messages, nil
}

// Create persists a chat line. Content is trimmed and must be non-empty and
// at most models.MaxMessageLength characters.
func (s *MessageService) Create(ctx context.Context, teamID, senderID uint, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.BadRequest(apperror.CodeValidation, "content is required")
	}
	if utf8.RuneCountInString(content) > models.MaxMessageLength {
		return nil, apperror.BadRequest(apperror.CodeValidation,
			fmt.Sprintf("content must be at most %d characters", models.MaxMessageLength))
	}

	msg := models.Message{
		Content:   content,
		SenderID:  senderID,
		TeamID:    teamID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, apperror.Internal("Failed to save message", err)
	}

	var saved models.Message
	if err := s.db.WithContext(ctx).Preload("Sender").First(&saved, msg.ID).Error; err != nil {
		return nil, ambiguous("message", err)
	}
	return &saved, nil
}
