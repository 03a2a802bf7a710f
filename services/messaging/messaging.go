// Package messaging holds the fan to creator direct messages. When a creator enables the AI
// chat, fan messages are answered by the persona agent in the creator's name.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/db"
	"nudfans-backend/models"
	"nudfans-backend/services/access"
	"nudfans-backend/services/notify"
	"nudfans-backend/services/persona"
	"nudfans-backend/utils"

	"gorm.io/gorm"
)

const (
	maxMessageLength = 4000
	historyWindow    = 40
)

type Service struct {
	db       *gorm.DB
	agent    *persona.Agent
	persona  persona.Persona
	notifier *notify.Notifier
	now      func() time.Time
}

func New(database *gorm.DB, agent *persona.Agent, p persona.Persona, notifier *notify.Notifier) *Service {
	return &Service{db: database, agent: agent, persona: p, notifier: notifier, now: time.Now}
}

// Start returns the conversation between the fan and the creator, creating it when needed.
func (s *Service) Start(ctx context.Context, viewer *access.Viewer, creatorID string) (*models.Conversation, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	if viewer.CreatorID == creatorID {
		return nil, apperrors.Invalid("you cannot message yourself")
	}
	var creator models.CreatorProfile
	if err := s.db.WithContext(ctx).First(&creator, "id = ?", creatorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("creator")
		}
		return nil, apperrors.Internal(fmt.Errorf("loading creator: %w", err))
	}

	conv, err := s.find(ctx, viewer.UserID, creatorID)
	if err != nil || conv != nil {
		return conv, err
	}
	conv = &models.Conversation{FanID: viewer.UserID, CreatorID: creatorID}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return s.find(ctx, viewer.UserID, creatorID)
		}
		return nil, apperrors.Internal(fmt.Errorf("creating conversation: %w", err))
	}
	utils.LogSuccessWithUser(viewer.UserID, "conversation started: "+conv.ID)
	return conv, nil
}

func (s *Service) find(ctx context.Context, fanID, creatorID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).Where("fan_id = ? AND creator_id = ?", fanID, creatorID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("loading conversation: %w", err))
	}
	return &conv, nil
}

// List returns the viewer's conversations as a fan and, for creators, as the creator.
func (s *Service) List(ctx context.Context, viewer *access.Viewer) ([]models.Conversation, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	q := s.db.WithContext(ctx).Preload("Fan").Preload("Creator").Preload("Creator.User")
	if viewer.CreatorID != "" {
		q = q.Where("fan_id = ? OR creator_id = ?", viewer.UserID, viewer.CreatorID)
	} else {
		q = q.Where("fan_id = ?", viewer.UserID)
	}
	var convs []models.Conversation
	if err := q.Order("last_message_at DESC").Order("created_at DESC").Find(&convs).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("listing conversations: %w", err))
	}
	return convs, nil
}

// participant loads the conversation and checks the viewer takes part in it.
func (s *Service) participant(ctx context.Context, viewer *access.Viewer, conversationID string) (*models.Conversation, error) {
	if viewer == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	var conv models.Conversation
	if err := s.db.WithContext(ctx).Preload("Creator").Preload("Creator.User").
		First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("conversation")
		}
		return nil, apperrors.Internal(fmt.Errorf("loading conversation: %w", err))
	}
	if conv.FanID != viewer.UserID && (viewer.CreatorID == "" || conv.CreatorID != viewer.CreatorID) {
		return nil, apperrors.ErrForbidden
	}
	return &conv, nil
}

// Messages returns the thread oldest first and marks the other side's messages as read.
func (s *Service) Messages(ctx context.Context, viewer *access.Viewer, conversationID string, limit int) ([]models.Message, error) {
	conv, err := s.participant(ctx, viewer, conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var msgs []models.Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conv.ID).
		Order("created_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, apperrors.Internal(fmt.Errorf("listing messages: %w", err))
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND read_at IS NULL", conv.ID, viewer.UserID).
		Update("read_at", now).Error; err != nil {
		utils.LogErrorWithUser(viewer.UserID, err, "could not mark messages read")
	}
	return msgs, nil
}

// Send stores the viewer's message. A fan writing to a creator with AI chat enabled gets a
// generated reply, returned after the sent message.
func (s *Service) Send(ctx context.Context, viewer *access.Viewer, conversationID, content string) ([]models.Message, error) {
	conv, err := s.participant(ctx, viewer, conversationID)
	if err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Invalid("message is empty")
	}
	if len(content) > maxMessageLength {
		return nil, apperrors.Invalid(fmt.Sprintf("message exceeds %d characters", maxMessageLength))
	}

	msg, err := s.store(ctx, conv, viewer.UserID, content, false)
	if err != nil {
		return nil, err
	}
	sent := []models.Message{*msg}

	fromFan := conv.FanID == viewer.UserID
	creatorUserID := ""
	if conv.Creator != nil {
		creatorUserID = conv.Creator.UserID
	}
	if !fromFan {
		s.notifier.Send(ctx, conv.FanID, models.NotificationMessage, "you have a new message",
			map[string]interface{}{"conversationId": conv.ID})
		return sent, nil
	}
	s.notifier.Send(ctx, creatorUserID, models.NotificationMessage, "you have a new message",
		map[string]interface{}{"conversationId": conv.ID})

	if conv.Creator == nil || !conv.Creator.AIChatEnabled || s.agent == nil {
		return sent, nil
	}
	reply, err := s.aiReply(ctx, conv, msg)
	if err != nil {
		utils.LogErrorWithUser(viewer.UserID, err, "could not store AI reply")
		return sent, nil
	}
	return append(sent, *reply), nil
}

func (s *Service) store(ctx context.Context, conv *models.Conversation, senderID, content string, generated bool) (*models.Message, error) {
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		IsAIGenerated:  generated,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Update("last_message_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("storing message: %w", err))
	}
	return msg, nil
}

// aiReply replays the recent thread to the agent, fan messages as user turns and the
// creator's as assistant turns.
func (s *Service) aiReply(ctx context.Context, conv *models.Conversation, incoming *models.Message) (*models.Message, error) {
	var recent []models.Message
	if err := s.db.WithContext(ctx).Where("conversation_id = ? AND id <> ?", conv.ID, incoming.ID).
		Order("created_at DESC").Limit(historyWindow).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	history := make([]persona.Turn, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		role := persona.RoleAssistant
		if recent[i].SenderID == conv.FanID {
			role = persona.RoleUser
		}
		history = append(history, persona.Turn{Role: role, Content: recent[i].Content})
	}

	username, displayName := "", ""
	if conv.Creator.User != nil {
		username, displayName = conv.Creator.User.UserName, conv.Creator.User.DisplayName
	}
	text, _ := s.agent.Reply(ctx, s.persona.For(username, displayName), history, incoming.Content)
	return s.store(ctx, conv, conv.Creator.UserID, text, true)
}
