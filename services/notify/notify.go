// Package notify stores user notifications. Sending is best effort: a failure is logged and
// never fails the action that triggered it.
package notify

import (
	"context"
	"fmt"
	"time"

	"nudfans-backend/apperrors"
	"nudfans-backend/models"
	"nudfans-backend/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Notifier struct {
	db *gorm.DB
}

func New(database *gorm.DB) *Notifier {
	return &Notifier{db: database}
}

// Send stores a notification for userID.
func (n *Notifier) Send(ctx context.Context, userID string, typ models.NotificationType, message string, data map[string]interface{}) {
	if userID == "" {
		return
	}
	notif := &models.Notification{
		UserID:  userID,
		Type:    typ,
		Message: message,
		Data:    data,
	}
	if err := n.db.WithContext(ctx).Create(notif).Error; err != nil {
		utils.LogEvent(logrus.WarnLevel, logrus.Fields{
			"user_id": userID,
			"type":    typ,
			"error":   err.Error(),
		}, "could not store notification")
	}
}

// SendToCreator resolves the user behind a creator profile and notifies them.
func (n *Notifier) SendToCreator(ctx context.Context, creatorID string, typ models.NotificationType, message string, data map[string]interface{}) {
	var userIDs []string
	err := n.db.WithContext(ctx).Model(&models.CreatorProfile{}).
		Where("id = ?", creatorID).Limit(1).Pluck("user_id", &userIDs).Error
	if err != nil || len(userIDs) == 0 {
		utils.LogWarn("notification target creator not found", logrus.Fields{"creator_id": creatorID, "type": typ})
		return
	}
	n.Send(ctx, userIDs[0], typ, message, data)
}

// List returns the user's notifications newest first, plus the unread count.
func (n *Notifier) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := n.db.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var items []models.Notification
	if err := q.Order("created_at DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("listing notifications: %w", err)
	}

	var unread int64
	if err := n.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Count(&unread).Error; err != nil {
		return nil, 0, fmt.Errorf("counting notifications: %w", err)
	}
	return items, unread, nil
}

func (n *Notifier) MarkRead(ctx context.Context, userID, id string) error {
	res := n.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read_at", time.Now())
	if res.Error != nil {
		return fmt.Errorf("marking notification: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("notification")
	}
	return nil
}

func (n *Notifier) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res := n.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if res.Error != nil {
		return 0, fmt.Errorf("marking notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}
