package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationNewFollower   NotificationType = "new_follower"
	NotificationNewSubscriber NotificationType = "new_subscriber"
	NotificationPPVSale       NotificationType = "ppv_sale"
	NotificationTip           NotificationType = "tip"
	NotificationLargeTip      NotificationType = "large_tip"
	NotificationComment       NotificationType = "comment"
	NotificationLike          NotificationType = "like"
	NotificationMessage       NotificationType = "message"
)

// Notification is a fire-and-forget side effect, never authoritative state.
type Notification struct {
	Base
	UserID  string            `json:"userId" gorm:"type:uuid;index;not null"`
	Type    NotificationType  `json:"type" gorm:"type:varchar(30);not null"`
	Message string            `json:"message"`
	Data    datatypes.JSONMap `json:"data,omitempty"`
	ReadAt  *time.Time        `json:"readAt,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
