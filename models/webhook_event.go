package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent records every provider event that reached the reconciler. The unique
// ProviderEventID is the first idempotency guard against redelivery.
type WebhookEvent struct {
	Base
	Provider        string         `json:"provider" gorm:"type:varchar(20);not null"`
	ProviderEventID string         `json:"providerEventId" gorm:"uniqueIndex;not null"`
	EventType       string         `json:"eventType" gorm:"type:varchar(100);index;not null"`
	Payload         datatypes.JSON `json:"payload"`
	ProcessedAt     *time.Time     `json:"processedAt,omitempty"`
	ProcessingError string         `json:"processingError,omitempty" gorm:"type:text"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
