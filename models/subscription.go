package models

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

// Subscription is the recurring paid entitlement. At most one row per (subscriber, creator)
// may be active: see db.createConstraints for the partial unique index.
// PriceAtPurchaseCents is locked when the subscription is created.
type Subscription struct {
	Base
	SubscriberID           string             `json:"subscriberId" gorm:"type:uuid;index;not null"`
	CreatorID              string             `json:"creatorId" gorm:"type:uuid;index;not null"`
	Creator                *CreatorProfile    `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	Status                 SubscriptionStatus `json:"status" gorm:"type:varchar(20);not null"`
	ProviderSubscriptionId string             `json:"-" gorm:"index"`
	CurrentPeriodStart     time.Time          `json:"currentPeriodStart"`
	CurrentPeriodEnd       time.Time          `json:"currentPeriodEnd"`
	PriceAtPurchaseCents   int64              `json:"priceAtPurchaseCents" gorm:"not null"`
	Currency               string             `json:"currency" gorm:"type:varchar(3)"`
	CanceledAt             *time.Time         `json:"canceledAt,omitempty"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Entitling reports whether the status may still grant access. past_due keeps access until
// the period end; the period end itself is checked by the access evaluator.
func (s SubscriptionStatus) Entitling() bool {
	return s == SubscriptionActive || s == SubscriptionPastDue
}

// DirectSubscribeRequest charges a card saved on the provider instead of opening a checkout.
type DirectSubscribeRequest struct {
	CreatorID       string `json:"creatorId" binding:"required,uuid"`
	PaymentMethodID string `json:"paymentMethodId" binding:"required" example:"pm_card_visa"`
}
