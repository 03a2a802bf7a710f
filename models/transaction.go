package models

import (
	"gorm.io/datatypes"
)

type TransactionType string

const (
	TransactionSubscription TransactionType = "subscription"
	TransactionRenewal      TransactionType = "subscription_renewal"
	TransactionPPV          TransactionType = "ppv"
	TransactionTip          TransactionType = "tip"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionRefunded  TransactionStatus = "refunded"
)

// Transaction is one ledger row per money movement. AmountCents equals
// PlatformFeeCents + CreatorEarningsCents. ProviderPaymentRef is unique and is the
// idempotency key for webhook redelivery.
type Transaction struct {
	Base
	CreatorID            string            `json:"creatorId" gorm:"type:uuid;index;not null"`
	UserID               string            `json:"userId" gorm:"type:uuid;index;not null"`
	Type                 TransactionType   `json:"type" gorm:"type:varchar(30);not null"`
	Status               TransactionStatus `json:"status" gorm:"type:varchar(20);not null"`
	AmountCents          int64             `json:"amountCents" gorm:"not null"`
	PlatformFeeCents     int64             `json:"platformFeeCents" gorm:"not null"`
	CreatorEarningsCents int64             `json:"creatorEarningsCents" gorm:"not null"`
	Currency             string            `json:"currency" gorm:"type:varchar(3)"`
	ProviderPaymentRef   string            `json:"providerPaymentRef" gorm:"uniqueIndex;not null"`
	SubscriptionID       *string           `json:"subscriptionId,omitempty" gorm:"type:uuid"`
	PostID               *string           `json:"postId,omitempty" gorm:"type:uuid"`
	TipID                *string           `json:"tipId,omitempty" gorm:"type:uuid"`
	Metadata             datatypes.JSONMap `json:"metadata,omitempty"`
}

func (Transaction) TableName() string {
	return "transactions"
}
