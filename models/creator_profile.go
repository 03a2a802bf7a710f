package models

// CreatorProfile is 1:1 with a creator-type user. TotalEarningsCents is a cache of the sum of
// creator earnings over completed transactions; the ledger is the source of truth.
type CreatorProfile struct {
	Base
	UserID                 string `json:"userId" gorm:"type:uuid;uniqueIndex;not null"`
	User                   *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Headline               string `json:"headline"`
	CoverPicture           string `json:"coverPicture"`
	SubscriptionPriceCents int64  `json:"subscriptionPriceCents" gorm:"not null"`
	TotalEarningsCents     int64  `json:"totalEarningsCents" gorm:"not null;default:0"`
	IsVerified             bool   `json:"isVerified" gorm:"default:false"`
	IsOnline               bool   `json:"isOnline" gorm:"default:false"`
	AIChatEnabled          bool   `json:"aiChatEnabled" gorm:"default:false"`
	StripeProductId        string `json:"-"`
}

func (CreatorProfile) TableName() string {
	return "creator_profiles"
}

// CreatorProfileCreate is the payload to turn a fan account into a creator.
type CreatorProfileCreate struct {
	Headline          string `json:"headline" binding:"max=160"`
	SubscriptionPrice string `json:"subscriptionPrice" binding:"required" example:"19.99"`
	AIChatEnabled     bool   `json:"aiChatEnabled"`
}

// CreatorProfileUpdate only touches the fields that are set.
type CreatorProfileUpdate struct {
	Headline          *string `json:"headline" binding:"omitempty,max=160"`
	SubscriptionPrice *string `json:"subscriptionPrice" example:"29.99"`
	AIChatEnabled     *bool   `json:"aiChatEnabled"`
	IsOnline          *bool   `json:"isOnline"`
}
