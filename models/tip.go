package models

// Tip is a one-off payment to a creator. It grants no access.
type Tip struct {
	Base
	SenderID           string         `json:"senderId" gorm:"type:uuid;index;not null"`
	Sender             *User          `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	CreatorID          string         `json:"creatorId" gorm:"type:uuid;index;not null"`
	PostID             *string        `json:"postId,omitempty" gorm:"type:uuid"`
	AmountCents        int64          `json:"amountCents" gorm:"not null"`
	Currency           string         `json:"currency" gorm:"type:varchar(3)"`
	Message            string         `json:"message" gorm:"type:text"`
	Status             PurchaseStatus `json:"status" gorm:"type:varchar(20);not null"`
	ProviderPaymentRef string         `json:"-" gorm:"index"`
}

func (Tip) TableName() string {
	return "tips"
}

type TipCreate struct {
	Amount  string  `json:"amount" binding:"required" example:"10.00"`
	Message string  `json:"message" binding:"max=500"`
	PostID  *string `json:"postId" binding:"omitempty,uuid"`
}
