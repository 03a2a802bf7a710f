package models

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// PpvPurchase unlocks one post for one buyer, permanently once completed. At most one
// completed row per (buyer, post): see db.createConstraints.
type PpvPurchase struct {
	Base
	BuyerID            string         `json:"buyerId" gorm:"type:uuid;index;not null"`
	PostID             string         `json:"postId" gorm:"type:uuid;index;not null"`
	Status             PurchaseStatus `json:"status" gorm:"type:varchar(20);not null"`
	AmountCents        int64          `json:"amountCents" gorm:"not null"`
	Currency           string         `json:"currency" gorm:"type:varchar(3)"`
	ProviderPaymentRef string         `json:"-" gorm:"index"`
}

func (PpvPurchase) TableName() string {
	return "ppv_purchases"
}
