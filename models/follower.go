package models

// Follower is the free social link between a user and a creator. It grants no paid access.
type Follower struct {
	Base
	FollowerID string `json:"followerId" gorm:"type:uuid;uniqueIndex:idx_followers_pair;not null"`
	CreatorID  string `json:"creatorId" gorm:"type:uuid;uniqueIndex:idx_followers_pair;index;not null"`
}

func (Follower) TableName() string {
	return "followers"
}
