package models

import (
	"gorm.io/gorm"
)

type PostType string

const (
	PostFree         PostType = "free"
	PostSubscription PostType = "subscription"
	PostPPV          PostType = "ppv"
)

func (t PostType) Valid() bool {
	switch t {
	case PostFree, PostSubscription, PostPPV:
		return true
	}
	return false
}

// Post belongs to a creator profile. The counters are display caches updated by the
// like/comment/view handlers.
type Post struct {
	Base
	CreatorID     string          `json:"creatorId" gorm:"type:uuid;index;not null"`
	Creator       *CreatorProfile `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	Content       string          `json:"content" gorm:"type:text"`
	PostType      PostType        `json:"postType" gorm:"type:varchar(20);not null;default:'free'"`
	PpvPriceCents int64           `json:"ppvPriceCents" gorm:"default:0"`
	LikesCount    int64           `json:"likesCount" gorm:"default:0"`
	CommentsCount int64           `json:"commentsCount" gorm:"default:0"`
	ViewsCount    int64           `json:"viewsCount" gorm:"default:0"`
	Enable        bool            `json:"enable" gorm:"default:true"`
	Media         []PostMedia     `json:"media,omitempty" gorm:"foreignKey:PostID"`
	DeletedAt     gorm.DeletedAt  `json:"-" gorm:"index"`
}

func (Post) TableName() string {
	return "posts"
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// PostMedia keeps FileKey as the durable storage handle; URL can be regenerated from it.
type PostMedia struct {
	Base
	PostID   string    `json:"postId" gorm:"type:uuid;index;not null"`
	Type     MediaType `json:"type" gorm:"type:varchar(10);not null"`
	URL      string    `json:"url"`
	FileKey  string    `json:"fileKey" gorm:"not null"`
	Position int       `json:"position"`
}

func (PostMedia) TableName() string {
	return "post_media"
}

type PostCreate struct {
	Content  string   `json:"content" form:"content" binding:"max=5000"`
	PostType PostType `json:"postType" form:"postType" binding:"required,oneof=free subscription ppv"`
	PpvPrice string   `json:"ppvPrice" form:"ppvPrice" example:"9.99"`
}

type PostUpdate struct {
	Content  *string   `json:"content" binding:"omitempty,max=5000"`
	PostType *PostType `json:"postType" binding:"omitempty,oneof=free subscription ppv"`
	PpvPrice *string   `json:"ppvPrice"`
	Enable   *bool     `json:"enable"`
}
