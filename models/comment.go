package models

type Comment struct {
	Base
	PostID     string `json:"postId" gorm:"type:uuid;index;not null"`
	UserID     string `json:"userId" gorm:"type:uuid;index;not null"`
	User       *User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Content    string `json:"content" gorm:"type:text;not null"`
	LikesCount int64  `json:"likesCount" gorm:"default:0"`
}

func (Comment) TableName() string {
	return "comments"
}

type CommentCreate struct {
	Content string `json:"content" binding:"required,max=2000"`
}
