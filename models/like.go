package models

type PostLike struct {
	Base
	PostID string `json:"postId" gorm:"type:uuid;uniqueIndex:idx_post_likes_pair;not null"`
	UserID string `json:"userId" gorm:"type:uuid;uniqueIndex:idx_post_likes_pair;not null"`
}

func (PostLike) TableName() string {
	return "post_likes"
}

type CommentLike struct {
	Base
	CommentID string `json:"commentId" gorm:"type:uuid;uniqueIndex:idx_comment_likes_pair;not null"`
	UserID    string `json:"userId" gorm:"type:uuid;uniqueIndex:idx_comment_likes_pair;not null"`
}

func (CommentLike) TableName() string {
	return "comment_likes"
}
