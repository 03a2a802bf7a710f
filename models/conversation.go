package models

import (
	"time"
)

// Conversation is the fan <-> creator direct message thread.
type Conversation struct {
	Base
	FanID         string          `json:"fanId" gorm:"type:uuid;uniqueIndex:idx_conversations_pair;not null"`
	Fan           *User           `json:"fan,omitempty" gorm:"foreignKey:FanID"`
	CreatorID     string          `json:"creatorId" gorm:"type:uuid;uniqueIndex:idx_conversations_pair;index;not null"`
	Creator       *CreatorProfile `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

type Message struct {
	Base
	ConversationID string     `json:"conversationId" gorm:"type:uuid;index;not null"`
	SenderID       string     `json:"senderId" gorm:"type:uuid;not null"`
	Content        string     `json:"content" gorm:"type:text;not null"`
	IsAIGenerated  bool       `json:"isAiGenerated" gorm:"default:false"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}

type ConversationCreate struct {
	CreatorID string `json:"creatorId" binding:"required,uuid"`
}

type MessageCreate struct {
	Content string `json:"content" binding:"required,max=4000"`
}
