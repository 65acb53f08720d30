package model

import (
	"time"
)

type MessageKind string

const (
	MessageKindText         MessageKind = "text"
	MessageKindSystem       MessageKind = "system"
	MessageKindAnnouncement MessageKind = "announcement"
)

// Message 消息模型
// Only announcements are written by this service; other rows are produced by
// the delivery pipeline and read here for analytics.
type Message struct {
	ID       string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	GroupID  string      `gorm:"index;not null;type:varchar(64)" json:"group_id"`
	SenderID string      `gorm:"not null;type:varchar(64)" json:"sender_id"`
	Kind     MessageKind `gorm:"not null;type:varchar(16)" json:"kind"`
	Content  string      `gorm:"type:text;not null" json:"content"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
