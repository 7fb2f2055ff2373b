package model

import (
	"time"
)

// MessageKind discriminates user-authored chat messages from system notices.
type MessageKind string

const (
	MessageUser   MessageKind = "user"
	MessageSystem MessageKind = "system"
)

// SystemEvent names the lifecycle event a system message announces.
type SystemEvent string

const (
	EventGroupCreated  SystemEvent = "group_created"
	EventGroupRenamed  SystemEvent = "group_renamed"
	EventMemberJoined  SystemEvent = "member_joined"
	EventMemberLeft    SystemEvent = "member_left"
	EventMemberRemoved SystemEvent = "member_removed"
)

// Message 消息模型
type Message struct {
	ID      int64       `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	GroupID string      `gorm:"index;not null;type:varchar(64)" json:"groupId"`
	Kind    MessageKind `gorm:"type:varchar(16);not null" json:"kind"`
	Body    string      `gorm:"type:text;not null" json:"body"`

	// Set only for user messages.
	AuthorID   string `gorm:"type:varchar(64);index" json:"authorId,omitempty"`
	AuthorName string `gorm:"type:varchar(255)" json:"authorName,omitempty"`

	// Set only for system messages.
	Event SystemEvent `gorm:"type:varchar(32)" json:"event,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"creationDate"`
}

func (Message) TableName() string {
	return "messages"
}

// IsSystem reports whether the message has no author.
func (m *Message) IsSystem() bool {
	return m.Kind == MessageSystem
}
