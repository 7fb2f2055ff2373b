package model

import (
	"time"

	"github.com/Gopher0727/GiftList/internal/permission"
)

// Member is a user's membership in one group. There is no owner column: the
// creator is simply the first member and holds the owner base permissions.
type Member struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	GroupID     string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_group_user" json:"-"`
	UserID      string         `gorm:"type:varchar(64);not null;uniqueIndex:idx_group_user;index:idx_member_user" json:"userId"`
	DisplayName string         `gorm:"type:varchar(255)" json:"displayName"`
	Permissions permission.Set `gorm:"serializer:json;type:text;not null" json:"permissions"`

	OldestReadMessage *time.Time `json:"oldestReadMessage,omitempty"`
	JoinedAt          time.Time  `gorm:"not null" json:"joinedAt"`
}

func (Member) TableName() string {
	return "group_members"
}
