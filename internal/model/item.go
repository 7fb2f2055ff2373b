package model

import (
	"slices"
	"time"
)

// ItemKind separates regular list items from secret ones.
type ItemKind string

const (
	ItemRegular ItemKind = "regular"
	ItemSecret  ItemKind = "secret"
)

// Item is a list entry. Variants with boolean selection use Selected; all
// others record the selecting users in SelectedBy.
type Item struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	GroupID    string    `gorm:"type:varchar(64);not null;index:idx_item_group_kind" json:"-"`
	Kind       ItemKind  `gorm:"type:varchar(16);not null;index:idx_item_group_kind" json:"-"`
	AuthorID   string    `gorm:"type:varchar(64);not null;index" json:"authorId"`
	Body       string    `gorm:"type:text;not null" json:"body"`
	Links      []string  `gorm:"serializer:json;type:text" json:"links"`
	SelectedBy []string  `gorm:"serializer:json;type:text" json:"selectedBy"`
	Selected   bool      `gorm:"not null;default:false" json:"selected"`
	CreatedAt  time.Time `gorm:"not null" json:"creationDate"`
	UpdatedAt  time.Time `json:"-"`
}

func (Item) TableName() string {
	return "list_items"
}

// ToggleSelectedBy adds userID to SelectedBy, or removes it when present.
// It returns whether the user is selecting after the call.
func (it *Item) ToggleSelectedBy(userID string) bool {
	if i := slices.Index(it.SelectedBy, userID); i >= 0 {
		it.SelectedBy = slices.Delete(slices.Clone(it.SelectedBy), i, i+1)
		return false
	}
	it.SelectedBy = append(slices.Clone(it.SelectedBy), userID)
	return true
}
