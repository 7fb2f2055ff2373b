package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/Gopher0727/GiftList/internal/permission"
)

// ErrMalformedGroup marks a stored group whose fields contradict its variant.
var ErrMalformedGroup = errors.New("malformed group")

// Group is one row of the groups table. The Variant column is the discriminator;
// the remaining columns are only meaningful for the variants that use them.
type Group struct {
	ID            string             `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Variant       permission.Variant `gorm:"type:varchar(32);not null;index" json:"groupVariant"`
	Name          string             `gorm:"type:varchar(255);not null" json:"groupName"`
	ParentGroupID *string            `gorm:"type:varchar(64);index" json:"parentGroupId,omitempty"`

	MaxListItems           int `gorm:"not null;default:0" json:"maxListItems,omitempty"`
	MaxSecretListItemsEach int `gorm:"not null;default:0" json:"maxSecretListItemsEach,omitempty"`

	Members []Member `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members"`
	Items   []Item   `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"creationDate"`
	UpdatedAt time.Time `json:"-"`
}

func (Group) TableName() string {
	return "groups"
}

// Profile returns the registry profile of the group's variant.
func (g *Group) Profile() (permission.Profile, error) {
	p, ok := permission.Lookup(g.Variant)
	if !ok {
		return permission.Profile{}, fmt.Errorf("%w: group %s has variant %q", permission.ErrUnknownVariant, g.ID, g.Variant)
	}
	return p, nil
}

// Member returns the member entry for userID.
func (g *Group) Member(userID string) (*Member, bool) {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// HasMember reports whether userID is in the member list.
func (g *Group) HasMember(userID string) bool {
	_, ok := g.Member(userID)
	return ok
}

// MemberIDs returns the user ids in member order.
func (g *Group) MemberIDs() []string {
	ids := make([]string, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.UserID
	}
	return ids
}

// ItemsOf returns the items of the given kind in creation order.
func (g *Group) ItemsOf(kind ItemKind) []Item {
	var out []Item
	for _, it := range g.Items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

// Item finds an item by id and kind.
func (g *Group) Item(id string, kind ItemKind) (*Item, bool) {
	for i := range g.Items {
		if g.Items[i].ID == id && g.Items[i].Kind == kind {
			return &g.Items[i], true
		}
	}
	return nil, false
}

// CheckShape verifies the variant shape rules of a loaded group: a parent id is
// present iff the variant is a child, and parents carry no items.
func (g *Group) CheckShape() error {
	p, err := g.Profile()
	if err != nil {
		return err
	}
	switch p.Category {
	case permission.CategoryChild:
		if g.ParentGroupID == nil || *g.ParentGroupID == "" {
			return fmt.Errorf("%w: child group %s has no parent", ErrMalformedGroup, g.ID)
		}
	case permission.CategorySingular, permission.CategoryParent:
		if g.ParentGroupID != nil {
			return fmt.Errorf("%w: %s group %s has a parent", ErrMalformedGroup, p.Category, g.ID)
		}
	default:
		return fmt.Errorf("%w: group %s has category %s", ErrMalformedGroup, g.ID, p.Category)
	}
	if !p.RegularItems && len(g.ItemsOf(ItemRegular)) > 0 {
		return fmt.Errorf("%w: %s group %s holds list items", ErrMalformedGroup, g.Variant, g.ID)
	}
	if !p.SecretItems && len(g.ItemsOf(ItemSecret)) > 0 {
		return fmt.Errorf("%w: %s group %s holds secret items", ErrMalformedGroup, g.Variant, g.ID)
	}
	return nil
}
