package censor

import (
	"slices"
	"time"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
)

// ItemView is the displayable form of a list item. Selection fields are
// pointers so that a redacted field disappears from the encoded output instead
// of showing up empty.
type ItemView struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"authorId"`
	CreationDate time.Time `json:"creationDate"`
	Body         string    `json:"body"`
	Links        []string  `json:"links"`
	SelectedBy   *[]string `json:"selectedBy,omitempty"`
	Selected     *bool     `json:"selected,omitempty"`
}

// MemberView is the displayable form of a member.
type MemberView struct {
	UserID            string         `json:"userId"`
	DisplayName       string         `json:"displayName"`
	Permissions       permission.Set `json:"permissions"`
	OldestReadMessage *time.Time     `json:"oldestReadMessage,omitempty"`
}

// GroupView is the displayable form of a group. Collections a variant does not
// have, or a viewer may not see, are nil and therefore absent when encoded.
type GroupView struct {
	ID            string             `json:"id"`
	Variant       permission.Variant `json:"groupVariant"`
	Name          string             `json:"groupName"`
	CreationDate  time.Time          `json:"creationDate"`
	ParentGroupID *string            `json:"parentGroupId,omitempty"`
	Members       []MemberView       `json:"members"`

	MaxListItems           *int        `json:"maxListItems,omitempty"`
	ListItems              *[]ItemView `json:"listItems,omitempty"`
	MaxSecretListItemsEach *int        `json:"maxSecretListItemsEach,omitempty"`
	SecretListItems        *[]ItemView `json:"secretListItems,omitempty"`

	Children []*GroupView `json:"children,omitempty"`
}

// MemberPermissions returns the permissions userID holds in the viewed group.
func (v *GroupView) MemberPermissions(userID string) (permission.Set, bool) {
	for _, m := range v.Members {
		if m.UserID == userID {
			return m.Permissions, true
		}
	}
	return nil, false
}

// FromModel builds the unredacted view of g. Only the fields the variant owns
// are populated.
func FromModel(g *model.Group) (*GroupView, error) {
	p, ok := permission.Lookup(g.Variant)
	if !ok {
		return nil, unsupported(g.Variant)
	}

	v := &GroupView{
		ID:           g.ID,
		Variant:      g.Variant,
		Name:         g.Name,
		CreationDate: g.CreatedAt,
		Members:      make([]MemberView, len(g.Members)),
	}
	if g.ParentGroupID != nil {
		parent := *g.ParentGroupID
		v.ParentGroupID = &parent
	}
	for i, m := range g.Members {
		v.Members[i] = MemberView{
			UserID:            m.UserID,
			DisplayName:       m.DisplayName,
			Permissions:       m.Permissions.Clone(),
			OldestReadMessage: copyTime(m.OldestReadMessage),
		}
	}

	if p.RegularItems {
		maxItems := g.MaxListItems
		items := itemViews(g.ItemsOf(model.ItemRegular), p.BoolSelection)
		v.MaxListItems = &maxItems
		v.ListItems = &items
	}
	if p.SecretItems {
		maxEach := g.MaxSecretListItemsEach
		items := itemViews(g.ItemsOf(model.ItemSecret), p.BoolSelection)
		v.MaxSecretListItemsEach = &maxEach
		v.SecretListItems = &items
	}
	return v, nil
}

func itemViews(items []model.Item, boolSelection bool) []ItemView {
	out := make([]ItemView, len(items))
	for i, it := range items {
		iv := ItemView{
			ID:           it.ID,
			AuthorID:     it.AuthorID,
			CreationDate: it.CreatedAt,
			Body:         it.Body,
			Links:        append([]string{}, it.Links...),
		}
		if boolSelection {
			selected := it.Selected
			iv.Selected = &selected
		} else {
			selectedBy := append([]string{}, it.SelectedBy...)
			iv.SelectedBy = &selectedBy
		}
		out[i] = iv
	}
	return out
}

// Clone returns a deep copy of v.
func (v *GroupView) Clone() *GroupView {
	if v == nil {
		return nil
	}
	out := *v
	if v.ParentGroupID != nil {
		parent := *v.ParentGroupID
		out.ParentGroupID = &parent
	}
	out.Members = make([]MemberView, len(v.Members))
	for i, m := range v.Members {
		m.Permissions = m.Permissions.Clone()
		m.OldestReadMessage = copyTime(m.OldestReadMessage)
		out.Members[i] = m
	}
	out.MaxListItems = copyInt(v.MaxListItems)
	out.MaxSecretListItemsEach = copyInt(v.MaxSecretListItemsEach)
	out.ListItems = cloneItems(v.ListItems)
	out.SecretListItems = cloneItems(v.SecretListItems)
	if v.Children != nil {
		out.Children = make([]*GroupView, len(v.Children))
		for i, c := range v.Children {
			out.Children[i] = c.Clone()
		}
	}
	return &out
}

func cloneItems(items *[]ItemView) *[]ItemView {
	if items == nil {
		return nil
	}
	out := make([]ItemView, len(*items))
	for i, it := range *items {
		it.Links = slices.Clone(it.Links)
		if it.SelectedBy != nil {
			selectedBy := slices.Clone(*it.SelectedBy)
			if selectedBy == nil {
				selectedBy = []string{}
			}
			it.SelectedBy = &selectedBy
		}
		if it.Selected != nil {
			selected := *it.Selected
			it.Selected = &selected
		}
		out[i] = it
	}
	return &out
}

func copyInt(n *int) *int {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
