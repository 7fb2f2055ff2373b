// Package censor projects groups into per-viewer views. Redaction removes keys
// instead of blanking them, and every function here is pure.
package censor

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
)

// ErrUnsupportedVariant is returned for a group whose variant has no
// censoring rule. Callers must treat it as a server fault and show nothing.
var ErrUnsupportedVariant = errors.New("censor: unsupported group variant")

func unsupported(v permission.Variant) error {
	return fmt.Errorf("%w: %q", ErrUnsupportedVariant, v)
}

// Censor returns a copy of v redacted for a viewer holding perms. Children
// already attached to v are kept as they are: each was censored with the
// viewer's permissions in that child.
func Censor(v *GroupView, perms permission.Set) (*GroupView, error) {
	out := v.Clone()
	switch v.Variant {
	case permission.BasicList, permission.GiftList, permission.GiftGroupChild:
		if !perms.Has(permission.GroupSelectListItems) && out.ListItems != nil {
			for i := range *out.ListItems {
				(*out.ListItems)[i].SelectedBy = nil
				(*out.ListItems)[i].Selected = nil
			}
		}
		if !perms.Has(permission.GroupRWSecretListItems) {
			out.SecretListItems = nil
		}
	case permission.GiftGroup:
		// Nothing to hide on a parent itself.
	default:
		return nil, unsupported(v.Variant)
	}
	return out, nil
}

// CensorGroup builds and censors the view of g for viewerID. The viewer must
// be a member of g.
func CensorGroup(g *model.Group, viewerID string) (*GroupView, error) {
	m, ok := g.Member(viewerID)
	if !ok {
		return nil, fmt.Errorf("censor: %s is not a member of group %s", viewerID, g.ID)
	}
	v, err := FromModel(g)
	if err != nil {
		return nil, err
	}
	return Censor(v, m.Permissions)
}

// CensorTree censors parent for viewerID and attaches every child in which the
// viewer is a member, each censored with the viewer's permissions in that child.
// For groups that are not parents children is ignored.
func CensorTree(parent *model.Group, children []model.Group, viewerID string) (*GroupView, error) {
	out, err := CensorGroup(parent, viewerID)
	if err != nil {
		return nil, err
	}
	if !permission.IsParent(parent.Variant) {
		return out, nil
	}

	out.Children = []*GroupView{}
	for i := range children {
		child := &children[i]
		if !child.HasMember(viewerID) {
			continue
		}
		cv, err := CensorGroup(child, viewerID)
		if err != nil {
			return nil, fmt.Errorf("child %s: %w", child.ID, err)
		}
		out.Children = append(out.Children, cv)
	}
	return out, nil
}

// ErrHidden is returned by CensorItem when the viewer may not see the item at all.
var ErrHidden = errors.New("censor: item hidden from viewer")

// CensorItem projects a single item of g for viewerID under the same rules as
// Censor.
func CensorItem(g *model.Group, it *model.Item, viewerID string) (*ItemView, error) {
	m, ok := g.Member(viewerID)
	if !ok {
		return nil, fmt.Errorf("censor: %s is not a member of group %s", viewerID, g.ID)
	}
	p, ok := permission.Lookup(g.Variant)
	if !ok || permission.IsParent(g.Variant) {
		return nil, unsupported(g.Variant)
	}

	iv := itemViews([]model.Item{*it}, p.BoolSelection)[0]
	switch it.Kind {
	case model.ItemSecret:
		if !m.Permissions.Has(permission.GroupRWSecretListItems) {
			return nil, ErrHidden
		}
	default:
		if !m.Permissions.Has(permission.GroupSelectListItems) {
			iv.SelectedBy = nil
			iv.Selected = nil
		}
	}
	return &iv, nil
}
