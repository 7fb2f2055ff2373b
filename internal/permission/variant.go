package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Variant is the fixed kind of a group. A group never changes variant.
type Variant string

const (
	BasicList      Variant = "BASIC_LIST"
	GiftList       Variant = "GIFT_LIST"
	GiftGroup      Variant = "GIFT_GROUP"
	GiftGroupChild Variant = "GIFT_GROUP_CHILD"
)

// Category classifies variants by their place in the group hierarchy.
type Category int

const (
	CategorySingular Category = iota + 1
	CategoryParent
	CategoryChild
)

func (c Category) String() string {
	switch c {
	case CategorySingular:
		return "singular"
	case CategoryParent:
		return "parent"
	case CategoryChild:
		return "child"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ErrUnknownVariant is returned when a variant name is not in the registry.
var ErrUnknownVariant = errors.New("unknown group variant")

// Profile is everything the registry knows about one variant.
type Profile struct {
	Variant  Variant
	Category Category

	// Allowed is the permission universe of the variant.
	Allowed    Set
	OwnerBase  Set
	MemberBase Set

	RegularItems bool
	SecretItems  bool
	// BoolSelection means items carry a single selected flag instead of a
	// selectedBy list.
	BoolSelection bool
	Messages      bool

	DefaultMaxListItems  int
	DefaultMaxSecretEach int
}

var profiles = map[Variant]Profile{
	BasicList: {
		Variant:  BasicList,
		Category: CategorySingular,
		Allowed: NewSet(
			GroupDelete, GroupAdmin, GroupInvite, GroupRename,
			GroupRWListItems, GroupRListItems, GroupSelectListItems,
			GroupRWMessages,
		),
		OwnerBase: NewSet(
			GroupDelete, GroupAdmin, GroupInvite, GroupRename,
			GroupRWListItems, GroupRListItems, GroupSelectListItems,
			GroupRWMessages,
		),
		MemberBase: NewSet(
			GroupInvite,
			GroupRWListItems, GroupRListItems, GroupSelectListItems,
			GroupRWMessages,
		),
		RegularItems:        true,
		BoolSelection:       true,
		Messages:            true,
		DefaultMaxListItems: 100,
	},
	// A gift list belongs to the person receiving the gifts: the owner writes the
	// list but never sees who selected what, and never sees secret items.
	GiftList: {
		Variant:  GiftList,
		Category: CategorySingular,
		Allowed: NewSet(
			GroupDelete, GroupAdmin, GroupInvite, GroupRename,
			GroupRWListItems, GroupRListItems, GroupSelectListItems,
			GroupRWSecretListItems, GroupSelectSecretListItems,
			GroupRWMessages,
		),
		OwnerBase: NewSet(
			GroupDelete, GroupAdmin, GroupInvite, GroupRename,
			GroupRWListItems, GroupRListItems,
			GroupRWMessages,
		),
		MemberBase: NewSet(
			GroupInvite,
			GroupRListItems, GroupSelectListItems,
			GroupRWSecretListItems, GroupSelectSecretListItems,
			GroupRWMessages,
		),
		RegularItems:         true,
		SecretItems:          true,
		Messages:             true,
		DefaultMaxListItems:  50,
		DefaultMaxSecretEach: 10,
	},
	GiftGroup: {
		Variant:  GiftGroup,
		Category: CategoryParent,
		Allowed: NewSet(
			GroupDelete, GroupAdmin, GroupInvite, GroupRename, ChildGroupCreate,
		),
		OwnerBase: NewSet(
			GroupDelete, GroupAdmin, GroupInvite, ChildGroupCreate,
		),
		MemberBase: NewSet(
			GroupInvite, ChildGroupCreate,
		),
	},
	GiftGroupChild: {
		Variant:  GiftGroupChild,
		Category: CategoryChild,
		Allowed: NewSet(
			GroupDelete, GroupAdmin, GroupRename,
			GroupRWListItems, GroupRListItems, GroupSelectListItems,
			GroupRWSecretListItems, GroupSelectSecretListItems,
			GroupRWMessages,
		),
		OwnerBase: NewSet(
			GroupDelete, GroupAdmin, GroupRename,
			GroupRWListItems, GroupRListItems,
			GroupRWSecretListItems, GroupSelectSecretListItems,
			GroupRWMessages,
		),
		MemberBase: NewSet(
			GroupRListItems, GroupSelectListItems,
			GroupRWMessages,
		),
		RegularItems:         true,
		SecretItems:          true,
		Messages:             true,
		DefaultMaxListItems:  20,
		DefaultMaxSecretEach: 10,
	},
}

// childOf maps a parent variant to the only child variant it admits.
var childOf = map[Variant]Variant{
	GiftGroup: GiftGroupChild,
}

// Variants lists every registered variant in a stable order.
func Variants() []Variant {
	return []Variant{BasicList, GiftList, GiftGroup, GiftGroupChild}
}

// ParseVariant converts a raw name into a registered Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := profiles[v]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, s)
	}
	return v, nil
}

// Lookup returns the profile of v.
func Lookup(v Variant) (Profile, bool) {
	p, ok := profiles[v]
	if !ok {
		return Profile{}, false
	}
	p.Allowed = p.Allowed.Clone()
	p.OwnerBase = p.OwnerBase.Clone()
	p.MemberBase = p.MemberBase.Clone()
	return p, true
}

// Known reports whether v is registered.
func (v Variant) Known() bool {
	_, ok := profiles[v]
	return ok
}

// AllowedFor returns the permission universe of v; empty for an unknown variant.
func AllowedFor(v Variant) Set {
	return profiles[v].Allowed.Clone()
}

// OwnerBase returns the permissions granted to the creator of a group of variant v.
func OwnerBase(v Variant) Set {
	return profiles[v].OwnerBase.Clone()
}

// MemberBase returns the permissions granted to a user joining a group of variant v.
func MemberBase(v Variant) Set {
	return profiles[v].MemberBase.Clone()
}

func IsParent(v Variant) bool   { return profiles[v].Category == CategoryParent }
func IsChild(v Variant) bool    { return profiles[v].Category == CategoryChild }
func IsSingular(v Variant) bool { return profiles[v].Category == CategorySingular }

// IsTopLevel reports whether groups of v are listed directly to their members.
func IsTopLevel(v Variant) bool { return IsSingular(v) || IsParent(v) }

// ChildVariantOf returns the child variant admitted by parent.
func ChildVariantOf(parent Variant) (Variant, bool) {
	c, ok := childOf[parent]
	return c, ok
}

// AdmitsChild reports whether a group of variant parent may own a child of variant child.
func AdmitsChild(parent, child Variant) bool {
	c, ok := childOf[parent]
	return ok && c == child
}

// Validate checks that the registry tables are mutually consistent. It is run
// at process start; a failure means the binary was built with broken tables.
func Validate() error {
	seen := make(map[Permission]bool, len(All))
	for _, p := range All {
		if seen[p] {
			return fmt.Errorf("permission token %q declared twice", p)
		}
		seen[p] = true
	}

	var errs []error
	for _, v := range Variants() {
		p, ok := profiles[v]
		if !ok {
			errs = append(errs, fmt.Errorf("variant %s has no profile", v))
			continue
		}
		if p.Variant != v {
			errs = append(errs, fmt.Errorf("variant %s registered under profile %s", v, p.Variant))
		}
		for _, perm := range p.Allowed {
			if !perm.Known() {
				errs = append(errs, fmt.Errorf("variant %s allows unknown permission %s", v, perm))
			}
		}
		if missing := p.OwnerBase.Missing(p.Allowed); len(missing) > 0 {
			errs = append(errs, fmt.Errorf("variant %s owner base outside universe: %s", v, missing))
		}
		if missing := p.MemberBase.Missing(p.Allowed); len(missing) > 0 {
			errs = append(errs, fmt.Errorf("variant %s member base outside universe: %s", v, missing))
		}
		if p.Category == CategoryParent && (p.RegularItems || p.SecretItems || p.Messages) {
			errs = append(errs, fmt.Errorf("parent variant %s must not carry items or messages", v))
		}
		if p.RegularItems && p.DefaultMaxListItems <= 0 {
			errs = append(errs, fmt.Errorf("variant %s has items but no item cap", v))
		}
		if p.SecretItems && p.DefaultMaxSecretEach <= 0 {
			errs = append(errs, fmt.Errorf("variant %s has secret items but no secret cap", v))
		}
	}
	for parent, child := range childOf {
		if !IsParent(parent) {
			errs = append(errs, fmt.Errorf("compat table: %s is not a parent variant", parent))
		}
		if !IsChild(child) {
			errs = append(errs, fmt.Errorf("compat table: %s is not a child variant", child))
		}
	}
	for _, v := range Variants() {
		if IsChild(v) {
			found := false
			for _, c := range childOf {
				found = found || c == v
			}
			if !found {
				errs = append(errs, fmt.Errorf("child variant %s has no parent variant", v))
			}
		}
	}
	return errors.Join(errs...)
}
