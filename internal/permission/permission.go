// Package permission holds the static permission catalog and the group variant
// registry. Nothing here performs I/O; every table is fixed at compile time and
// checked once at startup by Validate.
package permission

import (
	"fmt"
	"slices"
	"strings"
)

// Permission is a single capability token a member can hold in a group.
type Permission string

const (
	GroupDelete                Permission = "GROUP_DELETE"
	GroupAdmin                 Permission = "GROUP_ADMIN"
	GroupInvite                Permission = "GROUP_INVITE"
	GroupRename                Permission = "GROUP_RENAME"
	ChildGroupCreate           Permission = "CHILD_GROUP_CREATE"
	GroupRWListItems           Permission = "GROUP_RW_LIST_ITEMS"
	GroupRListItems            Permission = "GROUP_R_LIST_ITEMS"
	GroupSelectListItems       Permission = "GROUP_SELECT_LIST_ITEMS"
	GroupRWSecretListItems     Permission = "GROUP_RW_SECRET_LIST_ITEMS"
	GroupSelectSecretListItems Permission = "GROUP_SELECT_SECRET_LIST_ITEMS"
	GroupRWMessages            Permission = "GROUP_RW_MESSAGES"
)

// All is the full catalog in declaration order.
var All = []Permission{
	GroupDelete,
	GroupAdmin,
	GroupInvite,
	GroupRename,
	ChildGroupCreate,
	GroupRWListItems,
	GroupRListItems,
	GroupSelectListItems,
	GroupRWSecretListItems,
	GroupSelectSecretListItems,
	GroupRWMessages,
}

// Known reports whether p is part of the catalog.
func (p Permission) Known() bool {
	return slices.Contains(All, p)
}

// Parse converts a raw token into a Permission, rejecting anything outside the catalog.
func Parse(s string) (Permission, error) {
	p := Permission(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Known() {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// Set is a sorted, duplicate-free list of permissions. The zero value is the
// empty set. Sets are treated as values: every operation returns a new Set.
type Set []Permission

// NewSet builds a normalized Set from perms.
func NewSet(perms ...Permission) Set {
	out := append(make(Set, 0, len(perms)), perms...)
	slices.Sort(out)
	return slices.Compact(out)
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	for _, v := range s {
		if v == p {
			return true
		}
	}
	return false
}

// HasAny reports whether at least one of perms is in the set.
func (s Set) HasAny(perms ...Permission) bool {
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Union returns s ∪ other.
func (s Set) Union(other Set) Set {
	merged := make([]Permission, 0, len(s)+len(other))
	merged = append(merged, s...)
	merged = append(merged, other...)
	return NewSet(merged...)
}

// SubsetOf reports whether every element of s is in universe.
func (s Set) SubsetOf(universe Set) bool {
	for _, p := range s {
		if !universe.Has(p) {
			return false
		}
	}
	return true
}

// Missing returns the elements of s that are not in universe.
func (s Set) Missing(universe Set) Set {
	var out Set
	for _, p := range s {
		if !universe.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// Equal reports whether both sets hold the same permissions.
func (s Set) Equal(other Set) bool {
	return slices.Equal(NewSet(s...), NewSet(other...))
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	return NewSet(s...)
}

func (s Set) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = string(p)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
