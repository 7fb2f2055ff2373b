// Package authz decides whether a user may perform an operation on a group.
// It is pure: no storage, no logging, no side effects.
package authz

import (
	"fmt"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
)

// Reason explains a denial.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonNotAMember             Reason = "NotAMember"
	ReasonInsufficientPermission Reason = "InsufficientPermission"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Required []permission.Permission
	// Member is the requesting member when the user belongs to the group.
	Member *model.Member
}

func (d Decision) String() string {
	if d.Allowed {
		return "allowed"
	}
	return fmt.Sprintf("denied(%s, required=%v)", d.Reason, d.Required)
}

// Authorize allows userID on group when the user is a member holding required.
func Authorize(group *model.Group, userID string, required permission.Permission) Decision {
	return AuthorizeAny(group, userID, required)
}

// AuthorizeAny allows userID when the user is a member holding at least one of
// required. With no required permissions only membership is checked.
func AuthorizeAny(group *model.Group, userID string, required ...permission.Permission) Decision {
	m, ok := group.Member(userID)
	if !ok {
		return Decision{Reason: ReasonNotAMember, Required: required}
	}
	if len(required) > 0 && !m.Permissions.HasAny(required...) {
		return Decision{Reason: ReasonInsufficientPermission, Required: required, Member: m}
	}
	return Decision{Allowed: true, Required: required, Member: m}
}

// RequireMember allows any member of group.
func RequireMember(group *model.Group, userID string) Decision {
	return AuthorizeAny(group, userID)
}
