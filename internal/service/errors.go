package service

import (
	"errors"

	"github.com/Gopher0727/GiftList/internal/permission"
)

// Validation
var (
	ErrInvalidName    = errors.New("group name must be 1-64 printable characters")
	ErrInvalidBody    = errors.New("invalid body")
	ErrTooManyLinks   = errors.New("too many links")
	ErrInvalidEmail   = errors.New("invalid recipient email")
	ErrUnknownVariant = permission.ErrUnknownVariant
)

// Authorization
var (
	ErrNotAMember             = errors.New("user is not a member of this group")
	ErrInsufficientPermission = errors.New("insufficient permission")
	ErrNotItemAuthor          = errors.New("only the author may change this item")
	ErrInvalidParent          = errors.New("invalid parent group")
	ErrLeaveChildForbidden    = errors.New("child groups cannot be left directly, leave the parent group")
	ErrInviteChildForbidden   = errors.New("child groups do not take invites, invite to the parent group")
	ErrKickChildForbidden     = errors.New("members cannot be removed from a child group directly")
	ErrCannotKickSelf         = errors.New("use leave to remove yourself")
)

// Not found
var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrItemNotFound   = errors.New("item not found")
	ErrParentNotFound = errors.New("parent group not found")
	ErrMemberNotFound = errors.New("member not found")
)

// Conflict
var (
	ErrAlreadyMember        = errors.New("user is already a member of this group")
	ErrItemCapReached       = errors.New("item limit reached")
	ErrInvalidInvite        = errors.New("invalid or expired invite")
	ErrMissingParent        = errors.New("child group requires a parent group")
	ErrPermissionNotAllowed = errors.New("permission not allowed for this group variant")
	ErrItemKindUnsupported  = errors.New("group variant does not hold items of this kind")
	ErrMessagesUnsupported  = errors.New("group variant does not support messages")
)

// Consistency faults. These mean stored data or the registry tables are
// broken; callers answer with a generic server error.
var (
	ErrConsistency          = errors.New("consistency fault")
	ErrInvalidGroupVariant  = errors.New("invalid group variant")
	ErrInvalidParentVariant = errors.New("parent variant does not admit this child variant")
)
