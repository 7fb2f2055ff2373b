package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/internal/censor"
	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
)

// DeleteStatus is the outcome of a delete request.
type DeleteStatus string

const (
	DeleteStatusDeleted   DeleteStatus = "deleted"
	DeleteStatusNotFound  DeleteStatus = "not_found"
	DeleteStatusForbidden DeleteStatus = "forbidden"
)

// DeleteResult reports a delete. Not found and denied are statuses, not errors.
type DeleteResult struct {
	Status          DeleteStatus `json:"status"`
	Message         string       `json:"message"`
	DeletedGroups   []string     `json:"deletedGroups,omitempty"`
	DeletedMessages int64        `json:"deletedMessages"`
}

// LeaveResult reports a leave. When the caller was the last member the group
// is deleted and Deleted carries the cascade.
type LeaveResult struct {
	RemovedFrom []string      `json:"removedFrom"`
	Deleted     *DeleteResult `json:"deleted,omitempty"`
}

// IGroupService defines group lifecycle and membership operations.
type IGroupService interface {
	CreateGroup(ctx context.Context, who Identity, variant permission.Variant, name string, parentID *string) (*censor.GroupView, error)
	RenameGroup(ctx context.Context, who Identity, groupID, name string) (*censor.GroupView, error)
	DeleteGroup(ctx context.Context, who Identity, groupID string) (*DeleteResult, error)
	LeaveGroup(ctx context.Context, who Identity, groupID string) (*LeaveResult, error)
	CreateInvite(ctx context.Context, who Identity, groupID, recipientEmail string) (*InviteResult, error)
	AcceptInvite(ctx context.Context, who Identity, token string) (*censor.GroupView, error)
	KickMember(ctx context.Context, who Identity, groupID, targetID string) error
	SetMemberPermissions(ctx context.Context, who Identity, groupID, targetID string, perms permission.Set) (*censor.GroupView, error)
	GetGroup(ctx context.Context, who Identity, groupID string) (*censor.GroupView, error)
	ListGroups(ctx context.Context, who Identity) ([]*censor.GroupView, error)
}

// GroupService implements IGroupService.
type GroupService struct {
	*core
}

// NewGroupService creates a new IGroupService instance
func NewGroupService(d Deps) *GroupService {
	return &GroupService{core: newCore(d)}
}

// CreateGroup creates a group with the caller as its only owner-base member.
// A child group also enrolls every other member of its parent.
func (s *GroupService) CreateGroup(ctx context.Context, who Identity, variant permission.Variant, name string, parentID *string) (*censor.GroupView, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	profile, ok := permission.Lookup(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}

	var parent *model.Group
	switch profile.Category {
	case permission.CategoryChild:
		if parentID == nil || *parentID == "" {
			return nil, ErrMissingParent
		}
		parent, err = s.loadGroup(ctx, *parentID, ErrParentNotFound)
		if err != nil {
			return nil, err
		}
		if _, err := s.authorize(parent, who.ID, permission.ChildGroupCreate); err != nil {
			return nil, ErrInvalidParent
		}
		if !permission.AdmitsChild(parent.Variant, variant) {
			s.Log.ErrorContext(ctx, "parent holding CHILD_GROUP_CREATE does not admit child",
				zap.String("parent_id", parent.ID),
				zap.String("parent_variant", string(parent.Variant)),
				zap.String("child_variant", string(variant)),
			)
			return nil, fmt.Errorf("%w: %w", ErrConsistency, ErrInvalidParentVariant)
		}
	case permission.CategorySingular, permission.CategoryParent:
		if parentID != nil {
			return nil, ErrInvalidParent
		}
	default:
		return nil, fmt.Errorf("%w: %w: %s", ErrConsistency, ErrInvalidGroupVariant, variant)
	}

	now := s.now()
	maxItems, maxSecret := s.Limits.CapsFor(variant)
	g := &model.Group{
		ID:                     uuid.New().String(),
		Variant:                variant,
		Name:                   name,
		MaxListItems:           maxItems,
		MaxSecretListItemsEach: maxSecret,
		CreatedAt:              now,
		Members: []model.Member{{
			UserID:      who.ID,
			DisplayName: displayName(who),
			Permissions: profile.OwnerBase,
			JoinedAt:    now,
		}},
	}
	if parent != nil {
		g.ParentGroupID = &parent.ID
		for _, m := range parent.Members {
			if m.UserID == who.ID {
				continue
			}
			g.Members = append(g.Members, model.Member{
				UserID:      m.UserID,
				DisplayName: m.DisplayName,
				Permissions: profile.MemberBase,
				JoinedAt:    now,
			})
		}
	}

	created, err := s.notice(g, model.EventGroupCreated, fmt.Sprintf("%s created %s", displayName(who), name))
	if err != nil {
		return nil, err
	}
	if err := s.Groups.Create(ctx, g, created); err != nil {
		// 父组在校验之后被删除
		if parent != nil && errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParentNotFound
		}
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	s.Metrics.GroupCreated(string(variant))
	s.Log.InfoContext(ctx, "group created",
		zap.String("group_id", g.ID),
		zap.String("variant", string(variant)),
		zap.Int("members", len(g.Members)),
	)
	if parent != nil {
		s.publish(ctx, realtime.EventGroupUpdated, parent.ID, g.MemberIDs(), map[string]string{"childGroupId": g.ID})
	}
	return s.view(ctx, g, who.ID)
}

// RenameGroup requires GROUP_RENAME or GROUP_ADMIN.
func (s *GroupService) RenameGroup(ctx context.Context, who Identity, groupID, name string) (*censor.GroupView, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID, permission.GroupRename, permission.GroupAdmin); err != nil {
		return nil, err
	}

	renamed, err := s.notice(g, model.EventGroupRenamed, fmt.Sprintf("%s renamed the group to %s", displayName(who), name))
	if err != nil {
		return nil, err
	}
	if err := s.Groups.UpdateName(ctx, g.ID, name, renamed); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to rename group: %w", err)
	}
	g.Name = name

	s.publish(ctx, realtime.EventGroupUpdated, g.ID, g.MemberIDs(), map[string]string{"groupName": name})
	return s.view(ctx, g, who.ID)
}

// DeleteGroup requires GROUP_DELETE. Deleting a parent removes every child and
// every message addressed to any of them in one transaction.
func (s *GroupService) DeleteGroup(ctx context.Context, who Identity, groupID string) (*DeleteResult, error) {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if errors.Is(err, ErrGroupNotFound) {
		return &DeleteResult{Status: DeleteStatusNotFound, Message: ErrGroupNotFound.Error()}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID, permission.GroupDelete); err != nil {
		return &DeleteResult{Status: DeleteStatusForbidden, Message: err.Error()}, nil
	}
	return s.cascade(ctx, g)
}

// cascade deletes g and, for a parent, all of its children. Authorization has
// already happened. Child members are always parent members, so the parent's
// member list covers every recipient.
func (s *GroupService) cascade(ctx context.Context, g *model.Group) (*DeleteResult, error) {
	recipients := g.MemberIDs()
	res, err := s.Groups.DeleteCascade(ctx, g.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &DeleteResult{Status: DeleteStatusNotFound, Message: ErrGroupNotFound.Error()}, nil
		}
		s.Log.ErrorContext(ctx, "cascade delete failed", zap.String("group_id", g.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to delete group: %w", err)
	}

	s.Metrics.Cascade(len(res.DeletedGroups), res.DeletedMessages)
	s.Log.InfoContext(ctx, "group deleted",
		zap.String("group_id", g.ID),
		zap.Strings("deleted_groups", res.DeletedGroups),
		zap.Int64("deleted_messages", res.DeletedMessages),
	)
	for _, id := range res.DeletedGroups {
		s.publish(ctx, realtime.EventGroupDeleted, id, recipients, nil)
	}
	return &DeleteResult{
		Status:          DeleteStatusDeleted,
		Message:         fmt.Sprintf("deleted %d group(s)", len(res.DeletedGroups)),
		DeletedGroups:   res.DeletedGroups,
		DeletedMessages: res.DeletedMessages,
	}, nil
}

// GetGroup returns the caller's view of a group.
func (s *GroupService) GetGroup(ctx context.Context, who Identity, groupID string) (*censor.GroupView, error) {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID); err != nil {
		return nil, err
	}
	return s.view(ctx, g, who.ID)
}

// ListGroups returns every top-level group the caller belongs to; parents
// carry the children the caller is in.
func (s *GroupService) ListGroups(ctx context.Context, who Identity) ([]*censor.GroupView, error) {
	groups, err := s.Groups.FindTopLevelByMember(ctx, who.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	views := make([]*censor.GroupView, 0, len(groups))
	for i := range groups {
		v, err := s.view(ctx, &groups[i], who.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func appendMissing(ids []string, more ...string) []string {
	for _, id := range more {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}
