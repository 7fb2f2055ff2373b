package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/internal/censor"
	"github.com/Gopher0727/GiftList/internal/invite"
	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/notify"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
	"github.com/Gopher0727/GiftList/internal/utils"
)

// InviteResult is a freshly issued invite.
type InviteResult struct {
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
	Emailed   bool      `json:"emailed"`
}

// LeaveGroup removes the caller from a group, and from every child when the
// group is a parent. The last member leaving deletes the group.
func (s *GroupService) LeaveGroup(ctx context.Context, who Identity, groupID string) (*LeaveResult, error) {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID); err != nil {
		return nil, err
	}
	if permission.IsChild(g.Variant) {
		return nil, ErrLeaveChildForbidden
	}

	if len(g.Members) == 1 {
		res, err := s.cascade(ctx, g)
		if err != nil {
			return nil, err
		}
		return &LeaveResult{RemovedFrom: res.DeletedGroups, Deleted: res}, nil
	}

	body := fmt.Sprintf("%s left", displayName(who))
	removed, err := s.removeEverywhere(ctx, g, who.ID, model.EventMemberLeft, body)
	if err != nil {
		return nil, err
	}
	s.Log.InfoContext(ctx, "member left", zap.String("group_id", g.ID), zap.Strings("groups", removed))
	return &LeaveResult{RemovedFrom: removed}, nil
}

// KickMember requires GROUP_ADMIN. Removal from a parent also removes the
// target from every child.
func (s *GroupService) KickMember(ctx context.Context, who Identity, groupID, targetID string) error {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return err
	}
	if _, err := s.authorize(g, who.ID, permission.GroupAdmin); err != nil {
		return err
	}
	if permission.IsChild(g.Variant) {
		return ErrKickChildForbidden
	}
	if targetID == who.ID {
		return ErrCannotKickSelf
	}
	target, ok := g.Member(targetID)
	if !ok {
		return ErrMemberNotFound
	}

	body := fmt.Sprintf("%s was removed by %s", target.DisplayName, displayName(who))
	removed, err := s.removeEverywhere(ctx, g, targetID, model.EventMemberRemoved, body)
	if err != nil {
		return err
	}
	s.Log.InfoContext(ctx, "member removed",
		zap.String("group_id", g.ID),
		zap.String("target", targetID),
		zap.Strings("groups", removed),
	)
	return nil
}

// removeEverywhere drops userID from g and its children in one transaction,
// posting a system message in every messaging group the user left. Children
// the user was the last member of are deleted afterwards.
func (s *GroupService) removeEverywhere(ctx context.Context, g *model.Group, userID string, event model.SystemEvent, body string) ([]string, error) {
	groups := []*model.Group{g}
	if permission.IsParent(g.Variant) {
		children, err := s.Groups.FindChildren(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load child groups: %w", err)
		}
		for i := range children {
			if children[i].HasMember(userID) {
				groups = append(groups, &children[i])
			}
		}
	}

	var (
		ids      []string
		notices  []*model.Message
		orphaned []*model.Group
	)
	for _, grp := range groups {
		ids = append(ids, grp.ID)
		if grp != g && len(grp.Members) == 1 {
			orphaned = append(orphaned, grp)
			continue
		}
		n, err := s.notice(grp, event, body)
		if err != nil {
			return nil, err
		}
		if n != nil {
			notices = append(notices, n)
		}
	}

	if _, err := s.Groups.RemoveMember(ctx, ids, userID, notices...); err != nil {
		return nil, fmt.Errorf("failed to remove member: %w", err)
	}
	for _, child := range orphaned {
		if _, err := s.Groups.DeleteCascade(ctx, child.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			s.Log.ErrorContext(ctx, "failed to delete memberless child group", zap.String("group_id", child.ID), zap.Error(err))
		}
	}

	for _, grp := range groups {
		s.publish(ctx, realtime.EventMemberChanged, grp.ID, grp.MemberIDs(), map[string]string{
			"userId": userID,
			"event":  string(event),
		})
	}
	return ids, nil
}

// CreateInvite requires GROUP_INVITE. When recipientEmail is set the invite is
// also handed to the notifier.
func (s *GroupService) CreateInvite(ctx context.Context, who Identity, groupID, recipientEmail string) (*InviteResult, error) {
	if recipientEmail = utils.NormalizeEmail(recipientEmail); recipientEmail != "" && !utils.ValidateEmail(recipientEmail) {
		return nil, ErrInvalidEmail
	}
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID); err != nil {
		return nil, err
	}
	if permission.IsChild(g.Variant) {
		return nil, ErrInviteChildForbidden
	}
	if _, err := s.authorize(g, who.ID, permission.GroupInvite); err != nil {
		return nil, err
	}

	token, expires, err := s.Invites.Issue(invite.Invite{
		GroupID:    g.ID,
		SenderID:   who.ID,
		SenderName: displayName(who),
	})
	if err != nil {
		return nil, err
	}
	res := &InviteResult{Token: token, Link: s.Invites.Link(token), ExpiresAt: expires}

	if recipientEmail != "" {
		err := s.Notifier.Send(ctx, recipientEmail, notify.TemplateGroupInvite, map[string]any{
			"groupId":    g.ID,
			"groupName":  g.Name,
			"senderName": displayName(who),
			"link":       res.Link,
			"expiresAt":  expires.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to send invite: %w", err)
		}
		res.Emailed = true
	}
	return res, nil
}

// AcceptInvite adds the caller with the member base set. Accepting a parent
// invite also enrolls the caller in every existing child.
func (s *GroupService) AcceptInvite(ctx context.Context, who Identity, token string) (*censor.GroupView, error) {
	inv, err := s.Invites.Decode(token)
	if err != nil {
		return nil, ErrInvalidInvite
	}
	g, err := s.loadGroup(ctx, inv.GroupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if permission.IsChild(g.Variant) {
		return nil, ErrInvalidInvite
	}
	if g.HasMember(who.ID) {
		return nil, ErrAlreadyMember
	}

	targets := []*model.Group{g}
	if permission.IsParent(g.Variant) {
		children, err := s.Groups.FindChildren(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load child groups: %w", err)
		}
		for i := range children {
			if !children[i].HasMember(who.ID) {
				targets = append(targets, &children[i])
			}
		}
	}

	now := s.now()
	body := fmt.Sprintf("%s joined", displayName(who))
	var (
		members []model.Member
		notices []*model.Message
	)
	for _, grp := range targets {
		members = append(members, model.Member{
			GroupID:     grp.ID,
			UserID:      who.ID,
			DisplayName: displayName(who),
			Permissions: permission.MemberBase(grp.Variant),
			JoinedAt:    now,
		})
		n, err := s.notice(grp, model.EventMemberJoined, body)
		if err != nil {
			return nil, err
		}
		if n != nil {
			notices = append(notices, n)
		}
	}

	if err := s.Groups.AddMembers(ctx, members, notices...); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	s.Log.InfoContext(ctx, "invite accepted",
		zap.String("group_id", g.ID),
		zap.String("sender", inv.SenderID),
		zap.Int("groups", len(targets)),
	)

	g, err = s.loadGroup(ctx, g.ID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	for _, grp := range targets {
		s.publish(ctx, realtime.EventMemberChanged, grp.ID, appendMissing(grp.MemberIDs(), who.ID), map[string]string{
			"userId": who.ID,
			"event":  string(model.EventMemberJoined),
		})
	}
	return s.view(ctx, g, who.ID)
}

// SetMemberPermissions requires GROUP_ADMIN and replaces the target's set.
// Every permission must belong to the variant's universe.
func (s *GroupService) SetMemberPermissions(ctx context.Context, who Identity, groupID, targetID string, perms permission.Set) (*censor.GroupView, error) {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID, permission.GroupAdmin); err != nil {
		return nil, err
	}
	perms = permission.NewSet(perms...)
	if missing := perms.Missing(permission.AllowedFor(g.Variant)); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrPermissionNotAllowed, missing)
	}
	target, ok := g.Member(targetID)
	if !ok {
		return nil, ErrMemberNotFound
	}

	if err := s.Groups.UpdatePermissions(ctx, g.ID, targetID, perms); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}
	target.Permissions = perms
	s.Log.InfoContext(ctx, "member permissions changed",
		zap.String("group_id", g.ID),
		zap.String("target", targetID),
		zap.Stringer("permissions", perms),
	)

	s.publish(ctx, realtime.EventMemberChanged, g.ID, g.MemberIDs(), map[string]string{"userId": targetID})
	return s.view(ctx, g, who.ID)
}
