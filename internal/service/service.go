package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/config"
	"github.com/Gopher0727/GiftList/internal/authz"
	"github.com/Gopher0727/GiftList/internal/censor"
	"github.com/Gopher0727/GiftList/internal/invite"
	"github.com/Gopher0727/GiftList/internal/metrics"
	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/notify"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
	"github.com/Gopher0727/GiftList/internal/repository"
	logger "github.com/Gopher0727/GiftList/middleware/log"
	"github.com/Gopher0727/GiftList/utils/snowflake"
)

const (
	maxNameLen    = 64
	maxBodyLen    = 512
	maxMessageLen = 2000
	maxLinks      = 10
)

// Identity is the already authenticated caller.
type Identity struct {
	ID          string
	DisplayName string
}

// Deps carries the collaborators shared by every service.
type Deps struct {
	Groups   repository.IGroupRepository
	Items    repository.IItemRepository
	Messages repository.IMessageRepository

	Invites   *invite.Codec
	Notifier  notify.Notifier
	Publisher realtime.Publisher
	IDs       *snowflake.Generator
	Limits    config.LimitsConfig
	Metrics   *metrics.Metrics
	Log       *logger.Logger
}

// core holds the helpers the group, item and message services share.
type core struct {
	Deps
	now func() time.Time
}

func newCore(d Deps) *core {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.Publisher == nil {
		d.Publisher = realtime.Nop{}
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(d.Log.Logger)
	}
	return &core{Deps: d, now: time.Now}
}

// loadGroup fetches a group and checks that its stored shape matches its variant.
func (c *core) loadGroup(ctx context.Context, id string, notFound error) (*model.Group, error) {
	g, err := c.Groups.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound
		}
		return nil, fmt.Errorf("failed to find group: %w", err)
	}
	if err := g.CheckShape(); err != nil {
		c.Log.ErrorContext(ctx, "stored group is malformed", zap.String("group_id", id), zap.Error(err))
		return nil, fmt.Errorf("%w: %w: %w", ErrConsistency, ErrInvalidGroupVariant, err)
	}
	return g, nil
}

// authorize runs the guard, counts the decision and turns a denial into the
// matching sentinel error.
func (c *core) authorize(g *model.Group, userID string, required ...permission.Permission) (*model.Member, error) {
	d := authz.RequireMember(g, userID)
	label := "membership"
	if len(required) > 0 {
		d = authz.AuthorizeAny(g, userID, required...)
		label = string(required[0])
	}
	c.Metrics.AuthzDecision(label, d.Allowed, string(d.Reason))

	if d.Allowed {
		return d.Member, nil
	}
	switch d.Reason {
	case authz.ReasonNotAMember:
		return nil, ErrNotAMember
	default:
		return nil, ErrInsufficientPermission
	}
}

// view projects g for viewerID; parents get their children attached.
func (c *core) view(ctx context.Context, g *model.Group, viewerID string) (*censor.GroupView, error) {
	var children []model.Group
	if permission.IsParent(g.Variant) {
		var err error
		children, err = c.Groups.FindChildren(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load child groups: %w", err)
		}
	}
	v, err := censor.CensorTree(g, children, viewerID)
	if err != nil {
		if errors.Is(err, censor.ErrUnsupportedVariant) {
			c.Log.ErrorContext(ctx, "group cannot be censored", zap.String("group_id", g.ID), zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrConsistency, err)
		}
		return nil, err
	}
	return v, nil
}

// notice builds a system message for g, or nil when the variant has no chat.
func (c *core) notice(g *model.Group, event model.SystemEvent, body string) (*model.Message, error) {
	p, err := g.Profile()
	if err != nil || !p.Messages {
		return nil, nil
	}
	id, err := c.IDs.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	return &model.Message{
		ID:        id,
		GroupID:   g.ID,
		Kind:      model.MessageSystem,
		Event:     event,
		Body:      body,
		CreatedAt: c.now(),
	}, nil
}

// publish pushes an event; delivery failures are logged and never fail the
// request because the change is already stored.
func (c *core) publish(ctx context.Context, typ realtime.EventType, groupID string, recipients []string, payload any) {
	if len(recipients) == 0 {
		return
	}
	ev, err := realtime.NewEvent(typ, groupID, recipients, payload)
	if err == nil {
		err = c.Publisher.Publish(ctx, ev)
	}
	if err != nil {
		c.Log.WarnContext(ctx, "failed to publish realtime event",
			zap.String("type", string(typ)),
			zap.String("group_id", groupID),
			zap.Error(err),
		)
	}
}

// holders returns the ids of members holding at least one of perms.
func holders(g *model.Group, perms ...permission.Permission) []string {
	var ids []string
	for _, m := range g.Members {
		if m.Permissions.HasAny(perms...) {
			ids = append(ids, m.UserID)
		}
	}
	return ids
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxNameLen || !utf8.ValidString(name) {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidName
		}
	}
	return name, nil
}

func validateBody(body string, limit int) (string, error) {
	body = strings.TrimSpace(body)
	n := utf8.RuneCountInString(body)
	if n == 0 || n > limit || !utf8.ValidString(body) {
		return "", ErrInvalidBody
	}
	return body, nil
}

// validateLinks trims links and drops empty ones.
func validateLinks(links []string) ([]string, error) {
	out := make([]string, 0, len(links))
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) > maxLinks {
		return nil, ErrTooManyLinks
	}
	return out, nil
}

func displayName(who Identity) string {
	if who.DisplayName != "" {
		return who.DisplayName
	}
	return who.ID
}
