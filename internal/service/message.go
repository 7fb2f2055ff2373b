package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// IMessageService defines group chat operations.
type IMessageService interface {
	SendMessage(ctx context.Context, who Identity, groupID, body string) (*model.Message, error)
	ListMessages(ctx context.Context, who Identity, groupID string, beforeID int64, limit int) ([]*model.Message, bool, error)
	MarkRead(ctx context.Context, who Identity, groupID string, at time.Time) error
}

// MessageService implements IMessageService.
type MessageService struct {
	*core
}

// NewMessageService creates a new IMessageService instance
func NewMessageService(d Deps) *MessageService {
	return &MessageService{core: newCore(d)}
}

// chatGroup loads a group whose variant supports messages and checks that the
// caller may use its chat.
func (s *MessageService) chatGroup(ctx context.Context, who Identity, groupID string) (*model.Group, error) {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, err
	}
	if p, err := g.Profile(); err != nil || !p.Messages {
		return nil, ErrMessagesUnsupported
	}
	if _, err := s.authorize(g, who.ID, permission.GroupRWMessages); err != nil {
		return nil, err
	}
	return g, nil
}

// SendMessage stores a user message and pushes it to every member allowed to
// read the chat.
func (s *MessageService) SendMessage(ctx context.Context, who Identity, groupID, body string) (*model.Message, error) {
	body, err := validateBody(body, maxMessageLen)
	if err != nil {
		return nil, err
	}
	g, err := s.chatGroup(ctx, who, groupID)
	if err != nil {
		return nil, err
	}

	id, err := s.IDs.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate snowflake ID: %w", err)
	}
	msg := &model.Message{
		ID:         id,
		GroupID:    g.ID,
		Kind:       model.MessageUser,
		Body:       body,
		AuthorID:   who.ID,
		AuthorName: displayName(who),
		CreatedAt:  s.now(),
	}
	if err := s.Messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message to database: %w", err)
	}

	s.Metrics.MessageSent()
	s.publish(ctx, realtime.EventMessage, g.ID, holders(g, permission.GroupRWMessages), msg)
	return msg, nil
}

// ListMessages pages backwards from beforeID (0 for the newest page). The
// bool reports whether older messages remain.
func (s *MessageService) ListMessages(ctx context.Context, who Identity, groupID string, beforeID int64, limit int) ([]*model.Message, bool, error) {
	if _, err := s.chatGroup(ctx, who, groupID); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	// 多取一条判断是否还有更早的消息
	messages, err := s.Messages.FindByGroup(ctx, groupID, beforeID, limit+1)
	if err != nil {
		return nil, false, fmt.Errorf("failed to retrieve messages: %w", err)
	}
	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[1:]
	}
	return messages, hasMore, nil
}

// MarkRead records how far the caller has read. A zero at means now.
func (s *MessageService) MarkRead(ctx context.Context, who Identity, groupID string, at time.Time) error {
	g, err := s.chatGroup(ctx, who, groupID)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = s.now()
	}
	if err := s.Groups.MarkRead(ctx, g.ID, who.ID, at); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotAMember
		}
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	s.Log.DebugContext(ctx, "messages read", zap.String("group_id", g.ID), zap.Time("at", at))
	return nil
}
