package repository

import (
	"context"
	"slices"

	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/internal/model"
)

type IMessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByGroup(ctx context.Context, groupID string, beforeID int64, limit int) ([]*model.Message, error)
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// FindByGroup returns up to limit messages older than beforeID (all when
// beforeID is 0), oldest first.
func (r *MessageRepository) FindByGroup(ctx context.Context, groupID string, beforeID int64, limit int) ([]*model.Message, error) {
	var messages []*model.Message

	query := r.db.WithContext(ctx).Where("group_id = ?", groupID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}
	err := query.Order("id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}
