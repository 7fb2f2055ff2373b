package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GiftList/internal/model"
)

// ErrCapReached is returned by AddCapped when the group already holds the
// maximum number of items allowed.
var ErrCapReached = errors.New("item cap reached")

// ItemCap bounds the number of items of one kind in a group. When PerAuthor is
// set the bound applies to each author separately.
type ItemCap struct {
	Max       int
	PerAuthor bool
}

// IItemRepository defines the interface for list item storage.
type IItemRepository interface {
	AddCapped(ctx context.Context, item *model.Item, limit ItemCap) error
	FindByID(ctx context.Context, groupID, itemID string, kind model.ItemKind) (*model.Item, error)
	Update(ctx context.Context, item *model.Item) error
	Delete(ctx context.Context, groupID, itemID string, kind model.ItemKind) error
	UpdateSelection(ctx context.Context, groupID, itemID string, kind model.ItemKind, fn func(*model.Item)) (*model.Item, error)
}

// ItemRepository implements IItemRepository on gorm.
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new IItemRepository instance
func NewItemRepository(db *gorm.DB) IItemRepository {
	return &ItemRepository{db: db}
}

// AddCapped inserts item unless doing so would exceed limit. The group row is
// locked for the duration of the count and insert so that concurrent adds
// cannot both slip under the cap.
func (r *ItemRepository) AddCapped(ctx context.Context, item *model.Item, limit ItemCap) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group model.Group
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", item.GroupID).
			First(&group).Error
		if err != nil {
			return err
		}

		q := tx.Model(&model.Item{}).Where("group_id = ? AND kind = ?", item.GroupID, item.Kind)
		if limit.PerAuthor {
			q = q.Where("author_id = ?", item.AuthorID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(limit.Max) {
			return ErrCapReached
		}
		return tx.Create(item).Error
	})
}

// FindByID finds an item of the given kind inside a group.
func (r *ItemRepository) FindByID(ctx context.Context, groupID, itemID string, kind model.ItemKind) (*model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).
		Where("id = ? AND group_id = ? AND kind = ?", itemID, groupID, kind).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Update saves the body and links of an item.
func (r *ItemRepository) Update(ctx context.Context, item *model.Item) error {
	res := r.db.WithContext(ctx).
		Model(item).
		Select("Body", "Links").
		Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes one item.
func (r *ItemRepository) Delete(ctx context.Context, groupID, itemID string, kind model.ItemKind) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND group_id = ? AND kind = ?", itemID, groupID, kind).
		Delete(&model.Item{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateSelection applies fn to the locked item and saves its selection state.
func (r *ItemRepository) UpdateSelection(ctx context.Context, groupID, itemID string, kind model.ItemKind, fn func(*model.Item)) (*model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND group_id = ? AND kind = ?", itemID, groupID, kind).
			First(&item).Error
		if err != nil {
			return err
		}
		fn(&item)
		return tx.Model(&item).Select("SelectedBy", "Selected").Updates(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}
