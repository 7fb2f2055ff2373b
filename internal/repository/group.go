package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
)

// CascadeResult reports what a cascading delete removed.
type CascadeResult struct {
	DeletedGroups   []string
	DeletedMessages int64
}

// IGroupRepository defines the interface for group and membership storage.
// Every method that touches more than one row runs in a single transaction.
type IGroupRepository interface {
	Create(ctx context.Context, group *model.Group, notices ...*model.Message) error
	FindByID(ctx context.Context, id string) (*model.Group, error)
	FindChildren(ctx context.Context, parentID string) ([]model.Group, error)
	FindTopLevelByMember(ctx context.Context, userID string) ([]model.Group, error)
	UpdateName(ctx context.Context, id, name string, notices ...*model.Message) error
	DeleteCascade(ctx context.Context, rootID string) (*CascadeResult, error)
	AddMembers(ctx context.Context, members []model.Member, notices ...*model.Message) error
	RemoveMember(ctx context.Context, groupIDs []string, userID string, notices ...*model.Message) (int64, error)
	UpdatePermissions(ctx context.Context, groupID, userID string, perms permission.Set) error
	MarkRead(ctx context.Context, groupID, userID string, at time.Time) error
}

// GroupRepository implements IGroupRepository on gorm.
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new IGroupRepository instance
func NewGroupRepository(db *gorm.DB) IGroupRepository {
	return &GroupRepository{db: db}
}

func preloadGroup(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Members", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}

func createNotices(tx *gorm.DB, notices []*model.Message) error {
	for _, n := range notices {
		if n == nil {
			continue
		}
		if err := tx.Create(n).Error; err != nil {
			return err
		}
	}
	return nil
}

// Create inserts the group with its members and any notices in one transaction.
// A child locks its parent row first, so it cannot land under a parent that a
// concurrent DeleteCascade is removing.
func (r *GroupRepository) Create(ctx context.Context, group *model.Group, notices ...*model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if group.ParentGroupID != nil {
			if err := lockGroup(tx, *group.ParentGroupID); err != nil {
				return err
			}
		}
		if err := tx.Create(group).Error; err != nil {
			return err
		}
		return createNotices(tx, notices)
	})
}

// lockGroup takes a row lock on a group, or returns gorm.ErrRecordNotFound.
func lockGroup(tx *gorm.DB, id string) error {
	var group model.Group
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		First(&group).Error
}

// FindByID loads a group with its members and items.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	err := preloadGroup(r.db.WithContext(ctx)).Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// FindChildren loads every child of parentID in creation order.
func (r *GroupRepository) FindChildren(ctx context.Context, parentID string) ([]model.Group, error) {
	var groups []model.Group
	err := preloadGroup(r.db.WithContext(ctx)).
		Where("parent_group_id = ?", parentID).
		Order("created_at ASC, id ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// FindTopLevelByMember loads every group without a parent that userID belongs to.
func (r *GroupRepository) FindTopLevelByMember(ctx context.Context, userID string) ([]model.Group, error) {
	var groups []model.Group
	err := preloadGroup(r.db.WithContext(ctx)).
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ? AND groups.parent_group_id IS NULL", userID).
		Order("groups.created_at ASC, groups.id ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// UpdateName renames a group.
func (r *GroupRepository) UpdateName(ctx context.Context, id, name string, notices ...*model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Group{}).Where("id = ?", id).Update("name", name)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return createNotices(tx, notices)
	})
}

// DeleteCascade deletes rootID, every group whose parent is rootID, and every
// member, item and message addressed to any of them. The children are read
// under the root's row lock inside the same transaction, so a child created
// concurrently is either deleted here or refused by Create.
func (r *GroupRepository) DeleteCascade(ctx context.Context, rootID string) (*CascadeResult, error) {
	result := &CascadeResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGroup(tx, rootID); err != nil {
			return err
		}
		var childIDs []string
		err := tx.Model(&model.Group{}).
			Where("parent_group_id = ?", rootID).
			Order("created_at ASC, id ASC").
			Pluck("id", &childIDs).Error
		if err != nil {
			return err
		}
		ids := append([]string{rootID}, childIDs...)

		res := tx.Where("id = ? OR parent_group_id = ?", rootID, rootID).Delete(&model.Group{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		result.DeletedGroups = ids

		if err := tx.Where("group_id IN ?", ids).Delete(&model.Member{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id IN ?", ids).Delete(&model.Item{}).Error; err != nil {
			return err
		}
		res = tx.Where("group_id IN ?", ids).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		result.DeletedMessages = res.RowsAffected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddMembers inserts members, possibly across several groups, atomically.
// A duplicate (group, user) pair fails with gorm.ErrDuplicatedKey.
func (r *GroupRepository) AddMembers(ctx context.Context, members []model.Member, notices ...*model.Message) error {
	if len(members) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&members).Error; err != nil {
			return err
		}
		return createNotices(tx, notices)
	})
}

// RemoveMember removes userID from every group in groupIDs and returns the
// number of memberships removed.
func (r *GroupRepository) RemoveMember(ctx context.Context, groupIDs []string, userID string, notices ...*model.Message) (int64, error) {
	var removed int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("group_id IN ? AND user_id = ?", groupIDs, userID).Delete(&model.Member{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return createNotices(tx, notices)
	})
	return removed, err
}

// UpdatePermissions replaces the permission set of one member.
func (r *GroupRepository) UpdatePermissions(ctx context.Context, groupID, userID string, perms permission.Set) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var member model.Member
		err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
		if err != nil {
			return err
		}
		member.Permissions = perms.Clone()
		return tx.Save(&member).Error
	})
}

// MarkRead records the time of the oldest message userID has not yet read.
func (r *GroupRepository) MarkRead(ctx context.Context, groupID, userID string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.Member{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Update("oldest_read_message", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
