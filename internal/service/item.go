package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GiftList/internal/censor"
	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
	"github.com/Gopher0727/GiftList/internal/repository"
)

// IItemService defines list item operations.
type IItemService interface {
	AddItem(ctx context.Context, who Identity, groupID string, kind model.ItemKind, body string, links []string) (*censor.ItemView, error)
	EditItem(ctx context.Context, who Identity, groupID, itemID string, kind model.ItemKind, body string, links []string) (*censor.ItemView, error)
	DeleteItem(ctx context.Context, who Identity, groupID, itemID string, kind model.ItemKind) error
	ToggleSelect(ctx context.Context, who Identity, groupID, itemID string, kind model.ItemKind) (*censor.ItemView, error)
}

// ItemService implements IItemService.
type ItemService struct {
	*core
}

// NewItemService creates a new IItemService instance
func NewItemService(d Deps) *ItemService {
	return &ItemService{core: newCore(d)}
}

// 每种条目对应的读写、选择权限
var (
	writePerm = map[model.ItemKind]permission.Permission{
		model.ItemRegular: permission.GroupRWListItems,
		model.ItemSecret:  permission.GroupRWSecretListItems,
	}
	selectPerm = map[model.ItemKind]permission.Permission{
		model.ItemRegular: permission.GroupSelectListItems,
		model.ItemSecret:  permission.GroupSelectSecretListItems,
	}
)

// itemGroup loads the group and checks that its variant holds items of kind.
func (s *ItemService) itemGroup(ctx context.Context, groupID string, kind model.ItemKind) (*model.Group, permission.Profile, error) {
	g, err := s.loadGroup(ctx, groupID, ErrGroupNotFound)
	if err != nil {
		return nil, permission.Profile{}, err
	}
	p, err := g.Profile()
	if err != nil {
		return nil, permission.Profile{}, fmt.Errorf("%w: %w", ErrConsistency, err)
	}
	switch kind {
	case model.ItemRegular:
		if !p.RegularItems {
			return nil, p, ErrItemKindUnsupported
		}
	case model.ItemSecret:
		if !p.SecretItems {
			return nil, p, ErrItemKindUnsupported
		}
	default:
		return nil, p, ErrItemKindUnsupported
	}
	return g, p, nil
}

// readers returns who may see a change to an item of kind. Secret items never
// reach members without secret access, which on a gift list is the owner.
func readers(g *model.Group, kind model.ItemKind) []string {
	if kind == model.ItemSecret {
		return holders(g, permission.GroupRWSecretListItems)
	}
	return holders(g, permission.GroupRListItems, permission.GroupRWListItems)
}

func (s *ItemService) itemChanged(ctx context.Context, g *model.Group, kind model.ItemKind, itemID, action string) {
	s.publish(ctx, realtime.EventGroupUpdated, g.ID, readers(g, kind), map[string]string{
		"itemId": itemID,
		"kind":   string(kind),
		"action": action,
	})
}

// itemView censors it for the caller. A caller who may act on an item without
// seeing it gets only its id back.
func (s *ItemService) itemView(ctx context.Context, g *model.Group, it *model.Item, viewerID string) (*censor.ItemView, error) {
	v, err := censor.CensorItem(g, it, viewerID)
	switch {
	case errors.Is(err, censor.ErrHidden):
		return &censor.ItemView{ID: it.ID}, nil
	case errors.Is(err, censor.ErrUnsupportedVariant):
		s.Log.ErrorContext(ctx, "item cannot be censored", zap.String("group_id", g.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrConsistency, err)
	case err != nil:
		return nil, err
	}
	return v, nil
}

// AddItem requires the write permission of kind and respects the group's cap.
// Secret items are capped per author.
func (s *ItemService) AddItem(ctx context.Context, who Identity, groupID string, kind model.ItemKind, body string, links []string) (*censor.ItemView, error) {
	body, err := validateBody(body, maxBodyLen)
	if err != nil {
		return nil, err
	}
	links, err = validateLinks(links)
	if err != nil {
		return nil, err
	}
	g, p, err := s.itemGroup(ctx, groupID, kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID, writePerm[kind]); err != nil {
		return nil, err
	}

	limit := repository.ItemCap{Max: g.MaxListItems}
	if kind == model.ItemSecret {
		limit = repository.ItemCap{Max: g.MaxSecretListItemsEach, PerAuthor: true}
	}
	if limit.Max <= 0 {
		// 旧数据没有上限时回落到配置
		items, secret := s.Limits.CapsFor(g.Variant)
		limit.Max = items
		if kind == model.ItemSecret {
			limit.Max = secret
		}
	}

	item := &model.Item{
		ID:        uuid.New().String(),
		GroupID:   g.ID,
		Kind:      kind,
		AuthorID:  who.ID,
		Body:      body,
		Links:     links,
		CreatedAt: s.now(),
	}
	if !p.BoolSelection {
		item.SelectedBy = []string{}
	}
	if err := s.Items.AddCapped(ctx, item, limit); err != nil {
		if errors.Is(err, repository.ErrCapReached) {
			return nil, ErrItemCapReached
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to add item: %w", err)
	}

	s.Metrics.ItemCreated(string(kind))
	s.Log.DebugContext(ctx, "item added", zap.String("group_id", g.ID), zap.String("item_id", item.ID), zap.String("kind", string(kind)))
	s.itemChanged(ctx, g, kind, item.ID, "added")
	return s.itemView(ctx, g, item, who.ID)
}

// EditItem replaces body and links. Only the author may edit.
func (s *ItemService) EditItem(ctx context.Context, who Identity, groupID, itemID string, kind model.ItemKind, body string, links []string) (*censor.ItemView, error) {
	body, err := validateBody(body, maxBodyLen)
	if err != nil {
		return nil, err
	}
	links, err = validateLinks(links)
	if err != nil {
		return nil, err
	}
	g, _, err := s.itemGroup(ctx, groupID, kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID, writePerm[kind]); err != nil {
		return nil, err
	}
	item, ok := g.Item(itemID, kind)
	if !ok {
		return nil, ErrItemNotFound
	}
	if item.AuthorID != who.ID {
		return nil, ErrNotItemAuthor
	}

	item.Body = body
	item.Links = links
	if err := s.Items.Update(ctx, item); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	s.itemChanged(ctx, g, kind, item.ID, "edited")
	return s.itemView(ctx, g, item, who.ID)
}

// DeleteItem removes an item. Only the author may delete.
func (s *ItemService) DeleteItem(ctx context.Context, who Identity, groupID, itemID string, kind model.ItemKind) error {
	g, _, err := s.itemGroup(ctx, groupID, kind)
	if err != nil {
		return err
	}
	if _, err := s.authorize(g, who.ID, writePerm[kind]); err != nil {
		return err
	}
	item, ok := g.Item(itemID, kind)
	if !ok {
		return ErrItemNotFound
	}
	if item.AuthorID != who.ID {
		return ErrNotItemAuthor
	}

	if err := s.Items.Delete(ctx, g.ID, itemID, kind); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrItemNotFound
		}
		return fmt.Errorf("failed to delete item: %w", err)
	}
	s.itemChanged(ctx, g, kind, itemID, "deleted")
	return nil
}

// ToggleSelect requires the select permission of kind. On boolean-selection
// variants it flips the selected flag, elsewhere it toggles the caller in
// selectedBy.
func (s *ItemService) ToggleSelect(ctx context.Context, who Identity, groupID, itemID string, kind model.ItemKind) (*censor.ItemView, error) {
	g, p, err := s.itemGroup(ctx, groupID, kind)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorize(g, who.ID, selectPerm[kind]); err != nil {
		return nil, err
	}

	item, err := s.Items.UpdateSelection(ctx, g.ID, itemID, kind, func(it *model.Item) {
		if p.BoolSelection {
			it.Selected = !it.Selected
			return
		}
		it.ToggleSelectedBy(who.ID)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to update selection: %w", err)
	}

	recipients := holders(g, permission.GroupSelectListItems)
	if kind == model.ItemSecret {
		recipients = readers(g, kind)
	}
	s.publish(ctx, realtime.EventGroupUpdated, g.ID, recipients, map[string]string{
		"itemId": itemID,
		"kind":   string(kind),
		"action": "selected",
	})
	return s.itemView(ctx, g, item, who.ID)
}
