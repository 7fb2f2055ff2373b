package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GiftList/config"
	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
)

func TestScenarioC_ChildItemCap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	family := e.create(t, alice, permission.GiftGroup, "Family", nil)
	child := e.create(t, alice, permission.GiftGroupChild, "Family/2024", &family.ID)
	require.NotNil(t, child.MaxListItems)
	require.Equal(t, 20, *child.MaxListItems)

	var first string
	for i := 0; i < 20; i++ {
		item, err := e.items.AddItem(ctx, alice, child.ID, model.ItemRegular, fmt.Sprintf("gift %d", i), nil)
		require.NoError(t, err)
		if i == 0 {
			first = item.ID
		}
	}
	_, err := e.items.AddItem(ctx, alice, child.ID, model.ItemRegular, "one too many", nil)
	require.ErrorIs(t, err, ErrItemCapReached)

	require.NoError(t, e.items.DeleteItem(ctx, alice, child.ID, first, model.ItemRegular))
	_, err = e.items.AddItem(ctx, alice, child.ID, model.ItemRegular, "replacement", nil)
	require.NoError(t, err)

	view, err := e.groups.GetGroup(ctx, alice, child.ID)
	require.NoError(t, err)
	assert.Len(t, *view.ListItems, 20)
}

func TestScenarioD_SecretItemsHidden(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	family := e.create(t, alice, permission.GiftGroup, "Family", nil)
	child := e.create(t, alice, permission.GiftGroupChild, "Family/2024", &family.ID)
	e.join(t, alice, bob, family.ID)

	_, err := e.items.AddItem(ctx, alice, child.ID, model.ItemRegular, "bike", []string{"https://example.com/bike"})
	require.NoError(t, err)
	_, err = e.items.AddItem(ctx, alice, child.ID, model.ItemSecret, "surprise party", nil)
	require.NoError(t, err)

	bobView, err := e.groups.GetGroup(ctx, bob, child.ID)
	require.NoError(t, err)
	raw := encode(t, bobView)
	assert.NotContains(t, raw, "secretListItems")
	assert.Contains(t, raw, "listItems")

	aliceView, err := e.groups.GetGroup(ctx, alice, child.ID)
	require.NoError(t, err)
	raw = encode(t, aliceView)
	require.Contains(t, raw, "secretListItems")
	assert.Len(t, raw["secretListItems"], 1)

	// 父群组视图里的子群组同样按各自权限审查
	parentView, err := e.groups.GetGroup(ctx, bob, family.ID)
	require.NoError(t, err)
	require.Len(t, parentView.Children, 1)
	assert.NotContains(t, encode(t, parentView.Children[0]), "secretListItems")
}

func TestGiftListSelectionHiddenFromOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.GiftList, "Alice's wishes", nil)
	e.join(t, alice, bob, list.ID)

	item, err := e.items.AddItem(ctx, alice, list.ID, model.ItemRegular, "book", nil)
	require.NoError(t, err)
	assert.Nil(t, item.SelectedBy)

	selected, err := e.items.ToggleSelect(ctx, bob, list.ID, item.ID, model.ItemRegular)
	require.NoError(t, err)
	require.NotNil(t, selected.SelectedBy)
	assert.Equal(t, []string{"bob"}, *selected.SelectedBy)

	ev, ok := e.pub.last(realtime.EventGroupUpdated)
	require.True(t, ok)
	assert.Equal(t, []string{"bob"}, ev.Recipients)

	_, err = e.items.ToggleSelect(ctx, alice, list.ID, item.ID, model.ItemRegular)
	assert.ErrorIs(t, err, ErrInsufficientPermission)

	edited, err := e.items.EditItem(ctx, alice, list.ID, item.ID, model.ItemRegular, "hardcover book", nil)
	require.NoError(t, err)
	assert.Nil(t, edited.SelectedBy)
	assert.Equal(t, "hardcover book", edited.Body)

	view, err := e.groups.GetGroup(ctx, alice, list.ID)
	require.NoError(t, err)
	items := encode(t, view)["listItems"].([]any)
	require.Len(t, items, 1)
	assert.NotContains(t, items[0], "selectedBy")

	unselected, err := e.items.ToggleSelect(ctx, bob, list.ID, item.ID, model.ItemRegular)
	require.NoError(t, err)
	assert.Empty(t, *unselected.SelectedBy)
}

func TestBasicListBoolSelection(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.BasicList, "Groceries", nil)
	e.join(t, alice, bob, list.ID)

	item, err := e.items.AddItem(ctx, bob, list.ID, model.ItemRegular, "milk", nil)
	require.NoError(t, err)
	require.NotNil(t, item.Selected)
	assert.False(t, *item.Selected)
	assert.Nil(t, item.SelectedBy)

	item, err = e.items.ToggleSelect(ctx, alice, list.ID, item.ID, model.ItemRegular)
	require.NoError(t, err)
	assert.True(t, *item.Selected)

	item, err = e.items.ToggleSelect(ctx, bob, list.ID, item.ID, model.ItemRegular)
	require.NoError(t, err)
	assert.False(t, *item.Selected)

	_, err = e.items.ToggleSelect(ctx, bob, list.ID, "missing", model.ItemRegular)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestSecretItemsPerAuthorCap(t *testing.T) {
	e := openEnv(t, config.LimitsConfig{GiftListMaxSecretEach: 2})
	t.Cleanup(e.close)
	ctx := context.Background()
	list := e.create(t, alice, permission.GiftList, "Alice's wishes", nil)
	e.join(t, alice, bob, list.ID)
	e.join(t, alice, carol, list.ID)

	_, err := e.items.AddItem(ctx, alice, list.ID, model.ItemSecret, "peek", nil)
	require.ErrorIs(t, err, ErrInsufficientPermission)

	for i := 0; i < 2; i++ {
		_, err := e.items.AddItem(ctx, bob, list.ID, model.ItemSecret, fmt.Sprintf("idea %d", i), nil)
		require.NoError(t, err)
	}
	_, err = e.items.AddItem(ctx, bob, list.ID, model.ItemSecret, "idea 3", nil)
	require.ErrorIs(t, err, ErrItemCapReached)

	_, err = e.items.AddItem(ctx, carol, list.ID, model.ItemSecret, "carol's idea", nil)
	require.NoError(t, err)

	ev, ok := e.pub.last(realtime.EventGroupUpdated)
	require.True(t, ok)
	assert.NotContains(t, ev.Recipients, "alice")
	assert.ElementsMatch(t, []string{"bob", "carol"}, ev.Recipients)
}

func TestItemValidationAndKinds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.BasicList, "Groceries", nil)
	family := e.create(t, alice, permission.GiftGroup, "Family", nil)

	tests := []struct {
		name    string
		groupID string
		kind    model.ItemKind
		body    string
		links   []string
		want    error
	}{
		{"empty body", list.ID, model.ItemRegular, "  ", nil, ErrInvalidBody},
		{"body too long", list.ID, model.ItemRegular, strings.Repeat("x", 513), nil, ErrInvalidBody},
		{"too many links", list.ID, model.ItemRegular, "milk", make11Links(), ErrTooManyLinks},
		{"secret on basic list", list.ID, model.ItemSecret, "milk", nil, ErrItemKindUnsupported},
		{"items on a parent", family.ID, model.ItemRegular, "milk", nil, ErrItemKindUnsupported},
		{"unknown kind", list.ID, model.ItemKind("bonus"), "milk", nil, ErrItemKindUnsupported},
		{"missing group", "missing", model.ItemRegular, "milk", nil, ErrGroupNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.items.AddItem(ctx, alice, tt.groupID, tt.kind, tt.body, tt.links)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	item, err := e.items.AddItem(ctx, alice, list.ID, model.ItemRegular, "milk", []string{" https://a ", "", "https://b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a", "https://b"}, item.Links)

	_, err = e.items.AddItem(ctx, bob, list.ID, model.ItemRegular, "eggs", nil)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func make11Links() []string {
	links := make([]string, 11)
	for i := range links {
		links[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	return links
}

func TestEditAndDeleteAuthorOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.BasicList, "Groceries", nil)
	e.join(t, alice, bob, list.ID)

	item, err := e.items.AddItem(ctx, alice, list.ID, model.ItemRegular, "milk", nil)
	require.NoError(t, err)

	_, err = e.items.EditItem(ctx, bob, list.ID, item.ID, model.ItemRegular, "oat milk", nil)
	assert.ErrorIs(t, err, ErrNotItemAuthor)
	assert.ErrorIs(t, e.items.DeleteItem(ctx, bob, list.ID, item.ID, model.ItemRegular), ErrNotItemAuthor)

	_, err = e.items.EditItem(ctx, alice, list.ID, "missing", model.ItemRegular, "oat milk", nil)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.ErrorIs(t, e.items.DeleteItem(ctx, alice, list.ID, "missing", model.ItemRegular), ErrItemNotFound)

	edited, err := e.items.EditItem(ctx, alice, list.ID, item.ID, model.ItemRegular, "oat milk", []string{"https://shop"})
	require.NoError(t, err)
	assert.Equal(t, "oat milk", edited.Body)

	require.NoError(t, e.items.DeleteItem(ctx, alice, list.ID, item.ID, model.ItemRegular))
	assert.Zero(t, e.count(t, &model.Item{}))
}
