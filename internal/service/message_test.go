package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gopher0727/GiftList/internal/model"
	"github.com/Gopher0727/GiftList/internal/permission"
	"github.com/Gopher0727/GiftList/internal/realtime"
)

func TestSendMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.BasicList, "Groceries", nil)
	e.join(t, alice, bob, list.ID)

	msg, err := e.messages.SendMessage(ctx, bob, list.ID, "  anyone at the shop? ")
	require.NoError(t, err)
	assert.Equal(t, "anyone at the shop?", msg.Body)
	assert.Equal(t, model.MessageUser, msg.Kind)
	assert.Equal(t, "Bob", msg.AuthorName)
	assert.NotZero(t, msg.ID)

	ev, ok := e.pub.last(realtime.EventMessage)
	require.True(t, ok)
	assert.Equal(t, list.ID, ev.GroupID)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ev.Recipients)
	var payload model.Message
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.Equal(t, msg.ID, payload.ID)

	_, err = e.messages.SendMessage(ctx, bob, list.ID, "")
	assert.ErrorIs(t, err, ErrInvalidBody)

	_, err = e.messages.SendMessage(ctx, carol, list.ID, "hi")
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = e.messages.SendMessage(ctx, bob, "missing", "hi")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestParentGroupsHaveNoChat(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	family := e.create(t, alice, permission.GiftGroup, "Family", nil)

	_, err := e.messages.SendMessage(ctx, alice, family.ID, "hello")
	assert.ErrorIs(t, err, ErrMessagesUnsupported)
	_, _, err = e.messages.ListMessages(ctx, alice, family.ID, 0, 0)
	assert.ErrorIs(t, err, ErrMessagesUnsupported)
}

func TestListMessagesPaging(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.BasicList, "Groceries", nil)
	for i := 0; i < 4; i++ {
		_, err := e.messages.SendMessage(ctx, alice, list.ID, fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
	}
	// created notice + msg 0..3

	page, more, err := e.messages.ListMessages(ctx, alice, list.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, more)
	assert.Equal(t, "msg 2", page[0].Body)
	assert.Equal(t, "msg 3", page[1].Body)

	page, more, err = e.messages.ListMessages(ctx, alice, list.ID, page[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, more)
	assert.Equal(t, "msg 0", page[0].Body)

	page, more, err = e.messages.ListMessages(ctx, alice, list.ID, page[0].ID, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.False(t, more)
	assert.True(t, page[0].IsSystem())
}

func TestMarkRead(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	list := e.create(t, alice, permission.BasicList, "Groceries", nil)

	at := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	require.NoError(t, e.messages.MarkRead(ctx, alice, list.ID, at))

	view, err := e.groups.GetGroup(ctx, alice, list.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Members[0].OldestReadMessage)
	assert.True(t, at.Equal(*view.Members[0].OldestReadMessage))

	assert.ErrorIs(t, e.messages.MarkRead(ctx, bob, list.ID, at), ErrNotAMember)
}
