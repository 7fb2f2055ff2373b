// Package realtime defines the events pushed to connected chat clients.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
)

type EventType string

const (
	EventMessage       EventType = "message"
	EventGroupUpdated  EventType = "group_updated"
	EventGroupDeleted  EventType = "group_deleted"
	EventMemberChanged EventType = "member_changed"
)

// Event is published on the channel of one group. Recipients lists the user
// ids allowed to receive it; delivery never widens past that list.
type Event struct {
	Type       EventType       `json:"type"`
	GroupID    string          `json:"groupId"`
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEvent encodes payload into an Event.
func NewEvent(typ EventType, groupID string, recipients []string, payload any) (Event, error) {
	ev := Event{Type: typ, GroupID: groupID, Recipients: recipients}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Publisher fans events out to every node holding client connections.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const channelPrefix = "group:"

// ChannelPattern matches every group channel.
const ChannelPattern = channelPrefix + "*"

// Channel names the pub/sub channel of a group.
func Channel(groupID string) string {
	return channelPrefix + groupID
}

// GroupFromChannel is the inverse of Channel.
func GroupFromChannel(channel string) (string, bool) {
	return strings.CutPrefix(channel, channelPrefix)
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
