package changes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntityKind names the entity an event is about.
type EntityKind string

const (
	KindMO   EntityKind = "MO"
	KindPRM  EntityKind = "PRM"
	KindTMO  EntityKind = "TMO"
	KindTPRM EntityKind = "TPRM"
)

// Action is the transition an event reports.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Key is the routing key of an event, "<EntityKind>:<action>".
type Key struct {
	Kind   EntityKind
	Action Action
}

func (k Key) String() string {
	return string(k.Kind) + ":" + string(k.Action)
}

// ParseKey parses a routing key.
func ParseKey(s string) (Key, error) {
	kind, action, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, fmt.Errorf("malformed event key %q", s)
	}
	k := Key{Kind: EntityKind(kind), Action: Action(action)}
	switch k.Kind {
	case KindMO, KindPRM, KindTMO, KindTPRM:
	default:
		return Key{}, fmt.Errorf("unknown entity kind in key %q", s)
	}
	switch k.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return Key{}, fmt.Errorf("unknown action in key %q", s)
	}
	return k, nil
}

// Event is one decoded change message.
type Event struct {
	Topic   string
	Key     Key
	Payload []byte
}

type batch[T any] struct {
	Objects []T `json:"objects"`
}

// decodeBatch reads the records under the "objects" field.
func decodeBatch[T any](payload []byte) ([]T, error) {
	var b batch[T]
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return b.Objects, nil
}
