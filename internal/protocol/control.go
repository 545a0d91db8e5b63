package protocol

import (
	"fmt"
	"strings"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionRemove Action = "remove"
)

// Control is the mirror->origin registration message.
type Control struct {
	Type   string `json:"type"`
	Action Action `json:"action"`
}

func (c Control) Validate() error {
	if strings.TrimSpace(c.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidControl)
	}
	if c.Action != ActionAdd && c.Action != ActionRemove {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidControl, c.Action)
	}
	return nil
}

// Map renders c as the plain object sent over a channel.
func (c Control) Map() map[string]any {
	return map[string]any{"type": c.Type, "action": string(c.Action)}
}

// ParseControl accepts a Control value or its plain-object form.
func ParseControl(v any) (Control, error) {
	var c Control
	switch t := v.(type) {
	case Control:
		c = t
	case *Control:
		if t == nil {
			return Control{}, fmt.Errorf("%w: nil", ErrInvalidControl)
		}
		c = *t
	case map[string]any:
		typ, _ := t["type"].(string)
		c.Type = typ
		switch a := t["action"].(type) {
		case string:
			c.Action = Action(a)
		case Action:
			c.Action = a
		}
	default:
		return Control{}, fmt.Errorf("%w: unexpected shape %T", ErrInvalidControl, v)
	}
	if err := c.Validate(); err != nil {
		return Control{}, err
	}
	return c, nil
}

// SnapshotType returns the event type carried by a snapshot.
func SnapshotType(v any) (map[string]any, string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("%w: unexpected shape %T", ErrInvalidSnapshot, v)
	}
	typ, ok := m["type"].(string)
	if !ok || typ == "" {
		return nil, "", fmt.Errorf("%w: missing type", ErrInvalidSnapshot)
	}
	return m, typ, nil
}
