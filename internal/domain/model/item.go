package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WorkItem is a theme or question held by the rotating item queue. Items
// bound to an image carry its URL in Image; plain consumers skip them.
//
// On the wire an item without an image is a bare JSON string, otherwise an
// object {"prompt": ..., "image": ...}.
type WorkItem struct {
	Prompt string `json:"prompt"`
	Image  string `json:"image,omitempty"`
}

// HasMedia reports whether the item carries an attached media marker.
func (w WorkItem) HasMedia() bool { return w.Image != "" }

// IsZero reports whether the item is empty.
func (w WorkItem) IsZero() bool { return w.Prompt == "" && w.Image == "" }

// Text builds an item without media.
func Text(prompt string) WorkItem { return WorkItem{Prompt: prompt} }

// MarshalJSON implements json.Marshaler.
func (w WorkItem) MarshalJSON() ([]byte, error) {
	if !w.HasMedia() {
		return json.Marshal(w.Prompt)
	}
	type plain WorkItem
	return json.Marshal(plain(w))
}

// UnmarshalJSON implements json.Unmarshaler.
func (w *WorkItem) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("work item: empty input")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*w = WorkItem{Prompt: s}
		return nil
	case '{':
		type plain WorkItem
		var p plain
		if err := json.Unmarshal(b, &p); err != nil {
			return err
		}
		*w = WorkItem(p)
		return nil
	default:
		return fmt.Errorf("work item: expected string or object, got %s", string(b[:1]))
	}
}
