package domain

import (
	"fmt"
	"strings"
)

// EventType identifies a captured interaction kind
type EventType string

const (
	EventClick     EventType = "click"
	EventKeydown   EventType = "keydown"
	EventMousemove EventType = "mousemove"
	EventScroll    EventType = "scroll"
)

// Discrete reports whether the event type triggers a screenshot capture.
// Only discrete interactions (click, keydown) do; high-frequency types
// would blow the storage budget.
func (t EventType) Discrete() bool {
	return t == EventClick || t == EventKeydown
}

// Valid reports whether the event type is one the recorder accepts
func (t EventType) Valid() bool {
	switch t {
	case EventClick, EventKeydown, EventMousemove, EventScroll:
		return true
	}
	return false
}

// Event is one captured interaction record. Timestamp is milliseconds
// elapsed since session start; events are immutable once appended.
type Event struct {
	Timestamp     int64     `json:"timestamp"`
	Type          EventType `json:"type"`
	Selector      string    `json:"selector,omitempty"`
	X             int       `json:"x,omitempty"`
	Y             int       `json:"y,omitempty"`
	Key           string    `json:"key,omitempty"`
	ScreenshotRef string    `json:"screenshotRef,omitempty"`
}

// Screenshot is a compressed viewport image tied to a session-relative
// timestamp. Image holds raw encoded bytes; DataURI is populated at read
// time by backends that store raw bytes.
type Screenshot struct {
	Timestamp int64  `json:"timestamp"`
	Image     []byte `json:"-"`
	DataURI   string `json:"dataUri,omitempty"`
}

// PathNode is one DOM ancestor reported by the in-page shim, target first
type PathNode struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
}

// selectorDepth bounds how many ancestors contribute to a derived selector
const selectorDepth = 3

// DeriveSelector builds a bounded CSS-ish path from an ancestor chain
// (target element first). At most three levels are used, and the walk stops
// early at the first element carrying an id, which anchors the selector.
func DeriveSelector(path []PathNode) string {
	if len(path) == 0 {
		return ""
	}
	var parts []string
	for i, node := range path {
		if i >= selectorDepth {
			break
		}
		tag := strings.ToLower(node.Tag)
		if tag == "" {
			tag = "*"
		}
		if node.ID != "" {
			parts = append(parts, fmt.Sprintf("%s#%s", tag, node.ID))
			break
		}
		if len(node.Classes) > 0 {
			parts = append(parts, fmt.Sprintf("%s.%s", tag, node.Classes[0]))
			continue
		}
		parts = append(parts, tag)
	}
	// parts were collected target-outward; selectors read outer-to-target
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

// NearestScreenshot returns the index of the screenshot whose timestamp is
// closest to ts, preferring an exact match and breaking distance ties toward
// the earlier candidate. Returns -1 for an empty slice.
func NearestScreenshot(shots []Screenshot, ts int64) int {
	best := -1
	var bestDiff int64
	for i, s := range shots {
		if s.Timestamp == ts {
			return i
		}
		diff := s.Timestamp - ts
		if diff < 0 {
			diff = -diff
		}
		if best == -1 || diff < bestDiff || (diff == bestDiff && s.Timestamp < shots[best].Timestamp) {
			best = i
			bestDiff = diff
		}
	}
	return best
}
