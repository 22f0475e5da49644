package domain

import "strings"

// EventKind is the operation a change event describes.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ParseEventKind accepts the kind in any letter case.
func ParseEventKind(s string) (EventKind, bool) {
	switch k := EventKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case EventInsert, EventUpdate, EventDelete:
		return k, true
	default:
		return "", false
	}
}

// ChangeEvent is a notification pushed by the remote store.
//
// New is present for insert and update. Old is present for delete, and for
// update when the source provides it. A delete's Old may carry nothing but
// the ID.
type ChangeEvent struct {
	Kind EventKind `json:"type"`
	New  *Bookmark `json:"new,omitempty"`
	Old  *Bookmark `json:"old,omitempty"`
}

// OldID returns the id carried by the old state, if any.
func (e ChangeEvent) OldID() string {
	if e.Old == nil {
		return ""
	}
	return e.Old.ID
}

// EventFilter selects which kinds a subscription delivers.
// An empty filter delivers everything.
type EventFilter struct {
	Kinds []EventKind
}

// Allows reports whether the filter lets kind through.
func (f EventFilter) Allows(kind EventKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ChannelStatus is reported by a live subscription.
type ChannelStatus string

const (
	ChannelSubscribed ChannelStatus = "SUBSCRIBED"
	ChannelError      ChannelStatus = "CHANNEL_ERROR"
	ChannelClosed     ChannelStatus = "CLOSED"
)

type (
	EventHandler  func(ChangeEvent)
	StatusHandler func(ChannelStatus, error)
)

// Subscription is a handle on a live change-event subscription.
// Close releases it and is safe to call more than once.
type Subscription interface {
	Close() error
}

// DefaultTopic is the change-event topic used when none is configured.
const DefaultTopic = "marksync:changes"
