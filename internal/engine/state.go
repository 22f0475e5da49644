package engine

import (
	"github.com/MrSnakeDoc/marksync/internal/domain"
	"github.com/MrSnakeDoc/marksync/internal/realtime"
)

// State is the observable snapshot handed to the presentation layer.
type State struct {
	Identity  string            `json:"identity"`
	Bookmarks []domain.Bookmark `json:"bookmarks"`
	Loading   bool              `json:"loading"`
	Adding    bool              `json:"adding"`
	Removing  []string          `json:"removing"`
	Error     string            `json:"error,omitempty"`
	Realtime  realtime.Status   `json:"realtime"`
}

// Busy reports whether any operation is in flight.
func (s State) Busy() bool {
	return s.Loading || s.Adding || len(s.Removing) > 0
}
