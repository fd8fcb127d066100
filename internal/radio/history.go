package radio

import "github.com/llehouerou/autoplay/internal/media"

// History is the bounded, append-only list of items a session has finished.
// The oldest entries are trimmed from the head.
type History struct {
	items   []media.Item
	maxSize int
}

// NewHistory creates a history that keeps at most maxSize items.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &History{
		items:   make([]media.Item, 0, maxSize),
		maxSize: maxSize,
	}
}

// Push appends a finished item and trims the head if over capacity.
func (h *History) Push(item media.Item) {
	h.items = append(h.items, item.Clone())
	if len(h.items) > h.maxSize {
		excess := len(h.items) - h.maxSize
		h.items = append(h.items[:0], h.items[excess:]...)
	}
}

// Items returns a copy of the history, oldest first.
func (h *History) Items() []media.Item {
	out := make([]media.Item, len(h.items))
	copy(out, h.items)
	return out
}

// Last returns the most recently finished item, or nil.
func (h *History) Last() *media.Item {
	if len(h.items) == 0 {
		return nil
	}
	it := h.items[len(h.items)-1]
	return &it
}

// Len returns the number of stored items.
func (h *History) Len() int {
	return len(h.items)
}

// Clear drops every item.
func (h *History) Clear() {
	h.items = h.items[:0]
}
