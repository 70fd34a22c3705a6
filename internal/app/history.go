package app

import (
	"sync"

	"github.com/dkeye/Parley/internal/domain"
)

const DefaultHistorySize = 200

// History keeps the most recent messages of each channel in memory, oldest
// first. Older messages fall off once a channel holds size of them.
type History struct {
	mu       sync.RWMutex
	size     int
	channels map[domain.ChannelID][]domain.Message
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{
		size:     size,
		channels: make(map[domain.ChannelID][]domain.Message),
	}
}

func (h *History) Append(m domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := append(h.channels[m.ChannelID], m)
	if over := len(list) - h.size; over > 0 {
		list = append([]domain.Message(nil), list[over:]...)
	}
	h.channels[m.ChannelID] = list
}

// Recent returns up to limit of the newest messages, oldest first. limit <= 0
// returns everything kept.
func (h *History) Recent(ch domain.ChannelID, limit int) []domain.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.channels[ch]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]domain.Message{}, list...)
}
