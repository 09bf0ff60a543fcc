package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
)

// StreamManager fans session diffs out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // session key -> subscribers
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
	}
}

// Subscribe registers a buffered channel for a session's diffs.
func (m *StreamManager) Subscribe(key string) (<-chan string, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan string, 16)
	if m.subscribers[key] == nil {
		m.subscribers[key] = make(map[chan string]struct{})
	}
	m.subscribers[key][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers[key], ch)
			if len(m.subscribers[key]) == 0 {
				delete(m.subscribers, key)
			}
			close(ch)
		})
	}
}

// Broadcast sends a diff to the subscribers of its session.
// Slow subscribers miss events instead of blocking the caller.
func (m *StreamManager) Broadcast(diff *domain.SessionDiff) {
	if diff == nil {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := m.subscribers[diff.Key]
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		slog.Error("failed to encode session diff", "session_key", diff.Key, "err", err)
		return
	}
	for ch := range subs {
		select {
		case ch <- string(data):
		default:
		}
	}
}

// Subscribers counts the open streams of a session.
func (m *StreamManager) Subscribers(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[key])
}
