package notify

import (
	"context"
	"sync"
)

// MemorySource keeps notifications in insertion order in process memory.
type MemorySource struct {
	mu    sync.RWMutex
	items []Notification
}

// NewMemorySource seeds a MemorySource with items, keeping their order.
func NewMemorySource(items ...Notification) *MemorySource {
	seeded := make([]Notification, len(items))
	copy(seeded, items)
	return &MemorySource{items: seeded}
}

// Append records a new notification after the existing ones.
func (s *MemorySource) Append(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
}

// ForUser returns userID's notifications in insertion order.
func (s *MemorySource) ForUser(ctx context.Context, userID string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for _, n := range s.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead persists the read flag for a notification owned by userID.
func (s *MemorySource) MarkRead(ctx context.Context, userID, notificationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == notificationID && s.items[i].UserID == userID {
			s.items[i].Read = true
			return nil
		}
	}
	return nil
}

var (
	_ Source     = (*MemorySource)(nil)
	_ ReadMarker = (*MemorySource)(nil)
)
