package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Ledger holds the notifications of the current identity.
type Ledger struct {
	mu     sync.Mutex
	source Source
	logger *slog.Logger
	owner  string
	items  []Notification
}

// NewLedger constructs an empty Ledger reading from source.
func NewLedger(source Source, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{source: source, logger: logger}
}

// Hydrate replaces the contents with userID's notifications. An empty userID
// clears the ledger. The source order is kept as-is.
func (l *Ledger) Hydrate(ctx context.Context, userID string) error {
	if userID == "" || l.source == nil {
		l.Clear()
		return nil
	}
	items, err := l.source.ForUser(ctx, userID)
	if err != nil {
		l.Clear()
		return fmt.Errorf("notify: hydrate %s: %w", userID, err)
	}
	owned := make([]Notification, 0, len(items))
	for _, n := range items {
		if n.UserID == userID {
			owned = append(owned, n)
		}
	}
	l.mu.Lock()
	l.owner = userID
	l.items = owned
	l.mu.Unlock()
	return nil
}

// Reset seeds the ledger for userID without consulting the source.
func (l *Ledger) Reset(userID string, items []Notification) {
	owned := make([]Notification, 0, len(items))
	for _, n := range items {
		if n.UserID == userID {
			owned = append(owned, n)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owner = userID
	l.items = owned
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owner = ""
	l.items = nil
}

// MarkRead flips the notification with id to read. Unknown ids are ignored.
// It reports whether a transition took place.
func (l *Ledger) MarkRead(ctx context.Context, id string) bool {
	l.mu.Lock()
	idx := -1
	for i := range l.items {
		if l.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 || l.items[idx].Read || l.items[idx].UserID != l.owner {
		l.mu.Unlock()
		return false
	}
	l.items[idx].Read = true
	owner := l.owner
	l.mu.Unlock()

	if marker, ok := l.source.(ReadMarker); ok {
		if err := marker.MarkRead(ctx, owner, id); err != nil {
			l.logger.Warn("persist notification read flag",
				slog.String("notification_id", id),
				slog.Any("error", err))
		}
	}
	return true
}

// UnreadCount counts unread notifications in the current contents.
func (l *Ledger) UnreadCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, n := range l.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// Items returns a copy of the current contents.
func (l *Ledger) Items() []Notification {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Notification, len(l.items))
	copy(out, l.items)
	return out
}

// Owner returns the user the ledger is scoped to, or "" when empty.
func (l *Ledger) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}
