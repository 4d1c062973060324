package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rewearify/rewearify/internal/api"
)

// RemoteSource reads notifications from the backend API. The client's token
// source decides whose notifications come back.
type RemoteSource struct {
	client *api.Client
}

// NewRemoteSource constructs a RemoteSource over client.
func NewRemoteSource(client *api.Client) *RemoteSource {
	return &RemoteSource{client: client}
}

type listReply struct {
	Notifications []Notification `json:"notifications"`
}

// ForUser fetches the caller's notifications and keeps those owned by userID.
func (s *RemoteSource) ForUser(ctx context.Context, userID string) ([]Notification, error) {
	var reply listReply
	if err := s.client.Do(ctx, http.MethodGet, "/api/notifications", nil, &reply); err != nil {
		return nil, fmt.Errorf("notify: list notifications: %w", err)
	}
	out := make([]Notification, 0, len(reply.Notifications))
	for _, n := range reply.Notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead persists the read flag remotely.
func (s *RemoteSource) MarkRead(ctx context.Context, userID, notificationID string) error {
	path := "/api/notifications/" + url.PathEscape(notificationID) + "/read"
	if err := s.client.Do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("notify: mark %s read: %w", notificationID, err)
	}
	return nil
}

var (
	_ Source     = (*RemoteSource)(nil)
	_ ReadMarker = (*RemoteSource)(nil)
)
