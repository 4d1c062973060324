package notify

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the notifications table. seq preserves insertion order.
const Schema = `
CREATE TABLE IF NOT EXISTS notifications (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	user_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	title      TEXT NOT NULL,
	message    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	read       BOOLEAN NOT NULL DEFAULT FALSE,
	action_url TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS notifications_user_seq_idx ON notifications (user_id, seq);
`

// Querier is the subset of pgxpool.Pool used by PGSource.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGSource reads notifications from PostgreSQL.
type PGSource struct {
	db Querier
}

// NewPGSource constructs a PGSource. Pass a *pgxpool.Pool in production.
func NewPGSource(db Querier) *PGSource {
	return &PGSource{db: db}
}

// EnsureSchema creates the table when missing.
func (s *PGSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("notify: ensure schema: %w", err)
	}
	return nil
}

// ForUser returns userID's notifications ordered by insertion.
func (s *PGSource) ForUser(ctx context.Context, userID string) ([]Notification, error) {
	const query = `
		SELECT id, user_id, type, title, message, created_at, read, action_url
		FROM notifications
		WHERE user_id = $1
		ORDER BY seq ASC`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("notify: query notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Timestamp, &n.Read, &n.ActionURL); err != nil {
			return nil, fmt.Errorf("notify: scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate notifications: %w", err)
	}
	return out, nil
}

// MarkRead sets read on a notification owned by userID. It never clears it.
func (s *PGSource) MarkRead(ctx context.Context, userID, notificationID string) error {
	const query = `
		UPDATE notifications
		SET read = TRUE
		WHERE id = $1 AND user_id = $2 AND read = FALSE`

	if _, err := s.db.Exec(ctx, query, notificationID, userID); err != nil {
		return fmt.Errorf("notify: mark read: %w", err)
	}
	return nil
}

// Insert appends a notification; an existing id is left unchanged.
func (s *PGSource) Insert(ctx context.Context, n Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, type, title, message, created_at, read, action_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.Exec(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Message, n.Timestamp, n.Read, n.ActionURL)
	if err != nil {
		return fmt.Errorf("notify: insert %s: %w", n.ID, err)
	}
	return nil
}

var (
	_ Source     = (*PGSource)(nil)
	_ ReadMarker = (*PGSource)(nil)
)
