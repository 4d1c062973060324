package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/rewearify/rewearify/internal/auth"
)

const resetSubject = "Reset your ReWearify password"

// Enqueuer is the subset of Client used by ResetMailer.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// ResetMailer queues password reset links as mail:send tasks.
type ResetMailer struct {
	queue Enqueuer
}

var _ auth.Mailer = (*ResetMailer)(nil)

// NewResetMailer constructs a ResetMailer over queue.
func NewResetMailer(queue Enqueuer) *ResetMailer {
	return &ResetMailer{queue: queue}
}

// SendPasswordReset renders msg and enqueues it.
func (m *ResetMailer) SendPasswordReset(ctx context.Context, msg auth.PasswordReset) error {
	payload := SendEmailPayload{
		To:      msg.Email,
		Subject: resetSubject,
		Body:    resetBody(msg),
	}
	if _, err := m.queue.EnqueueSendEmail(ctx, payload); err != nil {
		return fmt.Errorf("jobs: enqueue reset mail: %w", err)
	}
	return nil
}

func resetBody(msg auth.PasswordReset) string {
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = "there"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", name)
	b.WriteString("We received a request to reset the password for your ReWearify account.\n")
	fmt.Fprintf(&b, "Open the link below to choose a new password:\n\n%s\n\n", msg.Link)
	if !msg.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "The link expires at %s.\n\n", msg.ExpiresAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	b.WriteString("If you did not ask for this, you can ignore this email.\n")
	return b.String()
}
