package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/rewearify/rewearify/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (p SendEmailPayload) validate() error {
	if strings.TrimSpace(p.To) == "" {
		return errors.New("jobs: email recipient required")
	}
	if strings.ContainsAny(p.To, "\r\n") || strings.ContainsAny(p.Subject, "\r\n") {
		return errors.New("jobs: header injection in email payload")
	}
	return nil
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

// Sender delivers a rendered email.
type Sender interface {
	Send(ctx context.Context, msg SendEmailPayload) error
}

// SMTPSender relays mail through a plain SMTP server such as Mailpit.
type SMTPSender struct {
	Host string
	Port int
	From string
	Auth smtp.Auth
}

// Addr returns host:port of the relay.
func (s SMTPSender) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Send dials the relay and transmits msg.
func (s SMTPSender) Send(ctx context.Context, msg SendEmailPayload) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("jobs: dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("jobs: smtp handshake: %w", err)
	}
	defer client.Close()

	if s.Auth != nil {
		if err := client.Auth(s.Auth); err != nil {
			return fmt.Errorf("jobs: smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.From); err != nil {
		return fmt.Errorf("jobs: smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("jobs: smtp rcpt: %w", err)
	}
	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("jobs: smtp data: %w", err)
	}
	if _, err := wc.Write(s.render(msg)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("jobs: smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("jobs: smtp close data: %w", err)
	}
	return client.Quit()
}

func (s SMTPSender) render(msg SendEmailPayload) []byte {
	var b strings.Builder
	b.WriteString("From: " + s.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// EmailHandler processes TaskTypeSendEmail tasks.
type EmailHandler struct {
	sender  Sender
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewEmailHandler constructs an EmailHandler.
func NewEmailHandler(sender Sender, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailHandler{sender: sender, logger: logger}
}

// WithMetrics records delivery attempts in m.
func (h *EmailHandler) WithMetrics(m *jobmetrics.Metrics) *EmailHandler {
	h.metrics = m
	return h
}

// Handle decodes the payload and hands it to the sender. Malformed payloads are
// not retried.
func (h *EmailHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Warn("discard malformed email task", slog.Any("error", err))
		return fmt.Errorf("jobs: decode email payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.validate(); err != nil {
		h.logger.Warn("discard invalid email task", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	tracker := h.metrics.Track(TaskTypeSendEmail)
	if err := tracker.End(h.sender.Send(ctx, payload)); err != nil {
		h.logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	h.logger.Info("email sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}
