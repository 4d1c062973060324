package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewearify/rewearify/internal/auth"
	jobmetrics "github.com/rewearify/rewearify/internal/jobs"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []SendEmailPayload
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg SendEmailPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type fakeQueue struct {
	payloads []SendEmailPayload
	err      error
}

func (q *fakeQueue) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	if _, err := NewSendEmailTask(payload); err != nil {
		return nil, err
	}
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{Queue: QueueDefault, Type: TaskTypeSendEmail}, nil
}

func TestNewSendEmailTask(t *testing.T) {
	task, err := NewSendEmailTask(SendEmailPayload{To: "sarah@email.com", Subject: "Hi", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSendEmail, task.Type())

	var decoded SendEmailPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, "sarah@email.com", decoded.To)

	_, err = NewSendEmailTask(SendEmailPayload{Subject: "no recipient"})
	require.Error(t, err)
	_, err = NewSendEmailTask(SendEmailPayload{To: "a@b.c", Subject: "x\r\nBcc: evil@b.c"})
	require.Error(t, err)
}

func TestEmailHandlerDelivers(t *testing.T) {
	sender := &recordingSender{}
	h := NewEmailHandler(sender, nil)

	task, err := NewSendEmailTask(SendEmailPayload{To: "michael@email.com", Subject: "Reset", Body: "link"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Reset", sender.sent[0].Subject)
}

func TestEmailHandlerSkipsRetryOnMalformedPayload(t *testing.T) {
	h := NewEmailHandler(&recordingSender{}, nil)
	err := h.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = h.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte(`{"subject":"x"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestEmailHandlerRetriesSenderFailure(t *testing.T) {
	boom := errors.New("relay down")
	h := NewEmailHandler(&recordingSender{err: boom}, nil)
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.c", Subject: "s"})
	require.NoError(t, err)

	err = h.Handle(context.Background(), task)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestResetMailerEnqueuesLink(t *testing.T) {
	queue := &fakeQueue{}
	mailer := NewResetMailer(queue)
	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := mailer.SendPasswordReset(context.Background(), auth.PasswordReset{
		Email:     "sarah@email.com",
		Name:      "Sarah Johnson",
		Link:      "http://localhost:3000/reset-password/abc123",
		ExpiresAt: expires,
	})
	require.NoError(t, err)
	require.Len(t, queue.payloads, 1)

	got := queue.payloads[0]
	assert.Equal(t, "sarah@email.com", got.To)
	assert.Equal(t, resetSubject, got.Subject)
	assert.Contains(t, got.Body, "Hi Sarah Johnson,")
	assert.Contains(t, got.Body, "http://localhost:3000/reset-password/abc123")
	assert.Contains(t, got.Body, "2026-03-01 12:00 UTC")
}

func TestResetMailerWrapsQueueFailure(t *testing.T) {
	boom := errors.New("redis gone")
	mailer := NewResetMailer(&fakeQueue{err: boom})
	err := mailer.SendPasswordReset(context.Background(), auth.PasswordReset{Email: "a@b.c"})
	assert.ErrorIs(t, err, boom)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthEndpoint(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		body      string
	}{
		{name: "no inspector", status: http.StatusOK, body: `"pending":0`},
		{name: "queue info", inspector: fakeInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Retry: 1}}, status: http.StatusOK, body: `"pending":3`},
		{name: "inspector error", inspector: fakeInspector{err: errors.New("down")}, status: http.StatusServiceUnavailable, body: "Queue unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, nil).MountRoutes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

// smtpSink accepts a single SMTP session and records the DATA section.
func smtpSink(t *testing.T) (addr string, data <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	out := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 sink ready")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
			switch verb {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 sink")
			case "MAIL", "RCPT", "RSET", "NOOP":
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, err := readDot(tp.R)
				if err != nil {
					return
				}
				out <- body
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()
	return ln.Addr().String(), out
}

func readDot(r *bufio.Reader) (string, error) {
	var b strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if line == ".\r\n" {
			return b.String(), nil
		}
		b.WriteString(line)
	}
}

func TestSMTPSenderSend(t *testing.T) {
	addr, data := smtpSink(t)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	sender := SMTPSender{Host: host, Port: portNum, From: "no-reply@rewearify.local"}
	assert.Equal(t, addr, sender.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sender.Send(ctx, SendEmailPayload{To: "sarah@email.com", Subject: "Reset", Body: "line one\nline two"}))

	select {
	case body := <-data:
		assert.Contains(t, body, "From: no-reply@rewearify.local\r\n")
		assert.Contains(t, body, "To: sarah@email.com\r\n")
		assert.Contains(t, body, "Subject: Reset\r\n")
		assert.Contains(t, body, "line one\r\nline two")
	case <-time.After(5 * time.Second):
		t.Fatal("smtp sink did not receive data")
	}
}

func TestSMTPSenderDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	sender := SMTPSender{Host: "127.0.0.1", Port: addr.Port, From: "x@y.z"}
	err = sender.Send(context.Background(), SendEmailPayload{To: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial smtp")
}

func TestEmailHandlerRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	h := NewEmailHandler(&recordingSender{}, nil).WithMetrics(metrics)

	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.c", Subject: "s"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(reg, "rewearify_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewMuxRoutesEmailTasks(t *testing.T) {
	sender := &recordingSender{}
	mux := newMux(NewEmailHandler(sender, nil), []TaskHandler{{Type: "", Handler: nil}})
	task, err := NewSendEmailTask(SendEmailPayload{To: "a@b.c", Subject: "s"})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), task))
	assert.Len(t, sender.sent, 1)
}
