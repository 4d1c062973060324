package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rewearify/rewearify/internal/identity"
	"github.com/rewearify/rewearify/internal/notify"
	"github.com/rewearify/rewearify/internal/session"
)

// DefaultTimeout bounds every backend call when no timeout is configured.
const DefaultTimeout = 15 * time.Second

// Service is the session context of one client: the identity, its
// credential, the notification ledger and the store they persist to.
type Service struct {
	backend Backend
	store   session.Store
	ledger  *notify.Ledger
	logger  *slog.Logger
	timeout time.Duration

	// profileMu serializes UpdateProfile across its backend call.
	profileMu sync.Mutex

	mu         sync.Mutex
	state      State
	current    *identity.Identity
	credential string
	generation uint64

	// bearer mirrors credential for readers that must not take mu, such as
	// an api.Client used while the ledger hydrates under mu.
	bearer atomic.Value
}

// Option customizes a Service.
type Option func(*Service)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs an Anonymous Service. Call Restore to pick up a
// persisted session.
func NewService(backend Backend, store session.Store, ledger *notify.Ledger, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		store:   store,
		ledger:  ledger,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ledger == nil {
		s.ledger = notify.NewLedger(nil, s.logger)
	}
	return s
}

// Restore loads the persisted session. A store fault leaves the service
// Anonymous and is returned for logging only.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		return ErrInFlight
	}
	s.generation++
	s.setAnonymous()

	snap, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("restore session", slog.Any("error", err))
		return fmt.Errorf("auth: restore session: %w", err)
	}
	if !snap.Authenticated() {
		return nil
	}
	s.current = snap.Identity.WithDefaults()
	s.setCredential(snap.Credential)
	s.state = Authenticated
	s.hydrate(ctx, s.current.ID)
	return nil
}

// Sync reconciles the in-memory session with the store, which another
// process may have cleared, expired or rewritten. The service is restored
// from the store when the two disagree. A store fault is returned and the
// service is left untouched.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Authenticating {
		s.mu.Unlock()
		return nil
	}
	current, credential := s.current.Clone(), s.credential
	s.mu.Unlock()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("auth: sync session: %w", err)
	}
	if matches(snap, current, credential) {
		return nil
	}
	s.logger.Debug("session store changed, restoring")
	if err := s.Restore(ctx); err != nil && !errors.Is(err, ErrInFlight) {
		return err
	}
	return nil
}

func matches(snap session.Snapshot, current *identity.Identity, credential string) bool {
	if !snap.Authenticated() {
		return current == nil && credential == ""
	}
	if current == nil || snap.Credential != credential {
		return false
	}
	return *snap.Identity.WithDefaults() == *current
}

// Login exchanges email and password for a session.
func (s *Service) Login(ctx context.Context, email, password string) (Grant, error) {
	if err := ValidateLogin(email, password); err != nil {
		return Grant{}, err
	}
	gen, prev, err := s.begin()
	if err != nil {
		return Grant{}, err
	}
	grant, err := s.call(ctx, func(ctx context.Context) (Grant, error) {
		return s.backend.Login(ctx, identity.NormalizeEmail(email), password)
	})
	return s.finish(ctx, gen, prev, grant, err, false)
}

// Signup validates req locally, registers it with the backend and starts a
// session for the new identity. Invalid input never reaches the backend.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (Grant, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Grant{}, err
	}
	gen, prev, err := s.begin()
	if err != nil {
		return Grant{}, err
	}
	grant, err := s.call(ctx, func(ctx context.Context) (Grant, error) {
		return s.backend.Signup(ctx, req)
	})
	return s.finish(ctx, gen, prev, grant, err, true)
}

// Logout drops the session. It always succeeds; store faults are logged.
func (s *Service) Logout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.setAnonymous()
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("clear session", slog.Any("error", err))
	}
}

// UpdateProfile merges patch into the current identity and persists it.
// Backends implementing ProfileUpdater receive the change first; a remote
// failure leaves local state untouched. Concurrent updates apply one after
// the other.
func (s *Service) UpdateProfile(ctx context.Context, patch identity.ProfilePatch) (*identity.Identity, error) {
	s.profileMu.Lock()
	defer s.profileMu.Unlock()

	patch = patch.Normalize()
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if s.state == Authenticating {
		s.mu.Unlock()
		return nil, ErrInFlight
	}
	if patch.Empty() {
		out := s.current.Clone()
		s.mu.Unlock()
		return out, nil
	}
	if err := ValidateProfile(s.current.Role, patch); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	gen, credential := s.generation, s.credential
	s.mu.Unlock()

	var remote *identity.Identity
	if updater, ok := s.backend.(ProfileUpdater); ok {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		updated, err := updater.UpdateProfile(callCtx, credential, patch)
		cancel()
		if err != nil {
			return nil, normalize(err)
		}
		remote = updated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.current == nil {
		return nil, ErrSuperseded
	}
	next := patch.Apply(s.current).WithDefaults()
	if remote != nil {
		next = remote.Clone().WithDefaults()
	}
	next.ID = s.current.ID
	next.Role = s.current.Role

	if err := s.store.Save(ctx, session.Snapshot{Identity: next, Credential: s.credential}); err != nil {
		return nil, fmt.Errorf("auth: persist profile: %w", err)
	}
	s.current = next
	return next.Clone(), nil
}

// ForgotPassword asks the backend to send a reset link to email.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	if err := ValidateForgot(email); err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	msg, err := s.backend.ForgotPassword(callCtx, identity.NormalizeEmail(email))
	if err != nil {
		return "", normalize(err)
	}
	if msg == "" {
		msg = "Check your email for a reset link"
	}
	return msg, nil
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if err := ValidateReset(token, password); err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.backend.ResetPassword(callCtx, token, password); err != nil {
		return normalize(err)
	}
	return nil
}

// Current returns a copy of the signed-in identity, nil when anonymous.
func (s *Service) Current() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// Snapshot returns the identity and credential as they would be persisted.
func (s *Service) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return session.Snapshot{Identity: s.current.Clone(), Credential: s.credential}
}

// Credential returns the bearer credential, empty when anonymous.
func (s *Service) Credential() string {
	token, _ := s.bearer.Load().(string)
	return token
}

// Token satisfies api.TokenSource.
func (s *Service) Token() string {
	return s.Credential()
}

// State returns the lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ledger returns the notification ledger scoped to the current identity.
func (s *Service) Ledger() *notify.Ledger {
	return s.ledger
}

// MarkRead flips a notification of the current identity to read.
func (s *Service) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	s.mu.Lock()
	authenticated := s.current != nil
	s.mu.Unlock()
	if !authenticated {
		return false, ErrNoActiveSession
	}
	return s.ledger.MarkRead(ctx, notificationID), nil
}

func (s *Service) begin() (uint64, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Authenticating {
		return 0, s.state, ErrInFlight
	}
	prev := s.state
	s.state = Authenticating
	s.generation++
	return s.generation, prev, nil
}

func (s *Service) call(ctx context.Context, fn func(context.Context) (Grant, error)) (Grant, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	grant, err := fn(callCtx)
	if err != nil {
		return Grant{}, normalize(err)
	}
	if !grant.complete() {
		return Grant{}, &TransportError{Err: errors.New("auth: backend returned an incomplete grant")}
	}
	return grant, nil
}

func (s *Service) finish(ctx context.Context, gen uint64, prev State, grant Grant, err error, fresh bool) (Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		s.logger.Debug("discard stale auth response", slog.Uint64("generation", gen))
		return Grant{}, ErrSuperseded
	}
	if err != nil {
		s.state = prev
		return Grant{}, err
	}

	id := grant.Identity.Clone().WithDefaults()
	if err := s.store.Save(ctx, session.Snapshot{Identity: id, Credential: grant.Credential}); err != nil {
		s.state = prev
		return Grant{}, fmt.Errorf("auth: persist session: %w", err)
	}
	s.current = id
	s.setCredential(grant.Credential)
	s.state = Authenticated
	if fresh {
		s.ledger.Reset(id.ID, nil)
	} else {
		s.hydrate(ctx, id.ID)
	}
	s.logger.Info("session established", slog.String("user_id", id.ID), slog.String("role", id.Role.String()))
	return Grant{Identity: id.Clone(), Credential: grant.Credential}, nil
}

func (s *Service) hydrate(ctx context.Context, userID string) {
	if err := s.ledger.Hydrate(ctx, userID); err != nil {
		s.logger.Warn("hydrate notifications", slog.String("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) setCredential(token string) {
	s.credential = token
	s.bearer.Store(token)
}

func (s *Service) setAnonymous() {
	s.current = nil
	s.setCredential("")
	s.state = Anonymous
	s.ledger.Clear()
}

func normalize(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Err: err}
	}
	if expected(err) {
		return err
	}
	return &TransportError{Err: err}
}
