package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rewearify/rewearify/internal/identity"
)

const forgotPasswordMessage = "If that email is registered, a reset link is on its way"

// Account is a directory entry with its plain text demo password.
type Account struct {
	Identity identity.Identity
	Password string
}

// DemoAccounts returns the marketplace demo users.
func DemoAccounts() []Account {
	return []Account{
		{
			Identity: identity.Identity{
				ID:             "1",
				Name:           "Sarah Johnson",
				Email:          "sarah@email.com",
				Role:           identity.RoleDonor,
				ProfilePicture: "https://images.unsplash.com/photo-1494790108755-2616b612b786?w=150&h=150&fit=crop&crop=face",
				JoinDate:       "2024-01-15",
				Location:       "New York, NY",
			},
			Password: "demo123",
		},
		{
			Identity: identity.Identity{
				ID:             "2",
				Name:           "Michael Chen",
				Email:          "michael@email.com",
				Role:           identity.RoleRecipient,
				ProfilePicture: "https://images.unsplash.com/photo-1507003211169-0a1dd7228f2d?w=150&h=150&fit=crop&crop=face",
				JoinDate:       "2024-02-20",
				Location:       "Los Angeles, CA",
				Organization:   "Hope Community Center",
			},
			Password: "demo123",
		},
		{
			Identity: identity.Identity{
				ID:             "3",
				Name:           "Admin User",
				Email:          "admin@rewearify.com",
				Role:           identity.RoleAdmin,
				ProfilePicture: "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face",
				JoinDate:       "2023-12-01",
			},
			Password: "admin123",
		},
	}
}

type account struct {
	identity *identity.Identity
	hash     []byte
}

type resetTicket struct {
	userID    string
	expiresAt time.Time
}

// DemoConfig configures a DemoBackend.
type DemoConfig struct {
	Tokens     *Tokens
	Mailer     Mailer
	BcryptCost int
	ResetTTL   time.Duration
	// ResetURLBase is the page the reset token is appended to.
	ResetURLBase string
}

// DemoBackend is an in-memory directory with bcrypt password hashes.
type DemoBackend struct {
	cfg DemoConfig
	now func() time.Time

	mu      sync.RWMutex
	byEmail map[string]*account
	byID    map[string]*account
	resets  map[string]resetTicket
}

// NewDemoBackend builds the directory and seeds accounts.
func NewDemoBackend(cfg DemoConfig, accounts ...Account) (*DemoBackend, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("auth: demo backend requires a token signer")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.ResetURLBase == "" {
		cfg.ResetURLBase = "http://localhost:3000/reset-password"
	}
	b := &DemoBackend{
		cfg:     cfg,
		now:     time.Now,
		byEmail: make(map[string]*account),
		byID:    make(map[string]*account),
		resets:  make(map[string]resetTicket),
	}
	for _, a := range accounts {
		if err := b.add(a.Identity, a.Password); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *DemoBackend) add(id identity.Identity, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	id.Email = identity.NormalizeEmail(id.Email)
	acc := &account{identity: id.WithDefaults(), hash: hash}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.byEmail[id.Email]; dup {
		return ErrEmailTaken
	}
	b.byEmail[id.Email] = acc
	b.byID[id.ID] = acc
	return nil
}

// Login verifies the password against the stored hash.
func (b *DemoBackend) Login(ctx context.Context, email, password string) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	b.mu.RLock()
	acc, ok := b.byEmail[identity.NormalizeEmail(email)]
	var (
		hash []byte
		id   *identity.Identity
	)
	if ok {
		hash, id = acc.hash, acc.identity.Clone()
	}
	b.mu.RUnlock()
	if !ok {
		return Grant{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return Grant{}, ErrInvalidCredentials
	}
	return b.grant(id)
}

// Signup mints a new identity.
func (b *DemoBackend) Signup(ctx context.Context, req SignupRequest) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return Grant{}, err
	}
	id := identity.Identity{
		ID:           "user_" + uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		Role:         req.Role,
		Organization: req.Organization,
		Location:     req.Location,
		Phone:        req.Phone,
		Bio:          req.Bio,
		JoinDate:     b.now().Format(time.DateOnly),
	}
	if err := b.add(id, req.Password); err != nil {
		return Grant{}, err
	}
	return b.grant(id.WithDefaults())
}

// ForgotPassword issues a reset token for known emails and mails the link.
// The reply is the same whether or not the email is registered.
func (b *DemoBackend) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = identity.NormalizeEmail(email)
	b.mu.Lock()
	acc, ok := b.byEmail[email]
	if !ok {
		b.mu.Unlock()
		return forgotPasswordMessage, nil
	}
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	expires := b.now().Add(b.cfg.ResetTTL)
	b.resets[token] = resetTicket{userID: acc.identity.ID, expiresAt: expires}
	msg := PasswordReset{
		Email:     acc.identity.Email,
		Name:      acc.identity.Name,
		Link:      b.cfg.ResetURLBase + "/" + url.PathEscape(token),
		ExpiresAt: expires,
	}
	b.mu.Unlock()

	if b.cfg.Mailer != nil {
		if err := b.cfg.Mailer.SendPasswordReset(ctx, msg); err != nil {
			return "", fmt.Errorf("auth: send reset link: %w", err)
		}
	}
	return forgotPasswordMessage, nil
}

// ResetPassword consumes token and replaces the password hash.
func (b *DemoBackend) ResetPassword(ctx context.Context, token, password string) error {
	if err := ValidateReset(token, password); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ticket, ok := b.resets[token]
	if !ok {
		return ErrInvalidResetToken
	}
	delete(b.resets, token)
	if b.now().After(ticket.expiresAt) {
		return ErrInvalidResetToken
	}
	acc, ok := b.byID[ticket.userID]
	if !ok {
		return ErrInvalidResetToken
	}
	acc.hash = hash
	return nil
}

// UpdateProfile applies patch to the account behind credential.
func (b *DemoBackend) UpdateProfile(ctx context.Context, credential string, patch identity.ProfilePatch) (*identity.Identity, error) {
	claims, err := b.cfg.Tokens.Verify(credential)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.byID[claims.Subject]
	if !ok {
		return nil, ErrInvalidToken
	}
	patch = patch.Normalize()
	if err := ValidateProfile(acc.identity.Role, patch); err != nil {
		return nil, err
	}
	next := patch.Apply(acc.identity)
	next.Email = identity.NormalizeEmail(next.Email)
	if next.Email != acc.identity.Email {
		if _, taken := b.byEmail[next.Email]; taken {
			return nil, ErrEmailTaken
		}
		delete(b.byEmail, acc.identity.Email)
		b.byEmail[next.Email] = acc
	}
	acc.identity = next.WithDefaults()
	return acc.identity.Clone(), nil
}

// Lookup returns the identity for id.
func (b *DemoBackend) Lookup(id string) (*identity.Identity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return acc.identity.Clone(), true
}

// Tokens exposes the signer used for credentials.
func (b *DemoBackend) Tokens() *Tokens {
	return b.cfg.Tokens
}

func (b *DemoBackend) grant(id *identity.Identity) (Grant, error) {
	token, err := b.cfg.Tokens.Issue(id)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Identity: id, Credential: token}, nil
}

var (
	_ Backend        = (*DemoBackend)(nil)
	_ ProfileUpdater = (*DemoBackend)(nil)
)
