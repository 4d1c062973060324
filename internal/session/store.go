// Package session persists the authenticated identity and its bearer
// credential so a client survives restarts.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rewearify/rewearify/internal/identity"
)

// ErrIncomplete is returned when saving a snapshot that lacks either half.
var ErrIncomplete = errors.New("session: identity and credential must be saved together")

// Snapshot is the persisted pair. Both halves are present or neither is.
type Snapshot struct {
	Identity   *identity.Identity `json:"user"`
	Credential string             `json:"token"`
}

// Authenticated reports whether both halves are present.
func (s Snapshot) Authenticated() bool {
	return s.Identity != nil && s.Credential != ""
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{Identity: s.Identity.Clone(), Credential: s.Credential}
}

// Store is the durable two-slot persistence used by the auth service.
//
// Load never reports missing or unreadable data as an error; it returns the
// zero Snapshot instead. Errors are reserved for the backing store itself
// being unreachable.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}

// Provider hands out the store scoped to one session id.
type Provider interface {
	StoreFor(id string) Store
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns the stored snapshot.
func (m *MemoryStore) Load(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone(), nil
}

// Save replaces the stored snapshot.
func (m *MemoryStore) Save(ctx context.Context, snap Snapshot) error {
	if !snap.Authenticated() {
		return ErrIncomplete
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap.clone()
	return nil
}

// Clear drops the stored snapshot.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{}
	return nil
}

// MemoryProvider keeps one MemoryStore per session id.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

// NewMemoryProvider returns an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*MemoryStore)}
}

// StoreFor returns the store for id, creating it on first use.
func (p *MemoryProvider) StoreFor(id string) Store {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.stores[id]
	if !ok {
		st = NewMemoryStore()
		p.stores[id] = st
	}
	return st
}

var (
	_ Store    = (*MemoryStore)(nil)
	_ Provider = (*MemoryProvider)(nil)
)
