// Package portal serves the browser-facing session API.
package portal

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/session"
)

// Factory builds the service for one browser session around its store.
type Factory func(store session.Store) *auth.Service

// Registry caches live per-session services. Misses are restored from the
// session store once, however many requests race for the same id.
type Registry struct {
	cache    *lru.Cache[string, *auth.Service]
	group    singleflight.Group
	sessions *session.Manager
	build    Factory
	logger   *slog.Logger
}

// NewRegistry constructs a Registry holding up to size services.
func NewRegistry(size int, sessions *session.Manager, build Factory, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *auth.Service](size)
	if err != nil {
		return nil, fmt.Errorf("portal: session cache: %w", err)
	}
	return &Registry{cache: cache, sessions: sessions, build: build, logger: logger}, nil
}

// Get returns the service for session id. A cached service is checked
// against the session store first and evicted when the store is unreadable.
func (r *Registry) Get(ctx context.Context, id string) *auth.Service {
	if svc, ok := r.cache.Get(id); ok {
		err := svc.Sync(ctx)
		if err == nil {
			return svc
		}
		r.logger.Warn("sync portal session", slog.String("session", id), slog.Any("error", err))
		r.cache.Remove(id)
	}
	v, _, _ := r.group.Do(id, func() (any, error) {
		if svc, ok := r.cache.Get(id); ok {
			return svc, nil
		}
		svc := r.build(r.sessions.Store(id))
		if err := svc.Restore(ctx); err != nil {
			// Left uncached so the next request retries the store.
			r.logger.Warn("restore portal session", slog.String("session", id), slog.Any("error", err))
			return svc, nil
		}
		r.cache.Add(id, svc)
		return svc, nil
	})
	return v.(*auth.Service)
}

// Rotate moves the authenticated session held by svc under oldID to a fresh
// id and returns it. The old id is cleared from the store and the cache.
func (r *Registry) Rotate(ctx context.Context, oldID string, svc *auth.Service) (string, error) {
	snap := svc.Snapshot()
	if !snap.Authenticated() {
		return oldID, nil
	}
	newID := r.sessions.NewID()
	if err := r.sessions.Store(newID).Save(ctx, snap); err != nil {
		return "", fmt.Errorf("portal: rotate session: %w", err)
	}
	if err := r.sessions.Store(oldID).Clear(ctx); err != nil {
		r.logger.Warn("clear rotated session", slog.String("session", oldID), slog.Any("error", err))
	}
	r.cache.Remove(oldID)

	next := r.build(r.sessions.Store(newID))
	if err := next.Restore(ctx); err != nil {
		r.logger.Warn("restore rotated session", slog.String("session", newID), slog.Any("error", err))
		return newID, nil
	}
	r.cache.Add(newID, next)
	return newID, nil
}

// Forget drops id from the cache.
func (r *Registry) Forget(id string) {
	r.cache.Remove(id)
}

// Len reports the number of cached services.
func (r *Registry) Len() int {
	return r.cache.Len()
}
