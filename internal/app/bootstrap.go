package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rewearify/rewearify/internal/access"
	"github.com/rewearify/rewearify/internal/api"
	"github.com/rewearify/rewearify/internal/auth"
	"github.com/rewearify/rewearify/internal/authapi"
	"github.com/rewearify/rewearify/internal/notify"
	"github.com/rewearify/rewearify/internal/observability"
	"github.com/rewearify/rewearify/internal/portal"
	"github.com/rewearify/rewearify/internal/session"
	"github.com/rewearify/rewearify/jobs"
)

// SessionCookie names the browser session cookie.
const SessionCookie = "rewearify_session"

// Deps carries the external clients opened by the main package.
type Deps struct {
	// Redis is required when SESSION_STORE=redis.
	Redis *redis.Client
	// Pool is required when NOTIFY_SOURCE=postgres.
	Pool *pgxpool.Pool
	// Mailer receives password reset links from the demo directory.
	Mailer auth.Mailer
	// Jobs exposes the mail queue health endpoint when set.
	Jobs *jobs.Handler
	// HTTPClient is used for the remote backend.
	HTTPClient *http.Client
	// Metrics serves /metrics and counts session operations when set.
	Metrics *observability.Metrics
}

// Runtime is the assembled HTTP surface.
type Runtime struct {
	Handler  http.Handler
	Gate     *access.Gate
	Registry *portal.Registry
	Sessions *session.Manager
	// Demo is set when AUTH_BACKEND=demo.
	Demo *auth.DemoBackend
}

// Build wires stores, backends and handlers according to cfg.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger, deps Deps) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	table, err := access.LoadTable(cfg.AccessPolicyFile)
	if err != nil {
		return nil, err
	}
	gate := access.NewGate(table)

	var provider session.Provider
	switch cfg.SessionStore {
	case SessionStoreRedis:
		if deps.Redis == nil {
			return nil, errors.New("app: redis client required for SESSION_STORE=redis")
		}
		provider = session.NewRedisProvider(deps.Redis, cfg.SessionTTL)
	default:
		provider = session.NewMemoryProvider()
	}
	sessions := session.NewManager(provider, SessionCookie, cfg.SessionTTL, cfg.IsProduction(),
		session.WithSigningKey(cfg.SessionSecret))

	source, err := notificationSource(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Gate: gate, Sessions: sessions}
	var factory portal.Factory
	var authAPI *authapi.Handler

	switch cfg.AuthBackend {
	case AuthBackendRemote:
		factory = remoteFactory(cfg, logger, deps.HTTPClient)
	default:
		tokens, err := auth.NewTokens(cfg.AuthTokenSecret, cfg.AuthTokenTTL)
		if err != nil {
			return nil, err
		}
		demo, err := auth.NewDemoBackend(auth.DemoConfig{
			Tokens:       tokens,
			Mailer:       deps.Mailer,
			BcryptCost:   cfg.BcryptCost,
			ResetURLBase: cfg.ResetURLBase,
		}, auth.DemoAccounts()...)
		if err != nil {
			return nil, err
		}
		rt.Demo = demo
		authAPI = authapi.NewHandler(logger, demo, tokens, source)
		factory = func(store session.Store) *auth.Service {
			return auth.NewService(demo, store, notify.NewLedger(source, logger),
				auth.WithTimeout(cfg.AuthTimeout), auth.WithLogger(logger))
		}
	}

	registry, err := portal.NewRegistry(cfg.SessionCacheSize, sessions, factory, logger)
	if err != nil {
		return nil, err
	}
	rt.Registry = registry
	deps.Metrics.WatchSessions(registry.Len)

	portalHandler := portal.NewHandler(logger, sessions, registry, gate)
	if deps.Metrics != nil {
		portalHandler.Observer = deps.Metrics
	}

	rt.Handler = NewRouter(RouterParams{
		Logger:     logger,
		Config:     cfg,
		Portal:     portalHandler,
		AuthAPI:    authAPI,
		JobHandler: deps.Jobs,
		Metrics:    deps.Metrics,
	})
	return rt, nil
}

func notificationSource(ctx context.Context, cfg *Config, deps Deps) (notify.Source, error) {
	if cfg.NotifySource != NotifySourcePostgres {
		return notify.NewMemorySource(notify.SeedNotifications()...), nil
	}
	if deps.Pool == nil {
		return nil, errors.New("app: postgres pool required for NOTIFY_SOURCE=postgres")
	}
	src := notify.NewPGSource(deps.Pool)
	if err := src.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return src, nil
}

// remoteFactory gives each session its own API client so outgoing calls carry
// that session's bearer credential.
func remoteFactory(cfg *Config, logger *slog.Logger, hc *http.Client) portal.Factory {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.AuthTimeout}
	}
	return func(store session.Store) *auth.Service {
		var svc *auth.Service
		client := api.NewClient(cfg.AuthRemoteURL,
			api.WithHTTPClient(hc),
			api.WithTokenSource(api.TokenFunc(func() string { return svc.Token() })),
		)
		ledger := notify.NewLedger(notify.NewRemoteSource(client), logger)
		svc = auth.NewService(auth.NewRemoteBackend(client), store, ledger,
			auth.WithTimeout(cfg.AuthTimeout), auth.WithLogger(logger))
		return svc
	}
}
