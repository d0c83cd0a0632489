package cli

import (
	"context"
	"fmt"
	"net/http"

	"ledgersync/internal/config"
	"ledgersync/internal/database"
	"ledgersync/internal/engine"
	"ledgersync/internal/identity"
	"ledgersync/internal/logger"
	"ledgersync/internal/remote"
	"ledgersync/internal/remote/httpremote"
	"ledgersync/internal/remote/memory"
	"ledgersync/internal/remote/postgres"
)

// Session is an engine opened for one command invocation.
type Session struct {
	*engine.Engine
	release func()
}

// NewSession wraps an engine. release runs after the engine logs out.
func NewSession(e *engine.Engine, release func()) *Session {
	return &Session{Engine: e, release: release}
}

// Close logs out, waits for in-flight propagation and releases resources.
func (s *Session) Close() {
	s.Logout()
	if s.release != nil {
		s.release()
	}
}

// Opener builds a Session that may act for owner.
type Opener func(ctx context.Context, owner string) (*Session, error)

// OpenConfigured opens the local database at cfg.LocalDBPath and the remote
// backend cfg.RemoteBackend names.
func OpenConfigured(cfg *config.Config) Opener {
	return func(ctx context.Context, owner string) (*Session, error) {
		db, err := database.OpenLocal(cfg.LocalDBPath)
		if err != nil {
			return nil, err
		}
		store, closeRemote, err := openRemote(cfg, owner)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}

		e := engine.New(engine.Deps{
			DB:            db,
			Remote:        store,
			Timeout:       cfg.RemoteTimeout,
			ProbeInterval: cfg.ProbeInterval,
		})
		return NewSession(e, func() {
			closeRemote()
			if err := database.Close(db); err != nil {
				logger.Get().Warnw("failed to close local database", "error", err)
			}
		}), nil
	}
}

func openRemote(cfg *config.Config, owner string) (remote.Store, func(), error) {
	switch cfg.RemoteBackend {
	case config.BackendMemory:
		logger.Get().Warn("REMOTE_BACKEND=memory: remote copies last only for this invocation")
		return memory.New(), func() {}, nil

	case config.BackendPostgres:
		m, err := database.NewManager(cfg.PostgresDSN(), cfg.PostgresURL())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database manager: %w", err)
		}
		return postgres.New(m.DB(), m.DSN()), func() { _ = database.Close(m.DB()) }, nil

	case config.BackendHTTP:
		token := cfg.RemoteToken
		if token == "" {
			// Development gateways share JWT_SECRET with the CLI.
			issued, err := identity.NewTokens(cfg.JWTSecret, cfg.JWTExpirationDur).Issue(owner)
			if err != nil {
				return nil, nil, err
			}
			token = issued
		}
		store := httpremote.New(cfg.RemoteURL, &http.Client{})
		store.SetToken(token)
		return store, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported REMOTE_BACKEND %q", cfg.RemoteBackend)
}

// withSession opens a session for the configured owner, optionally logs it
// in, and closes it once fn returns.
func withSession(ctx context.Context, opts *RootOptions, login bool, fn func(s *Session, owner string) error) error {
	owner, err := opts.owner()
	if err != nil {
		return err
	}
	s, err := opts.Open(ctx, owner)
	if err != nil {
		return err
	}
	defer s.Close()

	if login {
		if _, err := s.Login(ctx, owner); err != nil {
			return err
		}
	}
	return fn(s, owner)
}
