// Package api serves the dashboard HTTP API: GitHub OAuth login, the
// per-repository access decision, workflow runs and dispatch, and user
// registry management.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethpandaops/actionsdash/pkg/access"
	"github.com/ethpandaops/actionsdash/pkg/api/store"
	"github.com/ethpandaops/actionsdash/pkg/config"
	"github.com/ethpandaops/actionsdash/pkg/database"
	"github.com/ethpandaops/actionsdash/pkg/github"
	"github.com/ethpandaops/actionsdash/pkg/registry"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 15 * time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log           logrus.FieldLogger
	cfg           *config.Config
	store         store.Store
	github        github.Client
	db            *gorm.DB
	registryStore *registry.Store
	registry      *registry.Service
	allowlist     access.Allowlist
	oauth         *oauth2.Config
	httpServer    *http.Server
	wg            sync.WaitGroup
	done          chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:       log.WithField("component", "api"),
		cfg:       cfg,
		allowlist: access.NewAllowlist(cfg.Access.DeployAllowUsers),
		oauth:     newOAuthConfig(&cfg.Auth.GitHub),
		done:      make(chan struct{}),
	}
}

// Start binds the listener, opens the database shared by the session
// store and the user registry, then serves. Anything opened before a
// failure is released again.
func (s *server) Start(ctx context.Context) error {
	// Bind the listener first so a port conflict fails before any store
	// is opened.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	if err := s.openStores(ctx); err != nil {
		_ = ln.Close()
		s.closeStores()

		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start session cleanup goroutine.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.store.DeleteExpiredSessions(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to clean expired sessions")
				}
			case <-s.done:
				return
			}
		}
	}()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// openStores opens the shared database connection, the session store, the
// GitHub client and the user registry.
func (s *server) openStores(ctx context.Context) error {
	db, err := database.Open(&s.cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	s.db = db

	s.store = store.NewStore(s.log, db, s.cfg.Auth.Secret)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	s.github = github.NewClient(s.log, &s.cfg.GitHub)

	backend, err := registry.NewBackend(ctx, s.log, s.cfg, db)
	if err != nil {
		return fmt.Errorf("opening user registry: %w", err)
	}

	s.registryStore = registry.NewStore(s.log, backend, s.cfg.Registry.Key)
	s.registry = registry.NewService(s.log, s.registryStore, s.github)

	s.log.WithField("backend", s.cfg.Registry.Backend).
		WithField("allowlist", len(s.allowlist)).
		Info("User registry ready")

	return nil
}

// closeStores releases whatever openStores managed to open.
func (s *server) closeStores() {
	if s.registryStore != nil {
		if err := s.registryStore.Close(); err != nil {
			s.log.WithError(err).Warn("User registry close error")
		}

		s.registryStore = nil
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			s.log.WithError(err).Warn("Session store stop error")
		}

		s.store = nil
	}

	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.log.WithError(err).Warn("Database close error")
		}

		s.db = nil
	}
}

// Stop gracefully shuts down the HTTP server and closes the stores.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()
	s.closeStores()

	s.log.Info("API server stopped")

	return nil
}
