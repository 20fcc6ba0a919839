// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/timetracker/authbridge/assets"
	"github.com/timetracker/authbridge/bridge"
	"github.com/timetracker/authbridge/idp"
	"github.com/timetracker/authbridge/session"
	"golang.org/x/sync/errgroup"
)

const readHeaderTimeout = 10 * time.Second

// Server serves the host page and the auth routes.
type Server struct {
	config *Config
	logger hclog.Logger
	bridge *bridge.Bridge
	store  *session.MemoryStore
	assets *assets.Loader
	router chi.Router
}

// New creates a Server. Nothing is started until Run or Serve.
//
// Supported options: WithLogger, WithClientFactory
func New(c *Config, opt ...Option) (*Server, error) {
	const op = "server.New"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, idp.ErrNilParameter)
	}
	cfg := *c
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	opts := getServerOpts(opt...)
	logger := opts.withLogger

	factory := opts.withClientFactory
	if factory == nil {
		factory = bridge.IDPFactory(append(cfg.idpOptions(), idp.WithLogger(logger))...)
	}
	b, err := bridge.New(factory, bridge.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	loader, err := assets.NewLoader(cfg.AssetRoot,
		assets.WithModulePath(cfg.ModulePath),
		assets.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s := &Server{
		config: &cfg,
		logger: logger.Named("server"),
		bridge: b,
		store:  session.NewMemoryStore(session.WithTTL(cfg.SessionTTL)),
		assets: loader,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		requestLogger(s.logger),
		middleware.Recoverer,
	)
	r.Get("/", s.handleIndex)
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/user", s.handleUser)
		r.Get("/token", s.handleToken)
		r.Get("/signup", s.handleSignUp)
		r.Get("/login", s.handleLogIn)
		r.Get("/logout", s.handleLogOut)
	})
	r.Get("/healthz", s.handleHealth)
	r.Handle("/pkg/*", s.assets.Handler())
	return r
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

// Bridge returns the server's auth bridge.
func (s *Server) Bridge() *bridge.Bridge { return s.bridge }

// Assets returns the server's module loader.
func (s *Server) Assets() *assets.Loader { return s.assets }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	const op = "Server.Run"
	l, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down gracefully. Next to
// the listener it runs the startup tasks: loading the module, discovering
// the provider and sweeping expired sessions. The startup tasks aren't
// ordered with each other and their failures aren't fatal.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	const op = "Server.Serve"
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "address", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	})
	g.Go(func() error {
		// failures are logged by the loader and reported by /healthz
		_ = s.assets.Load(gctx)
		return nil
	})
	g.Go(func() error {
		if err := s.bridge.Init(gctx, s.config.Domain, s.config.ClientID); err != nil {
			s.logger.Warn("provider discovery at startup failed, retrying on first page", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		s.sweep(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), DefaultShutdown)
		defer cancel()
		s.logger.Info("shutting down")
		err := srv.Shutdown(shutdownCtx)
		s.bridge.Close()
		if err != nil {
			return fmt.Errorf("%s: shutdown: %w", op, err)
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) sweep(ctx context.Context) {
	t := time.NewTicker(s.config.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.store.Sweep(ctx); n > 0 {
				s.logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
