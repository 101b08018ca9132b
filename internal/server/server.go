// Package server is the wiring layer: it assembles the database, services,
// handlers, and middleware into a chi router and owns the HTTP lifecycle.
//
// This is the composition root — every dependency is constructed here, in
// one place, and injected downward. The database client in particular is
// built once, passed to the services that need it, and closed on shutdown;
// nothing reads it from ambient global state.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/agamify/agamify/internal/auth"
	"github.com/agamify/agamify/internal/github"
	"github.com/agamify/agamify/internal/handler"
	"github.com/agamify/agamify/internal/middleware"
	"github.com/agamify/agamify/internal/service"
	"github.com/agamify/agamify/internal/store/sqlite"
)

// Config holds everything the server needs from the environment.
type Config struct {
	Port               int
	DBPath             string
	JWTSecret          string
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server owns the router, the database connection, and the listen loop.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqlite.DB
}

// New creates a Server: opens the database, builds the whole dependency
// chain, and registers the routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes wires middleware, services, and handlers.
//
// Route map:
//
//	GET    /auth/github/login        → OAuth redirect
//	GET    /auth/github/callback     → OAuth exchange + session cookie
//	POST   /auth/logout              → clear session
//	GET    /api/me                   → session user            [session]
//	GET    /api/github/repos         → live GitHub listing     [session, rate-limited]
//	POST   /api/github/import        → import pipeline         [session, rate-limited]
//	GET    /api/repositories         → find by userId/userEmail/githubId
//	POST   /api/repositories         → direct create
//	GET    /api/repositories/{id}    → read one                [session]
//	DELETE /api/repositories/{id}    → delete one              [session]
//	POST   /api/users                → create user
//	GET    /api/users/{id}           → read user
//	PUT    /api/users/{id}           → update user
//	DELETE /api/users/{id}           → delete user
//	GET    /api/database/test        → connectivity + stats
//	POST   /api/database/test        → seed framework catalog
//	GET    /api/beta/status          → feature gate            [optional session]
//	POST   /api/beta/signup          → join beta               [session]
//	POST   /api/beta/presignup       → waitlist email
func (s *Server) setupRoutes() error {
	// Global middleware, in order: request ID for tracing, real client IP
	// (the rate limiter keys on it), panic recovery, request logging.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	provider := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.GitHubCallbackURL,
	)
	ghClient := github.New(s.logger)

	// Services. The *sqlite.DB satisfies every store interface, so it is
	// the single concrete dependency behind all of them.
	userService := service.NewUserService(s.db, s.logger)
	catalogService := service.NewCatalogService(s.db, s.logger)
	repoService := service.NewRepoService(s.db, s.db, s.db, s.db, ghClient, catalogService, s.logger)
	betaService := service.NewBetaService(s.db, s.db, s.logger)

	authHandler := handler.NewAuthHandler(provider, tokens, userService, s.logger)
	githubHandler := handler.NewGitHubHandler(repoService, s.logger)
	repoHandler := handler.NewRepositoryHandler(repoService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	dbHandler := handler.NewDatabaseHandler(s.db, catalogService, s.logger)
	betaHandler := handler.NewBetaHandler(betaService, s.logger)

	// The GitHub-facing routes fan out into upstream API calls; 1 req/s
	// with a burst of 5 per client IP keeps one tab-refresher from
	// draining the delegated tokens' API quota.
	githubLimiter := middleware.NewRateLimiter(s.logger, middleware.IPAddressKeyFunc, rate.Limit(1), 5)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/github/login", authHandler.HandleLogin)
		r.Get("/github/callback", authHandler.HandleCallback)
		r.Post("/logout", authHandler.HandleLogout)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.With(auth.RequireSession(tokens)).Get("/me", authHandler.HandleMe)

		r.Route("/github", func(r chi.Router) {
			r.Use(auth.RequireSession(tokens))
			r.Use(githubLimiter.Limit)
			r.Get("/repos", githubHandler.HandleListRepos)
			r.Post("/import", githubHandler.HandleImport)
		})

		r.Route("/repositories", func(r chi.Router) {
			r.Get("/", repoHandler.HandleList)
			r.Post("/", repoHandler.HandleCreate)
			r.With(auth.RequireSession(tokens)).Get("/{id}", repoHandler.HandleGet)
			r.With(auth.RequireSession(tokens)).Delete("/{id}", repoHandler.HandleDelete)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.HandleCreate)
			r.Get("/{id}", userHandler.HandleGet)
			r.Put("/{id}", userHandler.HandleUpdate)
			r.Delete("/{id}", userHandler.HandleDelete)
		})

		r.Route("/database", func(r chi.Router) {
			r.Get("/test", dbHandler.HandleTest)
			r.Post("/test", dbHandler.HandleSeed)
		})

		r.Route("/beta", func(r chi.Router) {
			r.With(auth.OptionalSession(tokens)).Get("/status", betaHandler.HandleStatus)
			r.With(auth.RequireSession(tokens)).Post("/signup", betaHandler.HandleSignup)
			r.Post("/presignup", betaHandler.HandlePreSignup)
		})
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully:
// stop accepting connections, drain in-flight requests (30s), close the
// database so the WAL is flushed.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
