// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes, and decides how the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go:      config.Load → Server.New
//	Server.New:   sqlite.DB → services → handlers → routes
//
// This is the "composition root": all dependencies are wired in one place
// (New/setupRoutes) rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/student-registry/internal/auth"
	"github.com/sakif/student-registry/internal/config"
	"github.com/sakif/student-registry/internal/handler"
	"github.com/sakif/student-registry/internal/middleware"
	sqliteRepo "github.com/sakif/student-registry/internal/repository/sqlite"
	"github.com/sakif/student-registry/internal/service"
)

// shutdownTimeout is how long in-flight requests get to finish on shutdown.
const shutdownTimeout = 30 * time.Second

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the database connection. Start closes it after the HTTP
// server has drained, so no request is cut off mid-transaction.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server from cfg: opens the database, builds the services
// and handlers, and registers the routes.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != sqliteRepo.MemoryPath && dir != "." {
		// Like `mkdir -p`: create the database directory if needed.
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
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
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root HTTP handler. Tests drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Start calls it on shutdown; tests that never
// call Start close the server themselves.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz               → health probe
//	POST   /register              → create account
//	POST   /login                 → JSON login → bearer token
//	POST   /token                 → form login → bearer token
//	GET    /user/profile          → own profile        [bearer]
//	PUT    /user/update           → update own profile [bearer]
//	GET    /admin/students        → list students      [admin cookie]
//	GET    /admin/students/{id}   → get student        [admin cookie]
//	PUT    /admin/students/{id}   → update student     [admin cookie]
//	DELETE /admin/students/{id}   → delete student     [admin cookie]
//	GET    /admin-login           → admin login form
//	POST   /admin-login           → admin login
//	POST   /admin-logout          → admin logout
//	GET    /admin                 → admin dashboard    [admin cookie, else redirect]
//	GET    /admin/edit/{id}       → edit form          [admin cookie, else redirect]
//	POST   /admin/edit/{id}       → save edit form     [admin cookie, else redirect]
//	POST   /admin/delete/{id}     → delete from page   [admin cookie, else redirect]
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, picked up by the logger
//  2. RealIP: client IP from proxy headers
//  3. Logger: logs each request with timing info
//  4. Recoverer: turns panics into 500s instead of crashing
//  5. CORS: preflight answers and Access-Control headers
func (s *Server) setupRoutes() error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// === Credential services ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.BcryptCost)

	// === Business services ===
	// s.db implements repository.UserRepository; services only see the interface.
	authService := service.NewAuthService(s.db, tokens, passwords, service.TokenPolicy{
		Standard: cfg.AccessTokenTTL,
		Remember: cfg.RememberTokenTTL,
	}, s.logger)
	studentService := service.NewStudentService(s.db, s.logger)
	adminService, err := service.NewAdminService(cfg.AdminPassword, passwords, tokens, cfg.AdminSessionTTL, s.logger)
	if err != nil {
		return fmt.Errorf("creating admin service: %w", err)
	}

	// === Handlers ===
	healthHandler := handler.NewHealthHandler(s.db, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	studentHandler := handler.NewStudentHandler(studentService, s.logger)
	adminHandler, err := handler.NewAdminHandler(adminService, studentService, cfg.CookieSecure, s.logger)
	if err != nil {
		return fmt.Errorf("creating admin handler: %w", err)
	}

	requireUser := auth.RequireUser(tokens, s.db, s.logger)
	requireAdminAPI := auth.RequireAdmin(tokens, nil)
	requireAdminPage := auth.RequireAdmin(tokens, http.HandlerFunc(handler.RedirectToLogin))

	// === Public routes ===
	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Post("/token", authHandler.HandleToken)

	// === Student self-service (bearer token) ===
	s.router.Route("/user", func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/profile", authHandler.HandleProfile)
		r.Put("/update", authHandler.HandleUpdateProfile)
	})

	// === Admin JSON API (admin cookie) ===
	s.router.Route("/admin/students", func(r chi.Router) {
		r.Use(requireAdminAPI)
		r.Get("/", studentHandler.HandleList)
		r.Get("/{id}", studentHandler.HandleGet)
		r.Put("/{id}", studentHandler.HandleUpdate)
		r.Delete("/{id}", studentHandler.HandleDelete)
	})

	// === Admin pages ===
	s.router.Get("/admin-login", adminHandler.HandleLoginPage)
	s.router.Post("/admin-login", adminHandler.HandleLogin)
	s.router.Post("/admin-logout", adminHandler.HandleLogout)
	s.router.Group(func(r chi.Router) {
		r.Use(requireAdminPage)
		r.Get("/admin", adminHandler.HandleDashboard)
		r.Get("/admin/edit/{id}", adminHandler.HandleEditPage)
		r.Post("/admin/edit/{id}", adminHandler.HandleEdit)
		r.Post("/admin/delete/{id}", adminHandler.HandleDelete)
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the database connection (checkpoints the WAL, releases the file)
func (s *Server) Start() error {
	// Runs AFTER everything else in this function, including Shutdown.
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("adminEnabled", s.config.AdminEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
