package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/auth"
)

// AdminSession is a freshly minted admin session. The handler stores
// Token.Value in the admin_session cookie.
type AdminSession struct {
	Token *auth.Token
}

// AdminService implements the admin gate: one shared password, exchanged
// for a short-lived signed session token.
//
// The configured password is bcrypt-hashed once at construction, so the
// plaintext is not kept in memory and checks go through the same
// constant-time comparison as student logins.
type AdminService struct {
	hash      string // empty when no admin password is configured
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	ttl       time.Duration
	logger    *slog.Logger
}

// NewAdminService hashes the admin password. An empty password disables the
// gate: Login then always fails.
func NewAdminService(
	password string,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	ttl time.Duration,
	logger *slog.Logger,
) (*AdminService, error) {
	s := &AdminService{
		passwords: passwords,
		tokens:    tokens,
		ttl:       ttl,
		logger:    logger,
	}
	if password == "" {
		logger.Warn("ADMIN_PASSWORD not set; admin login is disabled")
		return s, nil
	}

	hash, err := passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/admin: hashing admin password: %w", err)
	}
	s.hash = hash
	return s, nil
}

// Enabled reports whether an admin password is configured.
func (s *AdminService) Enabled() bool {
	return s.hash != ""
}

// Login exchanges the admin password for a session valid for the configured
// TTL. A wrong password, an empty one, or a disabled gate all return
// apperror.InvalidCredentials.
func (s *AdminService) Login(ctx context.Context, password string) (*AdminSession, error) {
	if !s.Enabled() || password == "" {
		s.logger.Warn("admin login failed", slog.Bool("enabled", s.Enabled()))
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(s.hash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("admin login failed", slog.String("reason", "wrong password"))
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/admin: verifying password: %w", err)
	}

	tok, err := s.tokens.Issue(auth.RoleAdmin, auth.RoleAdmin, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("service/admin: issuing session: %w", err)
	}

	s.logger.Info("admin session started",
		slog.String("sessionID", tok.ID),
		slog.Time("expiresAt", tok.ExpiresAt),
	)
	return &AdminSession{Token: tok}, nil
}
