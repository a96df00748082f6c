package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/auth"
	"github.com/sakif/student-registry/internal/model"
	"github.com/sakif/student-registry/internal/repository"
)

// TokenType is the OAuth2-style token_type returned with every access token.
const TokenType = "bearer"

// TokenPolicy selects the lifetime of a bearer token at login.
type TokenPolicy struct {
	Standard time.Duration // remember = false
	Remember time.Duration // remember = true
}

// TTL returns the lifetime for the given "remember me" choice.
func (p TokenPolicy) TTL(remember bool) time.Duration {
	if remember {
		return p.Remember
	}
	return p.Standard
}

// AuthService handles student self-service: registration, login and the
// caller's own profile.
//
//	AuthHandler (HTTP) → AuthService → UserRepository (DB)
//	                               ↘ TokenService (JWT), PasswordService (bcrypt)
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	policy    TokenPolicy
	logger    *slog.Logger

	// dummyHash is compared against when the email is unknown, so that a
	// login for a missing account costs the same bcrypt time as a real one.
	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	policy TokenPolicy,
	logger *slog.Logger,
) *AuthService {
	if policy.Standard <= 0 {
		policy.Standard = tokens.TTL()
	}
	if policy.Remember <= 0 {
		policy.Remember = policy.Standard
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		policy:    policy,
		logger:    logger,
	}
}

// LoginResult is what a successful login hands back to the handler.
type LoginResult struct {
	User      *model.User
	Token     string
	TokenType string
	ExpiresIn time.Duration
	ExpiresAt time.Time
}

// Register validates the registration, hashes the password and stores a new
// student. It does not log the student in.
//
// The FindByEmail pre-check only produces the duplicate error early; the
// repository's UNIQUE constraint still decides when two registrations for
// the same email race, and both paths return apperror.ErrDuplicateEmail.
func (s *AuthService) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	reg.Normalize()
	if err := validationError(reg.Validate()); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmail(ctx, reg.Email)
	switch {
	case err == nil:
		return nil, apperror.DuplicateEmail(reg.Email)
	case !errors.Is(err, apperror.ErrNotFound):
		return nil, fmt.Errorf("service/auth: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        reg.Email,
		PasswordHash: hash,
	}
	user.Apply(reg.StudentFields)

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.Info("user registered", slog.Int64("userID", user.ID))
	return user, nil
}

// Login checks an email/password pair and issues a bearer token.
//
// An unknown email and a wrong password produce the same
// apperror.InvalidCredentials error, and both run one bcrypt comparison.
func (s *AuthService) Login(ctx context.Context, email, password string, remember bool) (*LoginResult, error) {
	email = model.NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("service/auth: looking up user: %w", err)
		}
		// Burn the same bcrypt time as a real comparison.
		_ = s.passwords.Verify(s.dummy(), password)
		s.logger.Warn("login failed", slog.String("reason", "unknown email"))
		return nil, apperror.InvalidCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login failed",
				slog.String("reason", "wrong password"),
				slog.Int64("userID", user.ID),
			)
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: verifying password for user %d: %w", user.ID, err)
	}

	ttl := s.policy.TTL(remember)
	tok, err := s.tokens.Issue(user.Email, auth.RoleUser, ttl)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %d: %w", user.ID, err)
	}

	s.logger.Info("user logged in",
		slog.Int64("userID", user.ID),
		slog.Bool("remember", remember),
	)

	return &LoginResult{
		User:      user,
		Token:     tok.Value,
		TokenType: TokenType,
		ExpiresIn: ttl,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

// Profile returns the record of the authenticated student. Only a
// RegisteredUser has a profile; any other principal is unauthenticated here.
func (s *AuthService) Profile(ctx context.Context, p auth.Principal) (*model.User, error) {
	switch p := p.(type) {
	case auth.RegisteredUser:
		if p.User == nil {
			return nil, apperror.Unauthenticated("Could not validate credentials")
		}
		return p.User, nil
	default:
		return nil, apperror.Unauthenticated("Could not validate credentials")
	}
}

// UpdateProfile validates fields and overwrites every mutable field of the
// student with the given id. Email and password are not changed.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, fields model.StudentFields) (*model.User, error) {
	fields.Normalize()
	if err := validationError(fields.Validate()); err != nil {
		return nil, err
	}

	user, err := s.users.Update(ctx, userID, fields)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("profile update failed",
			slog.Int64("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/auth: updating user %d: %w", userID, err)
	}

	s.logger.Info("profile updated", slog.Int64("userID", userID))
	return user, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("registry-timing-equaliser")
		if err != nil {
			s.logger.Error("creating dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
