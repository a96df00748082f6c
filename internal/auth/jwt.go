// Package auth provides the registry's credential primitives: bcrypt password
// hashing, HS256 token issuance and verification, the Principal type, and the
// two HTTP middlewares that resolve a request to a Principal.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. A student registers (POST /register); the password is stored as a bcrypt hash.
//  2. POST /login checks the password and issues a bearer token whose "sub"
//     claim is the student's email.
//  3. Self-service requests send "Authorization: Bearer <token>"; RequireUser
//     verifies it and loads the student.
//  4. The administrator posts the shared admin password to /admin-login and
//     receives an admin session token in an HttpOnly cookie; RequireAdmin
//     verifies it on every /admin request.
//
// Both kinds of token are the same JWT shape, told apart by the "role" claim:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:  {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"a@x.com","role":"user","exp":...,"iat":...,"iss":"student-registry","jti":"..."}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// Issuer is the "iss" claim of every token this service mints. Tokens from
// any other issuer are rejected.
const Issuer = "student-registry"

// Roles carried in the "role" claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultTokenTTL is used when NewTokenService is given a non-positive TTL.
const DefaultTokenTTL = 30 * time.Minute

var (
	// ErrInvalidToken covers every verification failure except expiry:
	// bad signature, wrong algorithm, wrong issuer, malformed token, no subject.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrExpiredToken is returned when the signature is good but "exp" has passed.
	ErrExpiredToken = errors.New("auth: token expired")
)

// Claims is the JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Token is a freshly signed token together with the facts a handler needs
// to hand it out (cookie max-age, expires_in).
type Token struct {
	Value     string
	ID        string
	ExpiresAt time.Time
}

// TokenService handles JWT creation and validation.
//
// It holds the HMAC secret key used to sign and verify tokens, the default
// token lifetime, and the clock used for "iat"/"exp" and for expiry checks.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret and default
// lifetime. The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// withClock returns a copy of s that reads the current time from now.
// Tests use it to move past a token's expiry without sleeping.
func (s *TokenService) withClock(now func() time.Time) *TokenService {
	c := *s
	c.now = now
	return &c
}

// TTL returns the default lifetime used by Generate.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate signs a user token for subject with the default lifetime.
func (s *TokenService) Generate(subject string) (string, error) {
	tok, err := s.Issue(subject, RoleUser, s.ttl)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// generateWithDuration signs a user token for subject that expires after d.
// A negative d produces an already-expired token.
func (s *TokenService) generateWithDuration(subject string, d time.Duration) (string, error) {
	tok, err := s.Issue(subject, RoleUser, d)
	if err != nil {
		return "", err
	}
	return tok.Value, nil
}

// Issue creates and signs a token for subject with the given role and lifetime.
//
// Every token gets a unique "jti" (an xid), so two tokens minted in the same
// second for the same subject still differ.
func (s *TokenService) Issue(subject, role string, ttl time.Duration) (*Token, error) {
	if subject == "" {
		return nil, errors.New("auth: token subject must not be empty")
	}
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("auth: unknown role %q", role)
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	id := xid.New().String()

	c := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subject,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("auth: signing token: %w", err)
	}

	return &Token{Value: signed, ID: id, ExpiresAt: expiresAt}, nil
}

// Verify parses and verifies a token string and returns its claims.
//
// The jwt library checks, in order: the algorithm is HS256 (no "none" or
// RS/HS confusion), the signature matches our secret, "exp" is present and in
// the future, and "iss" is ours. Expiry surfaces as ErrExpiredToken; every
// other failure as ErrInvalidToken.
func (s *TokenService) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unreadable claims", ErrInvalidToken)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}

	return c, nil
}
