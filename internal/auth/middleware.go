package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/model"
)

// AdminCookieName is the cookie that carries the admin session token.
const AdminCookieName = "admin_session"

// UserFinder is the slice of the user repository the bearer middleware needs.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// RequireUser enforces bearer-token authentication on self-service routes.
//
// It reads "Authorization: Bearer <jwt>", verifies the token, requires the
// "user" role, and loads the student named by the token subject. The
// resolved RegisteredUser is stored in the request context.
//
// Every failure (no header, wrong scheme, bad or expired token, an admin
// token, or an account deleted since the token was issued) is the same
// 401 so the response says nothing about why.
func RequireUser(tokens *TokenService, users UserFinder, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, true)
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil || claims.Role != RoleUser {
				logger.Debug("bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.Any("error", err),
				)
				writeUnauthorized(w, true)
				return
			}

			user, err := users.FindByEmail(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					writeUnauthorized(w, true)
					return
				}
				logger.Error("loading user for bearer token",
					slog.String("error", err.Error()),
				)
				http.Error(w, `{"error":"internal_error","message":"An internal error occurred"}`, http.StatusInternalServerError)
				return
			}

			ctx := WithPrincipal(r.Context(), RegisteredUser{User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces the admin gate.
//
// It only looks at the admin_session cookie; an Authorization header is
// ignored, so a student's bearer token never opens an admin route. The
// cookie value must be a valid, unexpired token with the "admin" role.
//
// deny handles rejected requests. Pass nil for API routes (JSON 401);
// HTML pages pass a handler that redirects to the login form.
func RequireAdmin(tokens *TokenService, deny http.Handler) func(http.Handler) http.Handler {
	if deny == nil {
		deny = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeUnauthorized(w, false)
		})
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AdminCookieName)
			if err != nil || cookie.Value == "" {
				deny.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.Verify(cookie.Value)
			if err != nil || claims.Role != RoleAdmin {
				deny.ServeHTTP(w, r)
				return
			}

			ctx := WithPrincipal(r.Context(), Admin{SessionID: claims.ID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, bearer bool) {
	if bearer {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthenticated","message":"Could not validate credentials"}` + "\n"))
}

// SetAdminCookie stores an admin session token in an HttpOnly cookie that
// expires together with the token.
func SetAdminCookie(w http.ResponseWriter, tok *Token, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    tok.Value,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		MaxAge:   maxAge(tok),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAdminCookie tells the browser to drop the admin session cookie.
func ClearAdminCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     AdminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func maxAge(tok *Token) int {
	secs := int(time.Until(tok.ExpiresAt).Seconds())
	if secs < 1 {
		return -1
	}
	return secs
}
