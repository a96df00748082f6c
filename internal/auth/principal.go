package auth

import (
	"context"

	"github.com/sakif/student-registry/internal/model"
)

// Principal is the identity a request is authorized as. It is a closed sum
// type: the unexported method means only RegisteredUser and Admin satisfy it.
//
// The middleware resolves a request to a Principal once; handlers switch on
// the concrete type instead of re-deriving a role from user fields.
type Principal interface {
	// Subject is the token subject the principal was resolved from.
	Subject() string
	principal()
}

// RegisteredUser is a student authenticated with a bearer token.
type RegisteredUser struct {
	User *model.User
}

func (p RegisteredUser) Subject() string { return p.User.Email }
func (RegisteredUser) principal()        {}

// Admin is a holder of a valid admin session cookie. There is one shared
// admin credential, so the only per-session fact is the token id.
type Admin struct {
	SessionID string
}

func (Admin) Subject() string { return RoleAdmin }
func (Admin) principal()      {}

// contextKey is an unexported type used for context keys in this package,
// so no other package can read or shadow the principal.
type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p != nil
}

// UserFromContext returns the authenticated student, or (nil, false) when
// the request is anonymous or authorized as the admin.
//
// Usage in handlers behind RequireUser:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // not reachable behind RequireUser
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, false
	}
	u, ok := p.(RegisteredUser)
	if !ok || u.User == nil {
		return nil, false
	}
	return u.User, true
}

// IsAdmin reports whether the request was authorized through the admin gate.
func IsAdmin(ctx context.Context) bool {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return false
	}
	_, ok = p.(Admin)
	return ok
}
