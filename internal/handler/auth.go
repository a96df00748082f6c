package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/auth"
	"github.com/sakif/student-registry/internal/model"
	"github.com/sakif/student-registry/internal/service"
)

// AuthHandler serves the student self-service API.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister      → create an account
//   - HandleLogin         → JSON login, returns a bearer token
//   - HandleToken         → form login for OAuth2 password-flow clients
//   - HandleProfile       → the caller's own record
//   - HandleUpdateProfile → overwrite the caller's profile fields
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// TokenResponse is returned by both login endpoints.
//
// access_token and token carry the same value: the first is what OAuth2
// password-flow clients read, the second is the registry's own name.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// HandleRegister creates a student account. It does not log the student in.
//
// HTTP: POST /register
// REQUEST BODY: {"email": "...", "password": "...", "lastName": "...", ...}
// RESPONSE: 200 {"message": "User registered successfully", "id": 1}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), reg)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: "User registered successfully",
		ID:      user.ID,
	})
}

// HandleLogin exchanges an email and password for a bearer token.
//
// HTTP: POST /login
// REQUEST BODY: {"email": "...", "password": "...", "remember": false}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	h.login(w, r, req)
}

// HandleToken is the form-encoded variant of HandleLogin, matching the
// OAuth2 password grant: the email goes in "username".
//
// HTTP: POST /token
// REQUEST BODY: username=a%40x.com&password=...&remember=true
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, apperror.ValidationFailed("", "request body must be form encoded"))
		return
	}

	req := LoginRequest{
		Email:    r.PostForm.Get("username"),
		Password: r.PostForm.Get("password"),
	}
	req.Remember = formBool(r.PostForm.Get("remember"))
	h.login(w, r, req)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, req LoginRequest) {
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, req.Remember)
	if err != nil {
		writeError(w, err)
		return
	}

	// Tokens must not be cached by intermediaries.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: res.Token,
		Token:       res.Token,
		TokenType:   res.TokenType,
		ExpiresIn:   int64(res.ExpiresIn.Seconds()),
	})
}

// HandleProfile returns the authenticated student's record.
//
// HTTP: GET /user/profile
// Auth: bearer token (RequireUser puts the principal in the context)
func (h *AuthHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())

	user, err := h.auth.Profile(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleUpdateProfile overwrites the caller's profile fields.
//
// HTTP: PUT /user/update
// Auth: bearer token
// REQUEST BODY: {"lastName": "...", "firstName": "...", "course": "...", ...}
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		// Not reachable behind RequireUser.
		writeError(w, apperror.Unauthenticated("Could not validate credentials"))
		return
	}

	var fields model.StudentFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.auth.UpdateProfile(r.Context(), user.ID, fields); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Profile updated successfully"})
}
