package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/auth"
	"github.com/sakif/student-registry/internal/handler"
	"github.com/sakif/student-registry/internal/model"
	sqliteRepo "github.com/sakif/student-registry/internal/repository/sqlite"
	"github.com/sakif/student-registry/internal/service"
)

const adminPassword = "admin-pass"

// testEnv wires real services over an in-memory database.
type testEnv struct {
	db       *sqliteRepo.DB
	tokens   *auth.TokenService
	auth     *handler.AuthHandler
	students *handler.StudentHandler
	admin    *handler.AdminHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	db, err := sqliteRepo.New(sqliteRepo.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-1234", 30*time.Minute)
	require.NoError(t, err)
	passwords := auth.NewPasswordService(bcrypt.MinCost)

	authSvc := service.NewAuthService(db, tokens, passwords,
		service.TokenPolicy{Standard: 30 * time.Minute, Remember: 7 * 24 * time.Hour}, logger)
	studentSvc := service.NewStudentService(db, logger)
	adminSvc, err := service.NewAdminService(adminPassword, passwords, tokens, time.Hour, logger)
	require.NoError(t, err)

	adminHandler, err := handler.NewAdminHandler(adminSvc, studentSvc, false, logger)
	require.NoError(t, err)

	return &testEnv{
		db:       db,
		tokens:   tokens,
		auth:     handler.NewAuthHandler(authSvc, logger),
		students: handler.NewStudentHandler(studentSvc, logger),
		admin:    adminHandler,
	}
}

func jsonRequest(method, target string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withID sets the chi {id} URL parameter, as the router would.
func withID(req *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func registration(email string) map[string]interface{} {
	return map[string]interface{}{
		"email":      email,
		"password":   "pw1",
		"lastName":   "Cruz",
		"firstName":  "Juan",
		"course":     "BSCS",
		"year":       2,
		"gender":     "male",
		"graduating": false,
	}
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var e handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&e))
	return e
}

func (e *testEnv) register(t *testing.T, email string) int64 {
	t.Helper()
	rr := httptest.NewRecorder()
	e.auth.HandleRegister(rr, jsonRequest(http.MethodPost, "/register", registration(email)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res handler.MessageResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res.ID
}

// =========================================================================
// REGISTER / LOGIN
// =========================================================================

func TestAuthHandler_Register(t *testing.T) {
	env := newTestEnv(t)

	t.Run("created", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.auth.HandleRegister(rr, jsonRequest(http.MethodPost, "/register", registration("a@x.com")))

		assert.Equal(t, http.StatusOK, rr.Code)
		var res handler.MessageResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "User registered successfully", res.Message)
		assert.NotZero(t, res.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.auth.HandleRegister(rr, jsonRequest(http.MethodPost, "/register", registration("a@x.com")))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		e := decodeError(t, rr)
		assert.Equal(t, "duplicate_email", e.Error)
		assert.Equal(t, "Email already registered", e.Message)
	})

	t.Run("invalid body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(`{"email":`))
		env.auth.HandleRegister(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "validation_error", decodeError(t, rr).Error)
	})

	t.Run("wrong field type", func(t *testing.T) {
		body := registration("b@x.com")
		body["year"] = "second"
		rr := httptest.NewRecorder()
		env.auth.HandleRegister(rr, jsonRequest(http.MethodPost, "/register", body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		e := decodeError(t, rr)
		assert.Equal(t, "validation_error", e.Error)
		assert.Equal(t, "year", e.Field)
		assert.NotContains(t, e.Message, "StudentFields")
		assert.True(t, strings.HasPrefix(e.Message, "year: "), e.Message)
	})

	t.Run("validation failure", func(t *testing.T) {
		body := registration("not-an-email")
		rr := httptest.NewRecorder()
		env.auth.HandleRegister(rr, jsonRequest(http.MethodPost, "/register", body))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		e := decodeError(t, rr)
		assert.Equal(t, "validation_error", e.Error)
		assert.Equal(t, "email", e.Field)
	})
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com")

	t.Run("success", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.auth.HandleLogin(rr, jsonRequest(http.MethodPost, "/login",
			handler.LoginRequest{Email: "a@x.com", Password: "pw1"}))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

		var res handler.TokenResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "bearer", res.TokenType)
		assert.Equal(t, res.Token, res.AccessToken)
		assert.Equal(t, int64(30*60), res.ExpiresIn)

		claims, err := env.tokens.Verify(res.Token)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", claims.Subject)
	})

	t.Run("remember me", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.auth.HandleLogin(rr, jsonRequest(http.MethodPost, "/login",
			handler.LoginRequest{Email: "a@x.com", Password: "pw1", Remember: true}))

		require.Equal(t, http.StatusOK, rr.Code)
		var res handler.TokenResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, int64(7*24*3600), res.ExpiresIn)
	})

	t.Run("wrong password and unknown email look the same", func(t *testing.T) {
		wrong := httptest.NewRecorder()
		env.auth.HandleLogin(wrong, jsonRequest(http.MethodPost, "/login",
			handler.LoginRequest{Email: "a@x.com", Password: "wrong"}))
		unknown := httptest.NewRecorder()
		env.auth.HandleLogin(unknown, jsonRequest(http.MethodPost, "/login",
			handler.LoginRequest{Email: "ghost@x.com", Password: "pw1"}))

		assert.Equal(t, http.StatusUnauthorized, wrong.Code)
		assert.Equal(t, http.StatusUnauthorized, unknown.Code)
		assert.Equal(t, "Bearer", wrong.Header().Get("WWW-Authenticate"))
		assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	})
}

func TestAuthHandler_Token(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com")

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantTTL    int64
	}{
		{"password grant", url.Values{"username": {"a@x.com"}, "password": {"pw1"}}, http.StatusOK, 30 * 60},
		{"remember checkbox", url.Values{"username": {"a@x.com"}, "password": {"pw1"}, "remember": {"on"}}, http.StatusOK, 7 * 24 * 3600},
		{"remember false", url.Values{"username": {"a@x.com"}, "password": {"pw1"}, "remember": {"false"}}, http.StatusOK, 30 * 60},
		{"wrong password", url.Values{"username": {"a@x.com"}, "password": {"nope"}}, http.StatusUnauthorized, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()

			env.auth.HandleToken(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}
			var res handler.TokenResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
			assert.Equal(t, tt.wantTTL, res.ExpiresIn)
		})
	}
}

// =========================================================================
// PROFILE
// =========================================================================

func TestAuthHandler_Profile(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "a@x.com")
	user, err := env.db.FindByID(context.Background(), id)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/user/profile", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.RegisteredUser{User: user}))
	rr := httptest.NewRecorder()

	env.auth.HandleProfile(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `"email":"a@x.com"`)
	assert.NotContains(t, body, "hashed", "password hash must never be serialised")
	assert.NotContains(t, body, "$2a$")
}

func TestAuthHandler_ProfileWithoutPrincipal(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.auth.HandleProfile(rr, httptest.NewRequest(http.MethodGet, "/user/profile", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "a@x.com")
	user, err := env.db.FindByID(context.Background(), id)
	require.NoError(t, err)

	asUser := func(req *http.Request) *http.Request {
		return req.WithContext(auth.WithPrincipal(req.Context(), auth.RegisteredUser{User: user}))
	}

	t.Run("updated", func(t *testing.T) {
		fields := user.Fields()
		fields.Course = "BSIT"
		fields.Graduating = true

		rr := httptest.NewRecorder()
		env.auth.HandleUpdateProfile(rr, asUser(jsonRequest(http.MethodPut, "/user/update", fields)))

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		stored, err := env.db.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "BSIT", stored.Course)
		assert.True(t, stored.Graduating)
	})

	t.Run("invalid", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.auth.HandleUpdateProfile(rr, asUser(jsonRequest(http.MethodPut, "/user/update", model.StudentFields{})))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("no principal", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.auth.HandleUpdateProfile(rr, jsonRequest(http.MethodPut, "/user/update", user.Fields()))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// =========================================================================
// ADMIN STUDENTS API
// =========================================================================

func TestStudentHandler_CRUD(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "a@x.com")
	env.register(t, "b@x.com")
	idStr := strconv.FormatInt(id, 10)

	// List
	rr := httptest.NewRecorder()
	env.students.HandleList(rr, httptest.NewRequest(http.MethodGet, "/admin/students", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var list []model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	require.Len(t, list, 2)
	assert.Equal(t, "a@x.com", list[0].Email)

	// Update then Get returns the new fields
	fields := model.StudentFields{
		LastName: "Santos", FirstName: "Maria", MiddleInitial: "L",
		Course: "BSEE", Year: 4, Gender: "female", Graduating: true,
	}
	rr = httptest.NewRecorder()
	env.students.HandleUpdate(rr, withID(jsonRequest(http.MethodPut, "/admin/students/"+idStr, fields), idStr))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	env.students.HandleGet(rr, withID(httptest.NewRequest(http.MethodGet, "/admin/students/"+idStr, nil), idStr))
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, fields, got.Fields())

	// Delete then Get is 404
	rr = httptest.NewRecorder()
	env.students.HandleDelete(rr, withID(httptest.NewRequest(http.MethodDelete, "/admin/students/"+idStr, nil), idStr))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	env.students.HandleGet(rr, withID(httptest.NewRequest(http.MethodGet, "/admin/students/"+idStr, nil), idStr))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decodeError(t, rr).Error)
}

func TestStudentHandler_BadIDs(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		id         string
		wantStatus int
	}{
		{"abc", http.StatusBadRequest},
		{"1.5", http.StatusBadRequest},
		{"", http.StatusBadRequest},
		{"0", http.StatusNotFound},
		{"404", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run("id="+tt.id, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.students.HandleGet(rr, withID(httptest.NewRequest(http.MethodGet, "/admin/students/x", nil), tt.id))
			assert.Equal(t, tt.wantStatus, rr.Code)

			rr = httptest.NewRecorder()
			env.students.HandleDelete(rr, withID(httptest.NewRequest(http.MethodDelete, "/admin/students/x", nil), tt.id))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

// =========================================================================
// ADMIN PAGES
// =========================================================================

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAdminHandler_LoginPage(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.admin.HandleLoginPage(rr, httptest.NewRequest(http.MethodGet, "/admin-login", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), `name="password"`)
}

func TestAdminHandler_Login(t *testing.T) {
	env := newTestEnv(t)

	t.Run("correct password sets session cookie", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.admin.HandleLogin(rr, postForm("/admin-login", url.Values{"password": {adminPassword}}))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/admin", rr.Header().Get("Location"))

		cookies := rr.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, auth.AdminCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)

		claims, err := env.tokens.Verify(cookies[0].Value)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, claims.Role)
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.admin.HandleLogin(rr, postForm("/admin-login", url.Values{"password": {"guess"}}))

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, rr.Result().Cookies())
		assert.Contains(t, rr.Body.String(), "Invalid password")
	})
}

func TestAdminHandler_Logout(t *testing.T) {
	env := newTestEnv(t)

	rr := httptest.NewRecorder()
	env.admin.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/admin-logout", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/admin-login", rr.Header().Get("Location"))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestAdminHandler_Dashboard(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "a@x.com")
	env.register(t, "b@x.com")

	rr := httptest.NewRecorder()
	env.admin.HandleDashboard(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "a@x.com")
	assert.Contains(t, body, "2 student(s)")
	assert.Contains(t, body, `action="/admin/delete/1"`)
	assert.Contains(t, body, `href="/admin/edit/2"`)
}

func editForm(year string) url.Values {
	return url.Values{
		"lastName":      {"Santos"},
		"firstName":     {"Maria"},
		"middleInitial": {""},
		"course":        {"BSEE"},
		"year":          {year},
		"gender":        {"female"},
		"graduating":    {"on"},
	}
}

func TestAdminHandler_EditPage(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "a@x.com")

	t.Run("prefilled", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.admin.HandleEditPage(rr, withID(httptest.NewRequest(http.MethodGet, "/admin/edit/1", nil), strconv.FormatInt(id, 10)))

		assert.Equal(t, http.StatusOK, rr.Code)
		body := rr.Body.String()
		assert.Contains(t, body, `value="a@x.com"`)
		assert.Contains(t, body, `name="lastName" value="Cruz"`)
		assert.Contains(t, body, `action="/admin/edit/`+strconv.FormatInt(id, 10)+`"`)
	})

	for _, raw := range []string{"999", "abc"} {
		t.Run("unknown "+raw, func(t *testing.T) {
			rr := httptest.NewRecorder()
			env.admin.HandleEditPage(rr, withID(httptest.NewRequest(http.MethodGet, "/admin/edit/"+raw, nil), raw))

			assert.Equal(t, http.StatusNotFound, rr.Code)
		})
	}
}

func TestAdminHandler_Edit(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "a@x.com")
	rawID := strconv.FormatInt(id, 10)

	t.Run("saved", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.admin.HandleEdit(rr, withID(postForm("/admin/edit/"+rawID, editForm("4")), rawID))

		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/admin", rr.Header().Get("Location"))

		stored, err := env.db.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Santos", stored.LastName)
		assert.Equal(t, 4, stored.Year)
		assert.True(t, stored.Graduating)
		assert.Empty(t, stored.MiddleInitial)
		assert.Equal(t, "a@x.com", stored.Email)
	})

	t.Run("year not a number", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.admin.HandleEdit(rr, withID(postForm("/admin/edit/"+rawID, editForm("second")), rawID))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "year: must be a number")
	})

	t.Run("validation failure keeps input", func(t *testing.T) {
		form := editForm("3")
		form.Set("lastName", "")
		form.Set("course", "BSArch")
		rr := httptest.NewRecorder()
		env.admin.HandleEdit(rr, withID(postForm("/admin/edit/"+rawID, form), rawID))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), `value="BSArch"`)

		stored, err := env.db.FindByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Santos", stored.LastName)
	})

	t.Run("unknown student", func(t *testing.T) {
		rr := httptest.NewRecorder()
		env.admin.HandleEdit(rr, withID(postForm("/admin/edit/999", editForm("2")), "999"))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestAdminHandler_Delete(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "a@x.com")
	rawID := strconv.FormatInt(id, 10)

	rr := httptest.NewRecorder()
	env.admin.HandleDelete(rr, withID(httptest.NewRequest(http.MethodPost, "/admin/delete/"+rawID, nil), rawID))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/admin", rr.Header().Get("Location"))
	_, err := env.db.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	rr = httptest.NewRecorder()
	env.admin.HandleDelete(rr, withID(httptest.NewRequest(http.MethodPost, "/admin/delete/"+rawID, nil), rawID))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =========================================================================
// HEALTH
// =========================================================================

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 4}))

	rr := httptest.NewRecorder()
	handler.NewHealthHandler(fakePinger{}, logger).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.NewHealthHandler(fakePinger{err: errors.New("closed")}, logger).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
