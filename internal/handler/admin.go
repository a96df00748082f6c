package handler

import (
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/student-registry/internal/apperror"
	"github.com/sakif/student-registry/internal/auth"
	"github.com/sakif/student-registry/internal/model"
	"github.com/sakif/student-registry/internal/service"
)

//go:embed templates/*.html
var templateFS embed.FS

// AdminHandler serves the admin gate and the admin HTML pages.
//
// It holds parsed templates so they are not re-parsed on every request.
// Each page is parsed together with base.html: base defines the layout with
// a {{template "content" .}} placeholder and the page fills it in.
type AdminHandler struct {
	admin        *service.AdminService
	students     *service.StudentService
	pages        map[string]*template.Template
	cookieSecure bool
	logger       *slog.Logger
}

// NewAdminHandler parses the embedded templates and returns an AdminHandler.
// cookieSecure marks the session cookie Secure (set it when served over HTTPS).
func NewAdminHandler(
	admin *service.AdminService,
	students *service.StudentService,
	cookieSecure bool,
	logger *slog.Logger,
) (*AdminHandler, error) {
	pages := make(map[string]*template.Template)
	for _, page := range []string{"admin_login.html", "admin.html", "admin_edit.html"} {
		tmpl, err := template.ParseFS(templateFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, err
		}
		pages[page] = tmpl
	}

	return &AdminHandler{
		admin:        admin,
		students:     students,
		pages:        pages,
		cookieSecure: cookieSecure,
		logger:       logger,
	}, nil
}

type loginPageData struct {
	Title    string
	Error    string
	Disabled bool
}

type dashboardPageData struct {
	Title    string
	Students []model.User
	Total    int
}

type editPageData struct {
	Title   string
	Student *model.User
	Fields  model.StudentFields
	Error   string
}

// HandleLoginPage serves the admin password form.
//
// HTTP: GET /admin-login
func (h *AdminHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "admin_login.html", loginPageData{
		Title:    "Admin Login",
		Disabled: !h.admin.Enabled(),
	})
}

// HandleLogin checks the admin password and starts an admin session.
//
// HTTP: POST /admin-login (form: password=...)
//
// On success the session token goes into the admin_session cookie and the
// browser is redirected to /admin with 303 See Other, so a reload does not
// re-submit the form. A wrong password re-renders the form with 401.
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "admin_login.html", loginPageData{
			Title: "Admin Login",
			Error: "Invalid form submission",
		})
		return
	}

	sess, err := h.admin.Login(r.Context(), r.PostForm.Get("password"))
	if err != nil {
		if errors.Is(err, apperror.ErrInvalidCredentials) {
			h.render(w, http.StatusUnauthorized, "admin_login.html", loginPageData{
				Title:    "Admin Login",
				Error:    "Invalid password",
				Disabled: !h.admin.Enabled(),
			})
			return
		}
		h.logger.Error("admin login failed", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	auth.SetAdminCookie(w, sess.Token, h.cookieSecure)
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// HandleLogout ends the admin session.
//
// HTTP: POST /admin-logout
//
// The session token stays valid until it expires, but without the cookie
// the browser can no longer send it.
func (h *AdminHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearAdminCookie(w, h.cookieSecure)
	http.Redirect(w, r, "/admin-login", http.StatusSeeOther)
}

// HandleDashboard renders the student table.
//
// HTTP: GET /admin
// Auth: admin cookie (RequireAdmin with RedirectToLogin as deny handler)
func (h *AdminHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	students, err := h.students.List(r.Context())
	if err != nil {
		h.logger.Error("listing students for dashboard", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	total, err := h.students.Count(r.Context())
	if err != nil {
		h.logger.Error("counting students for dashboard", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.render(w, http.StatusOK, "admin.html", dashboardPageData{
		Title:    "Student Registry Admin",
		Students: students,
		Total:    total,
	})
}

// HandleEditPage renders the edit form for one student.
//
// HTTP: GET /admin/edit/{id}
func (h *AdminHandler) HandleEditPage(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	student, err := h.students.Get(r.Context(), id)
	if err != nil {
		h.pageError(w, r, err)
		return
	}

	h.render(w, http.StatusOK, "admin_edit.html", editPageData{
		Title:   "Edit Student",
		Student: student,
		Fields:  student.Fields(),
	})
}

// HandleEdit saves the edit form and returns to the dashboard.
//
// HTTP: POST /admin/edit/{id}
//
// An invalid submission re-renders the form with 400, keeping what the
// admin typed.
func (h *AdminHandler) HandleEdit(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}

	fields, err := studentFieldsFromForm(r.PostForm)
	if err == nil {
		_, err = h.students.Update(r.Context(), id, fields)
	}
	if err == nil {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}

	var appErr *apperror.AppError
	if !errors.Is(err, apperror.ErrValidation) || !errors.As(err, &appErr) {
		h.pageError(w, r, err)
		return
	}

	student, getErr := h.students.Get(r.Context(), id)
	if getErr != nil {
		h.pageError(w, r, getErr)
		return
	}
	h.render(w, http.StatusBadRequest, "admin_edit.html", editPageData{
		Title:   "Edit Student",
		Student: student,
		Fields:  fields,
		Error:   appErr.Message,
	})
}

// HandleDelete removes a student and returns to the dashboard.
//
// HTTP: POST /admin/delete/{id}
func (h *AdminHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := h.students.Delete(r.Context(), id); err != nil {
		h.pageError(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

// studentFieldsFromForm reads the edit form. Only year needs parsing;
// everything else is checked by the service's validation rules.
func studentFieldsFromForm(form url.Values) (model.StudentFields, error) {
	f := model.StudentFields{
		LastName:      form.Get("lastName"),
		FirstName:     form.Get("firstName"),
		MiddleInitial: form.Get("middleInitial"),
		Course:        form.Get("course"),
		Gender:        form.Get("gender"),
		Graduating:    formBool(form.Get("graduating")),
	}
	year, err := strconv.Atoi(strings.TrimSpace(form.Get("year")))
	if err != nil {
		return f, apperror.ValidationFailed("year", "year: must be a number")
	}
	f.Year = year
	return f, nil
}

// pageError answers a failed admin page action in plain text.
func (h *AdminHandler) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	h.logger.Error("admin page action failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// RedirectToLogin is the deny handler for admin HTML pages.
func RedirectToLogin(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/admin-login", http.StatusSeeOther)
}

// render executes the "base" template of the named page.
func (h *AdminHandler) render(w http.ResponseWriter, status int, page string, data interface{}) {
	tmpl, ok := h.pages[page]
	if !ok {
		h.logger.Error("unknown page template", slog.String("page", page))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	// Set content type header BEFORE writing the body
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		// The status line is already sent; log and leave the partial page.
		h.logger.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
	}
}
