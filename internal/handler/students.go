package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/student-registry/internal/model"
	"github.com/sakif/student-registry/internal/service"
)

// StudentHandler serves the admin JSON API over student records.
// Every route sits behind auth.RequireAdmin.
type StudentHandler struct {
	students *service.StudentService
	logger   *slog.Logger
}

// NewStudentHandler creates a new StudentHandler.
func NewStudentHandler(students *service.StudentService, logger *slog.Logger) *StudentHandler {
	return &StudentHandler{
		students: students,
		logger:   logger,
	}
}

// HandleList returns every student ordered by id.
//
// HTTP: GET /admin/students
func (h *StudentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.students.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns one student.
//
// HTTP: GET /admin/students/{id}
func (h *StudentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.students.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleUpdate overwrites a student's profile fields.
//
// HTTP: PUT /admin/students/{id}
// REQUEST BODY: {"lastName": "...", "firstName": "...", ...}
func (h *StudentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var fields model.StudentFields
	if err := decodeJSON(w, r, &fields); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.students.Update(r.Context(), id, fields); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Student updated successfully"})
}

// HandleDelete removes a student.
//
// HTTP: DELETE /admin/students/{id}
func (h *StudentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := studentID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.students.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("student delete requested", slog.Int64("id", id))
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Student deleted successfully"})
}
