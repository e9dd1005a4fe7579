package handle

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"exam-grader/api/internal/store"
)

const errNoDatabase = "database not configured"

func (h *Handle) noDB(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, errNoDatabase)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json: " + err.Error())
	}
	return nil
}

type teacherInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
}

func (h *Handle) CreateTeacher(w http.ResponseWriter, r *http.Request) {
	if h.teachers == nil {
		h.noDB(w)
		return
	}
	var in teacherInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Name, in.Email = strings.TrimSpace(in.Name), strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required")
		return
	}
	t, err := h.teachers.Create(r.Context(), store.Teacher{Name: in.Name, Email: in.Email, Subject: strings.TrimSpace(in.Subject)})
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, "Teacher with this email already exists")
		return
	}
	if err != nil {
		h.failed(w, r, "create_teacher", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "teacher": t})
}

func (h *Handle) ListTeachers(w http.ResponseWriter, r *http.Request) {
	if h.teachers == nil {
		h.noDB(w)
		return
	}
	ts, err := h.teachers.List(r.Context())
	if err != nil {
		h.failed(w, r, "list_teachers", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "teachers": nonNil(ts), "count": len(ts)})
}

func (h *Handle) GetTeacher(w http.ResponseWriter, r *http.Request) {
	if h.teachers == nil {
		h.noDB(w)
		return
	}
	t, err := h.teachers.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Teacher not found")
		return
	}
	if err != nil {
		h.failed(w, r, "get_teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "teacher": t})
}

func (h *Handle) DeleteTeacher(w http.ResponseWriter, r *http.Request) {
	if h.teachers == nil {
		h.noDB(w)
		return
	}
	err := h.teachers.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Teacher not found")
		return
	}
	if err != nil {
		h.failed(w, r, "delete_teacher", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Teacher deleted successfully"})
}

type studentInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	RollNumber string `json:"roll_number"`
	Class      string `json:"class"`
}

func (h *Handle) CreateStudent(w http.ResponseWriter, r *http.Request) {
	if h.students == nil {
		h.noDB(w)
		return
	}
	var in studentInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	in.Name, in.Email = strings.TrimSpace(in.Name), strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		writeError(w, http.StatusBadRequest, "Name and email are required")
		return
	}
	s, err := h.students.Create(r.Context(), store.Student{
		Name:       in.Name,
		Email:      in.Email,
		RollNumber: strings.TrimSpace(in.RollNumber),
		Class:      strings.TrimSpace(in.Class),
	})
	if errors.Is(err, store.ErrDuplicate) {
		writeError(w, http.StatusBadRequest, "Student with this email already exists")
		return
	}
	if err != nil {
		h.failed(w, r, "create_student", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "student": s})
}

func (h *Handle) ListStudents(w http.ResponseWriter, r *http.Request) {
	if h.students == nil {
		h.noDB(w)
		return
	}
	ss, err := h.students.List(r.Context())
	if err != nil {
		h.failed(w, r, "list_students", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "students": nonNil(ss), "count": len(ss)})
}

func (h *Handle) GetStudent(w http.ResponseWriter, r *http.Request) {
	if h.students == nil {
		h.noDB(w)
		return
	}
	s, err := h.students.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Student not found")
		return
	}
	if err != nil {
		h.failed(w, r, "get_student", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "student": s})
}

func (h *Handle) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	if h.students == nil {
		h.noDB(w)
		return
	}
	err := h.students.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Student not found")
		return
	}
	if err != nil {
		h.failed(w, r, "delete_student", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Student deleted successfully"})
}

func (h *Handle) StudentStatistics(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	st, err := h.evals.StudentStatistics(r.Context(), r.PathValue("id"))
	if err != nil {
		h.failed(w, r, "student_statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "statistics": st})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
