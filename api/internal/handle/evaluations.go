package handle

import (
	"errors"
	"net/http"

	"exam-grader/api/internal/store"
)

// ListEvaluations answers with a bare array, newest first.
func (h *Handle) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	es, err := h.evals.List(r.Context())
	if err != nil {
		h.failed(w, r, "list_evaluations", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(es))
}

func (h *Handle) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	e, err := h.evals.FindByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Evaluation not found")
		return
	}
	if err != nil {
		h.failed(w, r, "get_evaluation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "evaluation": e})
}

func (h *Handle) DeleteEvaluation(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	err := h.evals.Delete(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Evaluation not found")
		return
	}
	if err != nil {
		h.failed(w, r, "delete_evaluation", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Evaluation deleted successfully"})
}

func (h *Handle) StudentEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	es, err := h.evals.ByStudent(r.Context(), r.PathValue("id"), queryLimit(r, 10))
	h.writeEvaluations(w, r, "student_evaluations", es, err)
}

func (h *Handle) TeacherEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	es, err := h.evals.ByTeacher(r.Context(), r.PathValue("id"), queryLimit(r, 10))
	h.writeEvaluations(w, r, "teacher_evaluations", es, err)
}

func (h *Handle) RecentEvaluations(w http.ResponseWriter, r *http.Request) {
	if h.evals == nil {
		h.noDB(w)
		return
	}
	es, err := h.evals.Recent(r.Context(), queryLimit(r, 20))
	h.writeEvaluations(w, r, "recent_evaluations", es, err)
}

func (h *Handle) writeEvaluations(w http.ResponseWriter, r *http.Request, op string, es []store.Evaluation, err error) {
	if err != nil {
		h.failed(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "evaluations": nonNil(es), "count": len(es)})
}
