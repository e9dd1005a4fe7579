package handle

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"exam-grader/api/internal/evaluation"
	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/recognize"
	"exam-grader/api/internal/store"
)

type evaluationResponse struct {
	evaluation.EvaluationResult
	ExtractedText string             `json:"extracted_text"`
	EvaluationID  string             `json:"evaluation_id,omitempty"`
	Strategy      recognize.Strategy `json:"strategy"`
	Outcome       evaluation.Outcome `json:"outcome"`
	Pages         int                `json:"pages"`
	TotalPages    int                `json:"total_pages"`
}

func (h *Handle) EvaluateAnswer(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r, "student_file", "No student file provided", false)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	modelAnswer := strings.TrimSpace(r.FormValue("model_answer"))
	rawMax := strings.TrimSpace(r.FormValue("max_marks"))
	if modelAnswer == "" || rawMax == "" {
		writeError(w, http.StatusBadRequest, "Model answer and max marks are required")
		return
	}
	maxMarks, err := strconv.Atoi(rawMax)
	if err != nil || maxMarks <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid max marks value")
		return
	}
	strategy, err := parseOptionalStrategy(r.FormValue("strategy"))
	if err != nil {
		h.failed(w, r, "evaluate", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	rep, err := h.exam.Evaluate(ctx, examiner.Submission{
		Document:    up.Data,
		ModelAnswer: modelAnswer,
		MaxMarks:    maxMarks,
		Question:    strings.TrimSpace(r.FormValue("question")),
		Strategy:    strategy,
	})
	if err != nil {
		h.failed(w, r, "evaluate", err)
		return
	}

	resp := evaluationResponse{
		EvaluationResult: rep.Result,
		ExtractedText:    rep.Extracted.FullText,
		Strategy:         rep.Extracted.Strategy,
		Outcome:          rep.Outcome,
		Pages:            len(rep.Extracted.Pages),
		TotalPages:       rep.Extracted.TotalPages,
	}

	if h.evals != nil {
		rec := &store.Evaluation{
			TeacherID:     strings.TrimSpace(r.FormValue("teacher_id")),
			StudentID:     strings.TrimSpace(r.FormValue("student_id")),
			Question:      strings.TrimSpace(r.FormValue("question")),
			ModelAnswer:   modelAnswer,
			StudentAnswer: up.Name,
			ExtractedText: rep.Extracted.FullText,
			Strategy:      string(rep.Extracted.Strategy),
			MaxMarks:      maxMarks,
			Marks:         rep.Result.MarksAwarded,
			Percentage:    rep.Result.Percentage,
			Grade:         rep.Result.Grade,
			Strengths:     rep.Result.Strengths,
			MissingPoints: rep.Result.MissingPoints,
			Feedback:      rep.Result.Feedback,
			Outcome:       string(rep.Outcome),
		}
		h.fillNames(r.Context(), rec)
		// the verdict is still returned when saving fails
		if err := h.evals.Create(r.Context(), rec); err != nil {
			h.reqLog(r).WithError(err).Error("save evaluation")
		} else {
			resp.EvaluationID = rec.ID
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "evaluation": resp})
}

// fillNames copies display names from the referenced teacher and student when they exist.
func (h *Handle) fillNames(ctx context.Context, rec *store.Evaluation) {
	rec.TeacherName, rec.StudentName, rec.StudentRollNo = "Unknown", "Unknown", "N/A"
	if rec.TeacherID != "" && h.teachers != nil {
		if t, err := h.teachers.FindByID(ctx, rec.TeacherID); err == nil {
			rec.TeacherName = t.Name
		}
	}
	if rec.StudentID != "" && h.students != nil {
		if s, err := h.students.FindByID(ctx, rec.StudentID); err == nil {
			rec.StudentName = s.Name
			if s.RollNumber != "" {
				rec.StudentRollNo = s.RollNumber
			}
		}
	}
}

func (h *Handle) OCROnly(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r, "file", "No file provided", false)
	if err != nil {
		writeUploadError(w, err)
		return
	}
	strategy, err := parseOptionalStrategy(r.FormValue("strategy"))
	if err != nil {
		h.failed(w, r, "ocr", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	doc, err := h.exam.ExtractOnly(ctx, up.Data, strategy)
	if err != nil {
		h.failed(w, r, "ocr", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"extracted_text": doc.FullText,
		"pages":          doc.Pages,
		"strategy":       doc.Strategy,
		"total_pages":    doc.TotalPages,
	})
}

func (h *Handle) UploadModelAnswer(w http.ResponseWriter, r *http.Request) {
	up, err := h.readUpload(w, r, "file", "No file provided", true)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	text, err := h.exam.ModelAnswerText(ctx, up.Data)
	if err != nil {
		h.failed(w, r, "model_answer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"model_answer": text,
		"message":      "Model answer uploaded successfully",
	})
}

func parseOptionalStrategy(s string) (recognize.Strategy, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	return recognize.ParseStrategy(s)
}
