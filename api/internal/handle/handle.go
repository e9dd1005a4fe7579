package handle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/extraction"
	"exam-grader/api/internal/grading"
	"exam-grader/api/internal/recognize"
	"exam-grader/api/internal/store"
)

type Evaluator interface {
	Evaluate(ctx context.Context, sub examiner.Submission) (examiner.Report, error)
	ExtractOnly(ctx context.Context, data []byte, strategy recognize.Strategy) (extraction.ExtractedDocument, error)
	ModelAnswerText(ctx context.Context, data []byte) (string, error)
}

type TeacherStore interface {
	Create(ctx context.Context, t store.Teacher) (store.Teacher, error)
	FindByID(ctx context.Context, id string) (store.Teacher, error)
	List(ctx context.Context) ([]store.Teacher, error)
	Delete(ctx context.Context, id string) error
}

type StudentStore interface {
	Create(ctx context.Context, s store.Student) (store.Student, error)
	FindByID(ctx context.Context, id string) (store.Student, error)
	List(ctx context.Context) ([]store.Student, error)
	Delete(ctx context.Context, id string) error
}

type EvaluationStore interface {
	Create(ctx context.Context, e *store.Evaluation) error
	FindByID(ctx context.Context, id string) (store.Evaluation, error)
	List(ctx context.Context) ([]store.Evaluation, error)
	ByStudent(ctx context.Context, studentID string, limit int) ([]store.Evaluation, error)
	ByTeacher(ctx context.Context, teacherID string, limit int) ([]store.Evaluation, error)
	Recent(ctx context.Context, limit int) ([]store.Evaluation, error)
	Delete(ctx context.Context, id string) error
	StudentStatistics(ctx context.Context, studentID string) (store.Statistics, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of Handle. The stores and DB may all be nil when no database is
// configured; evaluation then works without persistence.
type Deps struct {
	Exam           Evaluator
	Teachers       TeacherStore
	Students       StudentStore
	Evaluations    EvaluationStore
	DB             Pinger
	MaxUploadBytes int64
	RequestTimeout time.Duration
	AllowedOrigins []string
	Log            logrus.FieldLogger
}

type Handle struct {
	exam     Evaluator
	teachers TeacherStore
	students StudentStore
	evals    EvaluationStore
	db       Pinger

	maxUpload int64
	timeout   time.Duration
	origins   []string
	log       logrus.FieldLogger
}

func New(d Deps) *Handle {
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 16 << 20
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 180 * time.Second
	}
	if d.Log == nil {
		d.Log = logrus.StandardLogger()
	}
	return &Handle{
		exam:      d.Exam,
		teachers:  d.Teachers,
		students:  d.Students,
		evals:     d.Evaluations,
		db:        d.DB,
		maxUpload: d.MaxUploadBytes,
		timeout:   d.RequestTimeout,
		origins:   d.AllowedOrigins,
		log:       d.Log,
	}
}

// Routes registers every endpoint and wraps them with request ids, logging and CORS.
func (h *Handle) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", h.Health)

	mux.HandleFunc("POST /api/teachers", h.CreateTeacher)
	mux.HandleFunc("GET /api/teachers", h.ListTeachers)
	mux.HandleFunc("GET /api/teachers/{id}", h.GetTeacher)
	mux.HandleFunc("DELETE /api/teachers/{id}", h.DeleteTeacher)

	mux.HandleFunc("POST /api/students", h.CreateStudent)
	mux.HandleFunc("GET /api/students", h.ListStudents)
	mux.HandleFunc("GET /api/students/{id}", h.GetStudent)
	mux.HandleFunc("DELETE /api/students/{id}", h.DeleteStudent)
	mux.HandleFunc("GET /api/students/{id}/statistics", h.StudentStatistics)

	mux.HandleFunc("POST /api/upload-model-answer", h.UploadModelAnswer)
	mux.HandleFunc("POST /api/evaluate-answer", h.EvaluateAnswer)
	mux.HandleFunc("POST /api/ocr-only", h.OCROnly)

	mux.HandleFunc("GET /api/evaluations", h.ListEvaluations)
	mux.HandleFunc("GET /api/evaluations/recent", h.RecentEvaluations)
	mux.HandleFunc("GET /api/evaluations/{id}", h.GetEvaluation)
	mux.HandleFunc("DELETE /api/evaluations/{id}", h.DeleteEvaluation)
	mux.HandleFunc("GET /api/evaluations/student/{id}", h.StudentEvaluations)
	mux.HandleFunc("GET /api/evaluations/teacher/{id}", h.TeacherEvaluations)

	return h.withRequestLog(h.withCORS(mux))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor is the single place errors become HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, grading.ErrInvalidRequest),
		errors.Is(err, recognize.ErrUnknownStrategy),
		errors.Is(err, extraction.ErrStrategyUnavailable),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, document.ErrDocumentFormat),
		errors.Is(err, examiner.ErrNoModelAnswerText):
		return http.StatusUnprocessableEntity
	case errors.Is(err, grading.ErrGradingUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// failed logs err and writes it with the mapped status.
func (h *Handle) failed(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := statusFor(err)
	entry := h.reqLog(r).WithError(err).WithField("op", op)
	if code >= 500 {
		entry.Error("request failed")
	} else {
		entry.Info("request rejected")
	}
	writeError(w, code, err.Error())
}

// deadline reads X-Request-Timeout (seconds) or ?timeoutSec, falling back to the configured default.
func (h *Handle) deadline(r *http.Request) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return h.timeout
}

func queryLimit(r *http.Request, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		return v
	}
	return def
}
