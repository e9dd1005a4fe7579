package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Evaluation is one stored verdict with the context it was produced in.
type Evaluation struct {
	ID            string    `json:"_id"`
	TeacherID     string    `json:"teacher_id,omitempty"`
	TeacherName   string    `json:"teacher_name"`
	StudentID     string    `json:"student_id,omitempty"`
	StudentName   string    `json:"student_name"`
	StudentRollNo string    `json:"student_rollno"`
	Question      string    `json:"question"`
	ModelAnswer   string    `json:"model_answer"`
	StudentAnswer string    `json:"student_answer"` // uploaded file name
	ExtractedText string    `json:"extracted_text"`
	Strategy      string    `json:"strategy,omitempty"`
	MaxMarks      int       `json:"max_marks"`
	Marks         float64   `json:"marks"`
	Percentage    float64   `json:"percentage"`
	Grade         string    `json:"grade"`
	Strengths     []string  `json:"strengths"`
	MissingPoints []string  `json:"missing_points"`
	Feedback      string    `json:"feedback"`
	Outcome       string    `json:"outcome,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Statistics struct {
	TotalEvaluations  int     `json:"total_evaluations"`
	AverageMarks      float64 `json:"average_marks"`
	AveragePercentage float64 `json:"average_percentage"`
	TotalMarks        float64 `json:"total_marks"`
	MaxPossibleMarks  int     `json:"max_possible_marks"`
}

type EvaluationRepo struct{ DB *sql.DB }

func NewEvaluationRepo(db *sql.DB) *EvaluationRepo { return &EvaluationRepo{DB: db} }

const evaluationColumns = `
id, coalesce(teacher_id,''), teacher_name, coalesce(student_id,''), student_name, student_rollno,
question, model_answer, student_answer, extracted_text, strategy, max_marks,
marks, percentage, grade, strengths, missing_points, feedback, outcome, created_at, updated_at`

// Create stores e and fills in ID and timestamps.
func (r *EvaluationRepo) Create(ctx context.Context, e *Evaluation) error {
	strengths, err := json.Marshal(nonNil(e.Strengths))
	if err != nil {
		return err
	}
	missing, err := json.Marshal(nonNil(e.MissingPoints))
	if err != nil {
		return err
	}
	const q = `
insert into evaluations (
  id, teacher_id, teacher_name, student_id, student_name, student_rollno,
  question, model_answer, student_answer, extracted_text, strategy, max_marks,
  marks, percentage, grade, strengths, missing_points, feedback, outcome
) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
returning created_at, updated_at`
	id := uuid.New()
	if err := r.DB.QueryRowContext(ctx, q,
		id, nullable(e.TeacherID), e.TeacherName, nullable(e.StudentID), e.StudentName, e.StudentRollNo,
		e.Question, e.ModelAnswer, e.StudentAnswer, e.ExtractedText, e.Strategy, e.MaxMarks,
		e.Marks, e.Percentage, e.Grade, strengths, missing, e.Feedback, e.Outcome,
	).Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	e.ID = id.String()
	return nil
}

func (r *EvaluationRepo) FindByID(ctx context.Context, id string) (Evaluation, error) {
	uid, err := parseID(id)
	if err != nil {
		return Evaluation{}, err
	}
	q := `select ` + evaluationColumns + ` from evaluations where id = $1`
	e, err := scanEvaluation(r.DB.QueryRowContext(ctx, q, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return Evaluation{}, ErrNotFound
	}
	return e, err
}

// List returns every evaluation, newest first.
func (r *EvaluationRepo) List(ctx context.Context) ([]Evaluation, error) {
	return r.query(ctx, `select `+evaluationColumns+` from evaluations order by created_at desc`)
}

func (r *EvaluationRepo) ByStudent(ctx context.Context, studentID string, limit int) ([]Evaluation, error) {
	return r.query(ctx, `select `+evaluationColumns+`
from evaluations where student_id = $1 order by created_at desc limit $2`, studentID, limitOr(limit, 10))
}

func (r *EvaluationRepo) ByTeacher(ctx context.Context, teacherID string, limit int) ([]Evaluation, error) {
	return r.query(ctx, `select `+evaluationColumns+`
from evaluations where teacher_id = $1 order by created_at desc limit $2`, teacherID, limitOr(limit, 10))
}

func (r *EvaluationRepo) Recent(ctx context.Context, limit int) ([]Evaluation, error) {
	return r.query(ctx, `select `+evaluationColumns+`
from evaluations order by created_at desc limit $1`, limitOr(limit, 20))
}

func (r *EvaluationRepo) Delete(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `delete from evaluations where id = $1`, uid)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

// StudentStatistics aggregates a student's evaluations. No rows gives zero values.
func (r *EvaluationRepo) StudentStatistics(ctx context.Context, studentID string) (Statistics, error) {
	const q = `
select count(*),
       coalesce(avg(marks), 0),
       coalesce(avg(percentage), 0),
       coalesce(sum(marks), 0),
       coalesce(sum(max_marks), 0)
from evaluations where student_id = $1`
	var s Statistics
	err := r.DB.QueryRowContext(ctx, q, studentID).
		Scan(&s.TotalEvaluations, &s.AverageMarks, &s.AveragePercentage, &s.TotalMarks, &s.MaxPossibleMarks)
	return s, err
}

// PurgeOlderThan deletes evaluations created before now-olderThan.
func (r *EvaluationRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	res, err := r.DB.ExecContext(ctx, `delete from evaluations where created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *EvaluationRepo) query(ctx context.Context, q string, args ...any) ([]Evaluation, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Evaluation{}
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEvaluation(s rowScanner) (Evaluation, error) {
	var (
		e                  Evaluation
		id                 uuid.UUID
		strengths, missing []byte
	)
	if err := s.Scan(&id, &e.TeacherID, &e.TeacherName, &e.StudentID, &e.StudentName, &e.StudentRollNo,
		&e.Question, &e.ModelAnswer, &e.StudentAnswer, &e.ExtractedText, &e.Strategy, &e.MaxMarks,
		&e.Marks, &e.Percentage, &e.Grade, &strengths, &missing, &e.Feedback, &e.Outcome,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return Evaluation{}, err
	}
	e.ID = id.String()
	e.Strengths = decodeList(strengths)
	e.MissingPoints = decodeList(missing)
	return e, nil
}

// decodeList treats a corrupt column as empty rather than failing the whole listing.
func decodeList(b []byte) []string {
	out := []string{}
	if len(b) == 0 {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, 500)
}
