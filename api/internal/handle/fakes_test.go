package handle

import (
	"context"
	"errors"
	"sync"
	"time"

	"exam-grader/api/internal/evaluation"
	"exam-grader/api/internal/examiner"
	"exam-grader/api/internal/extraction"
	"exam-grader/api/internal/recognize"
	"exam-grader/api/internal/store"
)

type fakeExam struct {
	mu      sync.Mutex
	subs    []examiner.Submission
	report  examiner.Report
	err     error
	modelTx string
}

func (f *fakeExam) Evaluate(_ context.Context, sub examiner.Submission) (examiner.Report, error) {
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return f.report, f.err
}

func (f *fakeExam) ExtractOnly(_ context.Context, _ []byte, strategy recognize.Strategy) (extraction.ExtractedDocument, error) {
	if f.err != nil {
		return extraction.ExtractedDocument{}, f.err
	}
	if strategy == "" {
		strategy = recognize.StrategyLocal
	}
	doc := f.report.Extracted
	doc.Strategy = strategy
	return doc, nil
}

func (f *fakeExam) ModelAnswerText(context.Context, []byte) (string, error) {
	return f.modelTx, f.err
}

func okReport() examiner.Report {
	pages := []recognize.PageExtraction{recognize.Recognized(0, "water boils at 100C")}
	return examiner.Report{
		Result: evaluation.EvaluationResult{
			MarksAwarded:  8,
			Percentage:    80,
			Strengths:     []string{"correct value"},
			MissingPoints: []string{},
			Feedback:      "Good",
			Grade:         "B+",
		},
		Extracted: extraction.ExtractedDocument{
			Pages:      pages,
			FullText:   extraction.Join(pages),
			Strategy:   recognize.StrategyLocal,
			TotalPages: 1,
		},
		Outcome: evaluation.OutcomeParsed,
	}
}

type memTeachers struct {
	byID map[string]store.Teacher
}

func (m *memTeachers) Create(_ context.Context, t store.Teacher) (store.Teacher, error) {
	for _, x := range m.byID {
		if x.Email == t.Email {
			return store.Teacher{}, store.ErrDuplicate
		}
	}
	t.ID = "t" + string(rune('0'+len(m.byID)+1))
	t.CreatedAt = time.Unix(0, 0).UTC()
	m.byID[t.ID] = t
	return t, nil
}

func (m *memTeachers) FindByID(_ context.Context, id string) (store.Teacher, error) {
	t, ok := m.byID[id]
	if !ok {
		return store.Teacher{}, store.ErrNotFound
	}
	return t, nil
}

func (m *memTeachers) List(context.Context) ([]store.Teacher, error) {
	var out []store.Teacher
	for _, t := range m.byID {
		out = append(out, t)
	}
	return out, nil
}

func (m *memTeachers) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memStudents struct {
	byID map[string]store.Student
}

func (m *memStudents) Create(_ context.Context, s store.Student) (store.Student, error) {
	s.ID = "s" + string(rune('0'+len(m.byID)+1))
	m.byID[s.ID] = s
	return s, nil
}

func (m *memStudents) FindByID(_ context.Context, id string) (store.Student, error) {
	s, ok := m.byID[id]
	if !ok {
		return store.Student{}, store.ErrNotFound
	}
	return s, nil
}

func (m *memStudents) List(context.Context) ([]store.Student, error) { return nil, nil }

func (m *memStudents) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type memEvaluations struct {
	saved   []store.Evaluation
	failErr error
	limits  []int
}

func (m *memEvaluations) Create(_ context.Context, e *store.Evaluation) error {
	if m.failErr != nil {
		return m.failErr
	}
	e.ID = "e1"
	m.saved = append(m.saved, *e)
	return nil
}

func (m *memEvaluations) FindByID(_ context.Context, id string) (store.Evaluation, error) {
	for _, e := range m.saved {
		if e.ID == id {
			return e, nil
		}
	}
	return store.Evaluation{}, store.ErrNotFound
}

func (m *memEvaluations) List(context.Context) ([]store.Evaluation, error) { return m.saved, nil }

func (m *memEvaluations) ByStudent(_ context.Context, _ string, limit int) ([]store.Evaluation, error) {
	m.limits = append(m.limits, limit)
	return nil, nil
}

func (m *memEvaluations) ByTeacher(_ context.Context, _ string, limit int) ([]store.Evaluation, error) {
	m.limits = append(m.limits, limit)
	return nil, nil
}

func (m *memEvaluations) Recent(_ context.Context, limit int) ([]store.Evaluation, error) {
	m.limits = append(m.limits, limit)
	return m.saved, nil
}

func (m *memEvaluations) Delete(context.Context, string) error { return store.ErrNotFound }

func (m *memEvaluations) StudentStatistics(context.Context, string) (store.Statistics, error) {
	return store.Statistics{TotalEvaluations: 2, AverageMarks: 7.5, MaxPossibleMarks: 20}, nil
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

var errBoom = errors.New("boom")
