package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeDSNSummary(t *testing.T) {
	assert.Equal(t, "host=db port=5432 db=grader user=exam",
		SafeDSNSummary("postgres://exam:secret@db:5432/grader?sslmode=disable"))
	assert.Equal(t, "host=db db=grader user=exam", SafeDSNSummary("postgres://exam:secret@db/grader"))
	assert.Equal(t, "dsn: parse error", SafeDSNSummary("::"))
}

func TestHelpers(t *testing.T) {
	_, err := parseID("not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(errors.New("23505")))

	assert.Equal(t, 10, limitOr(0, 10))
	assert.Equal(t, 3, limitOr(3, 10))
	assert.Equal(t, 500, limitOr(10_000, 10))

	assert.Equal(t, []string{"a"}, decodeList([]byte(`["a"]`)))
	assert.Equal(t, []string{}, decodeList([]byte(`null`)))
	assert.Equal(t, []string{}, decodeList([]byte(`{bad`)))
	assert.False(t, nullable("  ").Valid)
}

// Runs against a real database only when EXAM_TEST_DATABASE_URL is set.
func TestRepos_Postgres(t *testing.T) {
	dsn := os.Getenv("EXAM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("EXAM_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db), "idempotent")

	teachers := NewTeacherRepo(db)
	students := NewStudentRepo(db)
	evals := NewEvaluationRepo(db)

	email := fmt.Sprintf("t-%s@example.com", t.Name())
	_, _ = db.ExecContext(ctx, `delete from teachers where email = $1`, email)
	tc, err := teachers.Create(ctx, Teacher{Name: "Ada", Email: email, Subject: "Physics"})
	require.NoError(t, err)
	defer teachers.Delete(ctx, tc.ID)
	_, err = teachers.Create(ctx, Teacher{Name: "Ada 2", Email: email})
	assert.ErrorIs(t, err, ErrDuplicate)

	st, err := students.Create(ctx, Student{Name: "Bo", Email: "s-" + email, RollNumber: "R1", Class: "9B"})
	require.NoError(t, err)
	defer students.Delete(ctx, st.ID)

	e := &Evaluation{
		TeacherID: tc.ID, TeacherName: tc.Name, StudentID: st.ID, StudentName: st.Name, StudentRollNo: "R1",
		ModelAnswer: "Water boils at 100°C at sea level.", MaxMarks: 10,
		Marks: 8, Percentage: 80, Grade: "B+", Strengths: []string{"Correct boiling point"},
		Feedback: "Good.", Outcome: "parsed",
	}
	require.NoError(t, evals.Create(ctx, e))
	defer evals.Delete(ctx, e.ID)

	got, err := evals.FindByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Correct boiling point"}, got.Strengths)
	assert.Equal(t, []string{}, got.MissingPoints)

	byStudent, err := evals.ByStudent(ctx, st.ID, 0)
	require.NoError(t, err)
	require.Len(t, byStudent, 1)

	stats, err := evals.StudentStatistics(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, Statistics{TotalEvaluations: 1, AverageMarks: 8, AveragePercentage: 80, TotalMarks: 8, MaxPossibleMarks: 10}, stats)

	require.NoError(t, evals.Delete(ctx, e.ID))
	assert.ErrorIs(t, evals.Delete(ctx, e.ID), ErrNotFound)
}
