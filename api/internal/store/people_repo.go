package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Teacher struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Student struct {
	ID         string    `json:"_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	RollNumber string    `json:"roll_number,omitempty"`
	Class      string    `json:"class,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type TeacherRepo struct{ DB *sql.DB }

func NewTeacherRepo(db *sql.DB) *TeacherRepo { return &TeacherRepo{DB: db} }

// Create assigns the id and timestamps. A taken email gives ErrDuplicate.
func (r *TeacherRepo) Create(ctx context.Context, t Teacher) (Teacher, error) {
	const q = `
insert into teachers (id, name, email, subject)
values ($1, $2, $3, $4)
returning created_at, updated_at`
	id := uuid.New()
	if err := r.DB.QueryRowContext(ctx, q, id, t.Name, t.Email, nullable(t.Subject)).
		Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Teacher{}, ErrDuplicate
		}
		return Teacher{}, err
	}
	t.ID = id.String()
	return t, nil
}

func (r *TeacherRepo) FindByID(ctx context.Context, id string) (Teacher, error) {
	uid, err := parseID(id)
	if err != nil {
		return Teacher{}, err
	}
	const q = `
select id, name, email, coalesce(subject,''), created_at, updated_at
from teachers where id = $1`
	t, err := scanTeacher(r.DB.QueryRowContext(ctx, q, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return Teacher{}, ErrNotFound
	}
	return t, err
}

func (r *TeacherRepo) List(ctx context.Context) ([]Teacher, error) {
	const q = `
select id, name, email, coalesce(subject,''), created_at, updated_at
from teachers order by created_at`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Teacher{}
	for rows.Next() {
		t, err := scanTeacher(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TeacherRepo) Delete(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `delete from teachers where id = $1`, uid)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeacher(s rowScanner) (Teacher, error) {
	var (
		t  Teacher
		id uuid.UUID
	)
	if err := s.Scan(&id, &t.Name, &t.Email, &t.Subject, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Teacher{}, err
	}
	t.ID = id.String()
	return t, nil
}

type StudentRepo struct{ DB *sql.DB }

func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{DB: db} }

func (r *StudentRepo) Create(ctx context.Context, s Student) (Student, error) {
	const q = `
insert into students (id, name, email, roll_number, class_name)
values ($1, $2, $3, $4, $5)
returning created_at, updated_at`
	id := uuid.New()
	if err := r.DB.QueryRowContext(ctx, q, id, s.Name, s.Email, nullable(s.RollNumber), nullable(s.Class)).
		Scan(&s.CreatedAt, &s.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return Student{}, ErrDuplicate
		}
		return Student{}, err
	}
	s.ID = id.String()
	return s, nil
}

func (r *StudentRepo) FindByID(ctx context.Context, id string) (Student, error) {
	uid, err := parseID(id)
	if err != nil {
		return Student{}, err
	}
	const q = `
select id, name, email, coalesce(roll_number,''), coalesce(class_name,''), created_at, updated_at
from students where id = $1`
	s, err := scanStudent(r.DB.QueryRowContext(ctx, q, uid))
	if errors.Is(err, sql.ErrNoRows) {
		return Student{}, ErrNotFound
	}
	return s, err
}

func (r *StudentRepo) List(ctx context.Context) ([]Student, error) {
	const q = `
select id, name, email, coalesce(roll_number,''), coalesce(class_name,''), created_at, updated_at
from students order by created_at`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StudentRepo) Delete(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `delete from students where id = $1`, uid)
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

func scanStudent(s rowScanner) (Student, error) {
	var (
		st Student
		id uuid.UUID
	)
	if err := s.Scan(&id, &st.Name, &st.Email, &st.RollNumber, &st.Class, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return Student{}, err
	}
	st.ID = id.String()
	return st, nil
}
