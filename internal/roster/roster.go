// Package roster stores the groups, subjects and students that attendance
// is recorded against.
package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"rollcall/internal/store"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrInvalid  = errors.New("invalid roster input")
)

type Group struct {
	ID   int64  `json:"group_id"`
	Name string `json:"group_name"`
}

type Subject struct {
	ID   int64  `json:"subject_id"`
	Name string `json:"subject_name"`
}

// Student belongs to at most one group; GroupID is 0 when unassigned.
// ImageID is the most recent enrollment photo, if any.
type Student struct {
	ID        int64     `json:"student_id"`
	FullName  string    `json:"full_name"`
	GroupID   int64     `json:"group_id"`
	HasPhoto  bool      `json:"has_photo"`
	ImageID   string    `json:"image_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists roster data in Postgres.
type Repository struct {
	db store.DBTX
}

// NewRepository creates a repo on a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateGroup(ctx context.Context, name string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalid)
	}
	g := Group{Name: name}
	query, args, err := psql.Insert("groups").Columns("group_name").Values(name).Suffix("RETURNING group_id").ToSql()
	if err != nil {
		return Group{}, err
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&g.ID); err != nil {
		if store.IsUniqueViolation(err, "") {
			return Group{}, fmt.Errorf("group %q: %w", name, ErrConflict)
		}
		return Group{}, fmt.Errorf("insert group: %w", err)
	}
	return g, nil
}

func (r *Repository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_id, group_name FROM groups ORDER BY group_name`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	groups := []Group{}
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetGroup returns ErrNotFound for unknown ids.
func (r *Repository) GetGroup(ctx context.Context, id int64) (Group, error) {
	g := Group{ID: id}
	err := r.db.QueryRowContext(ctx, `SELECT group_name FROM groups WHERE group_id = $1`, id).Scan(&g.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Group{}, fmt.Errorf("group %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Group{}, fmt.Errorf("get group %d: %w", id, err)
	}
	return g, nil
}

func (r *Repository) CreateSubject(ctx context.Context, name string) (Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, fmt.Errorf("%w: subject name is required", ErrInvalid)
	}
	s := Subject{Name: name}
	query, args, err := psql.Insert("subjects").Columns("subject_name").Values(name).Suffix("RETURNING subject_id").ToSql()
	if err != nil {
		return Subject{}, err
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.ID); err != nil {
		if store.IsUniqueViolation(err, "") {
			return Subject{}, fmt.Errorf("subject %q: %w", name, ErrConflict)
		}
		return Subject{}, fmt.Errorf("insert subject: %w", err)
	}
	return s, nil
}

func (r *Repository) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT subject_id, subject_name FROM subjects ORDER BY subject_name`)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()
	subjects := []Subject{}
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// GetSubject returns ErrNotFound for unknown ids.
func (r *Repository) GetSubject(ctx context.Context, id int64) (Subject, error) {
	sub := Subject{ID: id}
	err := r.db.QueryRowContext(ctx, `SELECT subject_name FROM subjects WHERE subject_id = $1`, id).Scan(&sub.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Subject{}, fmt.Errorf("subject %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Subject{}, fmt.Errorf("get subject %d: %w", id, err)
	}
	return sub, nil
}

// CreateStudent inserts a student. groupID 0 leaves the student unassigned.
func (r *Repository) CreateStudent(ctx context.Context, fullName string, groupID int64) (Student, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return Student{}, fmt.Errorf("%w: full name is required", ErrInvalid)
	}
	var group any
	if groupID > 0 {
		group = groupID
	}
	query, args, err := psql.Insert("students").
		Columns("full_name", "group_id").
		Values(fullName, group).
		Suffix("RETURNING student_id, created_at").
		ToSql()
	if err != nil {
		return Student{}, err
	}
	st := Student{FullName: fullName, GroupID: groupID}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&st.ID, &st.CreatedAt); err != nil {
		if store.IsForeignKeyViolation(err) {
			return Student{}, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return Student{}, fmt.Errorf("insert student: %w", err)
	}
	return st, nil
}

// GetStudent returns ErrNotFound for unknown ids.
func (r *Repository) GetStudent(ctx context.Context, id int64) (Student, error) {
	query, args, err := studentSelect().Where(sq.Eq{"student_id": id}).ToSql()
	if err != nil {
		return Student{}, err
	}
	st, err := scanStudent(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, fmt.Errorf("student %d: %w", id, ErrNotFound)
		}
		return Student{}, fmt.Errorf("get student %d: %w", id, err)
	}
	return st, nil
}

// ListStudents lists all students, or those of one group when groupID > 0.
func (r *Repository) ListStudents(ctx context.Context, groupID int64) ([]Student, error) {
	b := studentSelect().OrderBy("full_name", "student_id")
	if groupID > 0 {
		b = b.Where(sq.Eq{"group_id": groupID})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()
	students := []Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

// DeleteStudent removes the student row only. Faces and attendance must be
// deleted first in the same transaction.
func (r *Repository) DeleteStudent(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE student_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("student %d: %w", id, ErrNotFound)
	}
	return nil
}

const latestImageID = `(SELECT f.image_id FROM faces f WHERE f.student_id = students.student_id
	ORDER BY f.created_at DESC, f.face_id DESC LIMIT 1)`

func studentSelect() sq.SelectBuilder {
	return psql.Select("student_id", "full_name", "COALESCE(group_id, 0)", latestImageID, "created_at").From("students")
}

func scanStudent(scanner interface{ Scan(dest ...any) error }) (Student, error) {
	var st Student
	var imageID sql.NullString
	if err := scanner.Scan(&st.ID, &st.FullName, &st.GroupID, &imageID, &st.CreatedAt); err != nil {
		return Student{}, err
	}
	st.HasPhoto = imageID.Valid
	st.ImageID = imageID.String
	return st, nil
}
