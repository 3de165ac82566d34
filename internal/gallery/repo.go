package gallery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"rollcall/internal/face"
	"rollcall/internal/store"
)

// Repository persists gallery entries in the faces table.
type Repository struct {
	db store.DBTX
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo on a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

// Add inserts a new entry. The unique image_id constraint backs the
// duplicate check against concurrent enrollments.
func (r *Repository) Add(ctx context.Context, studentID int64, emb face.Embedding, imageID string) (Entry, error) {
	e := Entry{StudentID: studentID, ImageID: imageID, Embedding: emb}
	row := r.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO faces (student_id, embedding, image_id)
			VALUES ($1, $2, $3)
			RETURNING face_id, student_id, created_at
		)
		SELECT i.face_id, i.created_at, s.full_name, COALESCE(s.group_id, 0)
		FROM inserted i JOIN students s ON s.student_id = i.student_id
	`, studentID, pgvector.NewVector(emb), imageID)
	if err := row.Scan(&e.FaceID, &e.CreatedAt, &e.FullName, &e.GroupID); err != nil {
		if store.IsUniqueViolation(err, "faces_image_id_key") {
			return Entry{}, fmt.Errorf("%w: %s", ErrDuplicateImageID, imageID)
		}
		return Entry{}, fmt.Errorf("insert face for student %d: %w", studentID, err)
	}
	return e, nil
}

const selectEntries = `
	SELECT f.face_id, f.student_id, s.full_name, COALESCE(s.group_id, 0), f.image_id, f.embedding, f.created_at
	FROM faces f
	JOIN students s ON s.student_id = f.student_id
`

// FindByImageID returns the entry registered under imageID, or nil.
func (r *Repository) FindByImageID(ctx context.Context, imageID string) (*Entry, error) {
	row := r.db.QueryRowContext(ctx, selectEntries+` WHERE f.image_id = $1`, imageID)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find face by image id %s: %w", imageID, err)
	}
	return &e, nil
}

// CountByStudent returns how many entries a student has.
func (r *Repository) CountByStudent(ctx context.Context, studentID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM faces WHERE student_id = $1`, studentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count faces for student %d: %w", studentID, err)
	}
	return n, nil
}

// RemoveByStudent deletes every entry of a student and returns their image ids.
func (r *Repository) RemoveByStudent(ctx context.Context, studentID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `DELETE FROM faces WHERE student_id = $1 RETURNING image_id`, studentID)
	if err != nil {
		return nil, fmt.Errorf("delete faces for student %d: %w", studentID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveByImageID deletes a single entry.
func (r *Repository) RemoveByImageID(ctx context.Context, imageID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM faces WHERE image_id = $1`, imageID)
	if err != nil {
		return false, fmt.Errorf("delete face %s: %w", imageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// AllEntries is a full scan of the gallery. No index is used; the gallery
// is bounded by the roster size.
func (r *Repository) AllEntries(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, selectEntries+` ORDER BY f.face_id`)
	if err != nil {
		return nil, fmt.Errorf("query gallery: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var e Entry
	var vec pgvector.Vector
	if err := scanner.Scan(&e.FaceID, &e.StudentID, &e.FullName, &e.GroupID, &e.ImageID, &vec, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Embedding = face.Embedding(vec.Slice())
	return e, nil
}
