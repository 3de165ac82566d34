package attendance

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

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repository persists attendance rows in Postgres.
type Repository struct {
	db store.DBTX
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo on a pool or a transaction.
func NewRepository(db store.DBTX) *Repository {
	return &Repository{db: db}
}

var recordColumns = []string{
	"attendance_id", "student_id", "subject_id", "group_id",
	"attendance_date", "status", "created_at", "updated_at",
}

// Upsert inserts the key or overwrites its status. attendance_id and
// created_at of an existing row are kept.
func (r *Repository) Upsert(ctx context.Context, m Mark) (Record, error) {
	return upsert(ctx, r.db, m)
}

// UpsertBatch writes all marks in one transaction, or none of them.
func (r *Repository) UpsertBatch(ctx context.Context, marks []Mark) ([]Record, error) {
	out := make([]Record, 0, len(marks))
	err := store.InTx(ctx, r.db, func(q store.DBTX) error {
		for i, m := range marks {
			rec, err := upsert(ctx, q, m)
			if err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func upsert(ctx context.Context, q store.DBTX, m Mark) (Record, error) {
	query, args, err := psql.Insert("attendance").
		Columns("student_id", "subject_id", "group_id", "attendance_date", "status").
		Values(m.StudentID, m.SubjectID, m.GroupID, m.Date.Format(DateLayout), string(m.Status)).
		Suffix(`ON CONFLICT ON CONSTRAINT attendance_key
			DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
			RETURNING ` + columnList()).
		ToSql()
	if err != nil {
		return Record{}, err
	}
	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Record{}, fmt.Errorf("upsert attendance for student %d: %w", m.StudentID, err)
	}
	return rec, nil
}

// ListForRoster returns every student of the group left-joined with the
// row for (subject, date), if any.
func (r *Repository) ListForRoster(ctx context.Context, groupID, subjectID int64, date time.Time) ([]RosterRow, error) {
	query, args, err := psql.Select("s.student_id", "s.full_name", "a.attendance_id", "a.status").
		From("students s").
		LeftJoin("attendance a ON a.student_id = s.student_id AND a.subject_id = ? AND a.group_id = ? AND a.attendance_date = ?",
			subjectID, groupID, date.Format(DateLayout)).
		Where(sq.Eq{"s.group_id": groupID}).
		OrderBy("s.full_name", "s.student_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	var res []RosterRow
	for rows.Next() {
		var row RosterRow
		var id sql.NullInt64
		var status sql.NullString
		if err := rows.Scan(&row.StudentID, &row.FullName, &id, &status); err != nil {
			return nil, err
		}
		row.Status = StatusAbsent
		if id.Valid {
			v := id.Int64
			row.RecordID = &v
			row.Marked = true
			row.Status = Status(status.String)
		}
		res = append(res, row)
	}
	return res, rows.Err()
}

// List returns stored rows matching the filter.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	b := psql.Select(recordColumns...).From("attendance")
	if f.StudentID > 0 {
		b = b.Where(sq.Eq{"student_id": f.StudentID})
	}
	if f.SubjectID > 0 {
		b = b.Where(sq.Eq{"subject_id": f.SubjectID})
	}
	if f.GroupID > 0 {
		b = b.Where(sq.Eq{"group_id": f.GroupID})
	}
	if !f.Date.IsZero() {
		b = b.Where(sq.Eq{"attendance_date": f.Date.Format(DateLayout)})
	}
	b = b.OrderBy("attendance_date DESC", "attendance_id")
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	if f.Offset > 0 {
		b = b.Offset(f.Offset)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// SetStatus overwrites the status of one record by id.
func (r *Repository) SetStatus(ctx context.Context, id int64, status Status) (Record, error) {
	query, args, err := psql.Update("attendance").
		Set("status", string(status)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"attendance_id": id}).
		Suffix("RETURNING " + columnList()).
		ToSql()
	if err != nil {
		return Record{}, err
	}
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, fmt.Errorf("%w: %d", ErrNotFound, id)
		}
		return Record{}, fmt.Errorf("update attendance %d: %w", id, err)
	}
	return rec, nil
}

// DeleteByStudent removes every row of a student.
func (r *Repository) DeleteByStudent(ctx context.Context, studentID int64) (int64, error) {
	query, args, err := psql.Delete("attendance").Where(sq.Eq{"student_id": studentID}).ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete attendance for student %d: %w", studentID, err)
	}
	return res.RowsAffected()
}

func columnList() string {
	return strings.Join(recordColumns, ", ")
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	var date time.Time
	var status string
	if err := scanner.Scan(&rec.ID, &rec.StudentID, &rec.SubjectID, &rec.GroupID, &date, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Date = date.Format(DateLayout)
	rec.Status = Status(status)
	return rec, nil
}
