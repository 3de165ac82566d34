// Package attendance reconciles recognised students against attendance rows
// keyed by (student, subject, group, date).
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/metrics"
)

// DateLayout is the wire and storage format of attendance dates.
const DateLayout = "2006-01-02"

var (
	ErrInvalidStatus = errors.New("status must be present or absent")
	ErrInvalidMark   = errors.New("invalid attendance mark")
	ErrNotFound      = errors.New("attendance record not found")
)

// Status is the stored state of one attendance key.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// ParseStatus validates a client-supplied status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPresent, StatusAbsent:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// ParseDate parses a YYYY-MM-DD date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidMark, s)
	}
	return d, nil
}

// Mark is a requested status for one key.
type Mark struct {
	StudentID int64
	SubjectID int64
	GroupID   int64
	Date      time.Time
	Status    Status
}

// Validate checks ids and status.
func (m Mark) Validate() error {
	if m.StudentID <= 0 || m.SubjectID <= 0 || m.GroupID <= 0 {
		return fmt.Errorf("%w: student, subject and group ids are required", ErrInvalidMark)
	}
	if m.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidMark)
	}
	if _, err := ParseStatus(string(m.Status)); err != nil {
		return err
	}
	return nil
}

// Record is a stored attendance row.
type Record struct {
	ID        int64     `json:"attendance_id"`
	StudentID int64     `json:"student_id"`
	SubjectID int64     `json:"subject_id"`
	GroupID   int64     `json:"group_id"`
	Date      string    `json:"date"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RosterRow is one student of a group for a (subject, date). Students
// without a stored row are reported absent with Marked false.
type RosterRow struct {
	StudentID int64  `json:"student_id"`
	FullName  string `json:"full_name"`
	RecordID  *int64 `json:"attendance_id,omitempty"`
	Status    Status `json:"status"`
	Marked    bool   `json:"marked"`
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	StudentID int64
	SubjectID int64
	GroupID   int64
	Date      time.Time
	Limit     uint64
	Offset    uint64
}

// Store persists attendance rows.
type Store interface {
	Upsert(ctx context.Context, m Mark) (Record, error)
	UpsertBatch(ctx context.Context, marks []Mark) ([]Record, error)
	ListForRoster(ctx context.Context, groupID, subjectID int64, date time.Time) ([]RosterRow, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	SetStatus(ctx context.Context, id int64, status Status) (Record, error)
	DeleteByStudent(ctx context.Context, studentID int64) (int64, error)
}

// Service validates requests before they reach the store.
type Service struct {
	repo Store
}

// NewService creates a service backed by a repository.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Mark upserts one key; the last write wins.
func (s *Service) Mark(ctx context.Context, m Mark) (Record, error) {
	if err := m.Validate(); err != nil {
		return Record{}, err
	}
	rec, err := s.repo.Upsert(ctx, m)
	if err != nil {
		return Record{}, err
	}
	metrics.AttendanceMarks.WithLabelValues(string(m.Status)).Inc()
	return rec, nil
}

// MarkBatch validates every mark first and then writes the whole batch
// atomically. One invalid mark rejects the batch.
func (s *Service) MarkBatch(ctx context.Context, marks []Mark) ([]Record, error) {
	if len(marks) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrInvalidMark)
	}
	for i, m := range marks {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	recs, err := s.repo.UpsertBatch(ctx, marks)
	if err != nil {
		return nil, err
	}
	for _, m := range marks {
		metrics.AttendanceMarks.WithLabelValues(string(m.Status)).Inc()
	}
	return recs, nil
}

// Roster lists every student of the group with their status.
func (s *Service) Roster(ctx context.Context, groupID, subjectID int64, date time.Time) ([]RosterRow, error) {
	if groupID <= 0 || subjectID <= 0 || date.IsZero() {
		return nil, fmt.Errorf("%w: group, subject and date are required", ErrInvalidMark)
	}
	return s.repo.ListForRoster(ctx, groupID, subjectID, date)
}

// List returns stored rows, newest date first.
func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit == 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return s.repo.List(ctx, f)
}

// SetStatus overwrites the status of an existing record.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (Record, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.repo.SetStatus(ctx, id, st)
	if err != nil {
		return Record{}, err
	}
	metrics.AttendanceMarks.WithLabelValues(string(st)).Inc()
	return rec, nil
}
