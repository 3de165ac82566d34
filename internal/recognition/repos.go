package recognition

import (
	"context"
	"database/sql"

	"rollcall/internal/attendance"
	"rollcall/internal/gallery"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

// AttendanceWriter is the part of the attendance store the pipeline writes to.
type AttendanceWriter interface {
	Upsert(ctx context.Context, m attendance.Mark) (attendance.Record, error)
	DeleteByStudent(ctx context.Context, studentID int64) (int64, error)
}

// Roster looks up groups, subjects and students, and removes students.
type Roster interface {
	GetGroup(ctx context.Context, id int64) (roster.Group, error)
	GetSubject(ctx context.Context, id int64) (roster.Subject, error)
	GetStudent(ctx context.Context, id int64) (roster.Student, error)
	DeleteStudent(ctx context.Context, id int64) error
}

// Repos groups the stores one operation touches.
type Repos struct {
	Gallery    gallery.Store
	Attendance AttendanceWriter
	Roster     Roster
}

// Transactor hands out repos bound to the pool, or to one transaction that
// commits only if fn returns nil.
type Transactor interface {
	Repos() Repos
	WithinTx(ctx context.Context, fn func(Repos) error) error
}

// PostgresTransactor binds the Postgres repositories to *sql.DB or *sql.Tx.
type PostgresTransactor struct {
	db *sql.DB
}

// NewPostgresTransactor creates a Transactor on db.
func NewPostgresTransactor(db *sql.DB) *PostgresTransactor {
	return &PostgresTransactor{db: db}
}

func (p *PostgresTransactor) Repos() Repos {
	return reposOn(p.db)
}

func (p *PostgresTransactor) WithinTx(ctx context.Context, fn func(Repos) error) error {
	return store.WithTx(ctx, p.db, func(tx *sql.Tx) error {
		return fn(reposOn(tx))
	})
}

func reposOn(q store.DBTX) Repos {
	return Repos{
		Gallery:    gallery.NewRepository(q),
		Attendance: attendance.NewRepository(q),
		Roster:     roster.NewRepository(q),
	}
}
