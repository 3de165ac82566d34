package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/color"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"rollcall/internal/attendance"
	"rollcall/internal/face"
	"rollcall/internal/gallery"
	"rollcall/internal/media"
	"rollcall/internal/roster"
)

var errStorage = errors.New("storage unavailable")

type attKey struct {
	student, subject, group int64
	date                    string
}

// memDB is the whole persistent state; WithinTx snapshots it and restores
// the snapshot when fn fails.
type memDB struct {
	groups     map[int64]bool
	subjects   map[int64]bool
	students   map[int64]roster.Student
	faces      []gallery.Entry
	attendance map[attKey]attendance.Record
	nextFace   int64
	nextAtt    int64
}

func (db *memDB) clone() *memDB {
	c := &memDB{
		groups:     make(map[int64]bool, len(db.groups)),
		subjects:   make(map[int64]bool, len(db.subjects)),
		students:   make(map[int64]roster.Student, len(db.students)),
		faces:      append([]gallery.Entry(nil), db.faces...),
		attendance: make(map[attKey]attendance.Record, len(db.attendance)),
		nextFace:   db.nextFace,
		nextAtt:    db.nextAtt,
	}
	for k, v := range db.groups {
		c.groups[k] = v
	}
	for k, v := range db.subjects {
		c.subjects[k] = v
	}
	for k, v := range db.students {
		c.students[k] = v
	}
	for k, v := range db.attendance {
		c.attendance[k] = v
	}
	return c
}

type fakeTx struct {
	mu        sync.Mutex
	db        *memDB
	commits   int
	rollbacks int

	// failUpsertAfter makes the n-th attendance upsert (1-based) fail.
	failUpsertAfter int
	upserts         int
	// failAdd is returned by every gallery insert.
	failAdd error
}

func newFakeTx() *fakeTx {
	return &fakeTx{db: &memDB{
		groups:     make(map[int64]bool),
		subjects:   make(map[int64]bool),
		students:   make(map[int64]roster.Student),
		attendance: make(map[attKey]attendance.Record),
	}}
}

func (t *fakeTx) addStudent(id, group int64, name string) {
	t.db.groups[group] = true
	t.db.students[id] = roster.Student{ID: id, FullName: name, GroupID: group}
}

func (t *fakeTx) addSubject(id int64) {
	t.db.subjects[id] = true
}

func (t *fakeTx) Repos() Repos {
	return Repos{Gallery: fakeGallery{t}, Attendance: fakeAttendance{t}, Roster: fakeRoster{t}}
}

func (t *fakeTx) WithinTx(_ context.Context, fn func(Repos) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := t.db.clone()
	if err := fn(t.Repos()); err != nil {
		t.db = snap
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

type fakeGallery struct{ t *fakeTx }

func (g fakeGallery) Add(_ context.Context, studentID int64, emb face.Embedding, imageID string) (gallery.Entry, error) {
	if g.t.failAdd != nil {
		return gallery.Entry{}, g.t.failAdd
	}
	db := g.t.db
	for _, e := range db.faces {
		if e.ImageID == imageID {
			return gallery.Entry{}, gallery.ErrDuplicateImageID
		}
	}
	st := db.students[studentID]
	db.nextFace++
	e := gallery.Entry{
		FaceID:    db.nextFace,
		StudentID: studentID,
		FullName:  st.FullName,
		GroupID:   st.GroupID,
		ImageID:   imageID,
		Embedding: emb,
	}
	db.faces = append(db.faces, e)
	return e, nil
}

func (g fakeGallery) FindByImageID(_ context.Context, imageID string) (*gallery.Entry, error) {
	for _, e := range g.t.db.faces {
		if e.ImageID == imageID {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (g fakeGallery) CountByStudent(_ context.Context, studentID int64) (int, error) {
	n := 0
	for _, e := range g.t.db.faces {
		if e.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (g fakeGallery) RemoveByStudent(_ context.Context, studentID int64) ([]string, error) {
	db := g.t.db
	var kept []gallery.Entry
	var ids []string
	for _, e := range db.faces {
		if e.StudentID == studentID {
			ids = append(ids, e.ImageID)
			continue
		}
		kept = append(kept, e)
	}
	db.faces = kept
	return ids, nil
}

func (g fakeGallery) RemoveByImageID(_ context.Context, imageID string) (bool, error) {
	db := g.t.db
	for i, e := range db.faces {
		if e.ImageID == imageID {
			db.faces = append(db.faces[:i:i], db.faces[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (g fakeGallery) AllEntries(context.Context) ([]gallery.Entry, error) {
	return append([]gallery.Entry(nil), g.t.db.faces...), nil
}

type fakeAttendance struct{ t *fakeTx }

func (a fakeAttendance) Upsert(_ context.Context, m attendance.Mark) (attendance.Record, error) {
	a.t.upserts++
	if a.t.failUpsertAfter > 0 && a.t.upserts >= a.t.failUpsertAfter {
		return attendance.Record{}, errStorage
	}
	db := a.t.db
	k := attKey{m.StudentID, m.SubjectID, m.GroupID, m.Date.Format(attendance.DateLayout)}
	rec, ok := db.attendance[k]
	if !ok {
		db.nextAtt++
		rec = attendance.Record{ID: db.nextAtt, StudentID: m.StudentID, SubjectID: m.SubjectID, GroupID: m.GroupID, Date: k.date}
	}
	rec.Status = m.Status
	db.attendance[k] = rec
	return rec, nil
}

func (a fakeAttendance) DeleteByStudent(_ context.Context, studentID int64) (int64, error) {
	var n int64
	for k := range a.t.db.attendance {
		if k.student == studentID {
			delete(a.t.db.attendance, k)
			n++
		}
	}
	return n, nil
}

type fakeRoster struct{ t *fakeTx }

func (s fakeRoster) GetGroup(_ context.Context, id int64) (roster.Group, error) {
	if !s.t.db.groups[id] {
		return roster.Group{}, fmt.Errorf("group %d: %w", id, roster.ErrNotFound)
	}
	return roster.Group{ID: id, Name: fmt.Sprintf("group-%d", id)}, nil
}

func (s fakeRoster) GetSubject(_ context.Context, id int64) (roster.Subject, error) {
	if !s.t.db.subjects[id] {
		return roster.Subject{}, fmt.Errorf("subject %d: %w", id, roster.ErrNotFound)
	}
	return roster.Subject{ID: id, Name: fmt.Sprintf("subject-%d", id)}, nil
}

func (s fakeRoster) GetStudent(_ context.Context, id int64) (roster.Student, error) {
	st, ok := s.t.db.students[id]
	if !ok {
		return roster.Student{}, fmt.Errorf("student %d: %w", id, roster.ErrNotFound)
	}
	return st, nil
}

func (s fakeRoster) DeleteStudent(_ context.Context, id int64) error {
	if _, ok := s.t.db.students[id]; !ok {
		return fmt.Errorf("student %d: %w", id, roster.ErrNotFound)
	}
	delete(s.t.db.students, id)
	return nil
}

type fakeExtractor struct {
	dets []face.Detection
	err  error
}

func (f *fakeExtractor) Extract(context.Context, []byte) ([]face.Detection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]face.Detection(nil), f.dets...), nil
}

type scheduled struct {
	paths []string
	delay time.Duration
}

type fakeScheduler struct {
	calls []scheduled
}

func (f *fakeScheduler) Schedule(_ context.Context, paths []string, delay time.Duration) error {
	f.calls = append(f.calls, scheduled{paths: append([]string(nil), paths...), delay: delay})
	return nil
}

type fixture struct {
	svc   *Service
	tx    *fakeTx
	ex    *fakeExtractor
	sched *fakeScheduler
	media *media.Store
}

func newFixture(t *testing.T, policy gallery.Policy) *fixture {
	t.Helper()
	root := t.TempDir()
	m, err := media.New(filepath.Join(root, "uploads"), filepath.Join(root, "recognition"), filepath.Join(root, "faces"), "/faces")
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{tx: newFakeTx(), ex: &fakeExtractor{}, sched: &fakeScheduler{}, media: m}
	for _, id := range []int64{10, 20} {
		f.tx.db.groups[id] = true
	}
	f.tx.addSubject(1)
	f.tx.addSubject(3)
	f.svc = NewService(f.tx, f.ex, m, f.sched, Config{
		Threshold:    0.5,
		EmbeddingDim: 3,
		Policy:       policy,
		CleanupDelay: time.Minute,
	}, log.New(io.Discard, "", 0))
	return f
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(64, 64, color.White), imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func detection(box face.BBox, emb ...float32) face.Detection {
	return face.Detection{Embedding: emb, Box: box}
}

var (
	boxA = face.BBox{Top: 0, Right: 20, Bottom: 20, Left: 0}
	boxB = face.BBox{Top: 30, Right: 60, Bottom: 60, Left: 30}
)
