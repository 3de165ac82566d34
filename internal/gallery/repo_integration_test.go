//go:build integration

package gallery

import (
	"context"
	"errors"
	"testing"

	"rollcall/internal/face"
	"rollcall/internal/store/storetest"
)

func TestRepository_RoundTrip(t *testing.T) {
	db := storetest.Postgres(t)
	ctx := context.Background()
	storetest.Exec(t, db, `INSERT INTO groups (group_name) VALUES ('G1')`)
	storetest.Exec(t, db, `INSERT INTO students (full_name, group_id) VALUES ('Ada', 1), ('Bo', NULL)`)

	repo := NewRepository(db.Client)

	added, err := repo.Add(ctx, 1, face.Embedding{0.5, -0.25, 1}, "uploads/a.png")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.FullName != "Ada" || added.GroupID != 1 {
		t.Errorf("unexpected joined fields: %+v", added)
	}

	if _, err := repo.Add(ctx, 2, face.Embedding{1, 1, 1}, "uploads/a.png"); !errors.Is(err, ErrDuplicateImageID) {
		t.Fatalf("expected ErrDuplicateImageID, got %v", err)
	}

	if _, err := repo.Add(ctx, 2, face.Embedding{1, 1, 1}, "uploads/b.png"); err != nil {
		t.Fatalf("Add second: %v", err)
	}

	all, err := repo.AllEntries(ctx)
	if err != nil {
		t.Fatalf("AllEntries: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].Embedding[1] != -0.25 {
		t.Errorf("embedding not preserved: %v", all[0].Embedding)
	}
	if all[1].GroupID != 0 {
		t.Errorf("expected no group for Bo, got %d", all[1].GroupID)
	}

	found, err := repo.FindByImageID(ctx, "uploads/b.png")
	if err != nil || found == nil || found.StudentID != 2 {
		t.Fatalf("FindByImageID = %+v, %v", found, err)
	}
	missing, err := repo.FindByImageID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing image, got %+v, %v", missing, err)
	}

	ids, err := repo.RemoveByStudent(ctx, 1)
	if err != nil || len(ids) != 1 || ids[0] != "uploads/a.png" {
		t.Fatalf("RemoveByStudent = %v, %v", ids, err)
	}
	n, _ := repo.CountByStudent(ctx, 1)
	if n != 0 {
		t.Errorf("expected 0 entries for student 1, got %d", n)
	}

	ok, err := repo.RemoveByImageID(ctx, "uploads/b.png")
	if err != nil || !ok {
		t.Fatalf("RemoveByImageID = %v, %v", ok, err)
	}
}
