//go:build integration

package attendance

import (
	"context"
	"testing"

	"rollcall/internal/store/storetest"
)

func TestRepository_UpsertAndRoster(t *testing.T) {
	db := storetest.Postgres(t)
	ctx := context.Background()
	storetest.Exec(t, db, `INSERT INTO groups (group_name) VALUES ('G1'), ('G2')`)
	storetest.Exec(t, db, `INSERT INTO subjects (subject_name) VALUES ('Math')`)
	storetest.Exec(t, db, `INSERT INTO students (full_name, group_id) VALUES ('Ada', 1), ('Bo', 1), ('Cy', 2)`)

	repo := NewRepository(db.Client)
	m := Mark{StudentID: 1, SubjectID: 1, GroupID: 1, Date: day, Status: StatusPresent}

	first, err := repo.Upsert(ctx, m)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	m.Status = StatusAbsent
	second, err := repo.Upsert(ctx, m)
	if err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	if first.ID != second.ID || !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("upsert must keep id and created_at: %+v vs %+v", first, second)
	}
	if second.Status != StatusAbsent || second.Date != "2024-03-04" {
		t.Errorf("unexpected record: %+v", second)
	}

	all, err := repo.List(ctx, Filter{StudentID: 1})
	if err != nil || len(all) != 1 {
		t.Fatalf("List = %v, %v", all, err)
	}

	roster, err := repo.ListForRoster(ctx, 1, 1, day)
	if err != nil {
		t.Fatalf("ListForRoster: %v", err)
	}
	if len(roster) != 2 {
		t.Fatalf("expected 2 roster rows for group 1, got %d", len(roster))
	}
	for _, row := range roster {
		if row.Status != StatusAbsent {
			t.Errorf("%s: status = %s, want absent", row.FullName, row.Status)
		}
	}
	if !roster[0].Marked || roster[1].Marked {
		t.Errorf("only Ada should have a stored row: %+v", roster)
	}
}

func TestRepository_UpsertBatchRollsBack(t *testing.T) {
	db := storetest.Postgres(t)
	ctx := context.Background()
	storetest.Exec(t, db, `INSERT INTO groups (group_name) VALUES ('G1')`)
	storetest.Exec(t, db, `INSERT INTO subjects (subject_name) VALUES ('Math')`)
	storetest.Exec(t, db, `INSERT INTO students (full_name, group_id) VALUES ('Ada', 1)`)

	repo := NewRepository(db.Client)
	marks := []Mark{
		{StudentID: 1, SubjectID: 1, GroupID: 1, Date: day, Status: StatusPresent},
		{StudentID: 42, SubjectID: 1, GroupID: 1, Date: day, Status: StatusPresent}, // no such student
	}
	if _, err := repo.UpsertBatch(ctx, marks); err == nil {
		t.Fatal("expected foreign key failure")
	}
	rows, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("batch failure left %d rows", len(rows))
	}

	n, err := repo.DeleteByStudent(ctx, 1)
	if err != nil || n != 0 {
		t.Errorf("DeleteByStudent = %d, %v", n, err)
	}
}
