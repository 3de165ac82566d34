//go:build integration

package cleanup

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"rollcall/internal/store/storetest"
)

func TestRedisQueue_ClaimDueTasks(t *testing.T) {
	rdb := storetest.Redis(t)
	ctx := context.Background()
	dir := t.TempDir()
	a := touch(t, dir, "a.png")
	b := touch(t, dir, "b.png")

	q := NewRedisQueue(rdb.Client, "test:cleanup", log.New(&bytes.Buffer{}, "", 0))
	now := time.Now()
	q.now = func() time.Time { return now }

	if err := q.Schedule(ctx, []string{a}, 0); err != nil {
		t.Fatal(err)
	}
	if err := q.Schedule(ctx, []string{b}, time.Minute); err != nil {
		t.Fatal(err)
	}

	tasks, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 || tasks[0].Paths[0] != a {
		t.Fatalf("expected only the due task, got %+v", tasks)
	}
	again, _ := q.Claim(ctx)
	if len(again) != 0 {
		t.Errorf("claimed task must not be returned twice, got %+v", again)
	}

	now = now.Add(2 * time.Minute)
	runCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	q.Run(runCtx, NewDeleter(log.New(&bytes.Buffer{}, "", 0)), 20*time.Millisecond)

	if exists(b) {
		t.Error("worker should have deleted b.png")
	}
	if !exists(a) {
		t.Error("a.png was claimed but not run, it should still exist")
	}
}
