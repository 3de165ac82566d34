// Package cleanup deletes transient photos and face crops after a delay so
// clients can still fetch them right after a response. Failures are logged
// and never reach the request that scheduled them.
package cleanup

import (
	"context"
	"errors"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/metrics"
)

// Task is one batch of files due for deletion.
type Task struct {
	ID    string    `json:"id"`
	Paths []string  `json:"paths"`
	DueAt time.Time `json:"due_at"`
}

// Scheduler queues files for deletion after delay. Scheduled work cannot be
// cancelled.
type Scheduler interface {
	Schedule(ctx context.Context, paths []string, delay time.Duration) error
}

func newTask(paths []string, delay time.Duration, now time.Time) Task {
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return Task{ID: uuid.NewString(), Paths: kept, DueAt: now.Add(delay)}
}

// Deleter removes the files of a task. Missing files are not an error.
type Deleter struct {
	logger *log.Logger
}

// NewDeleter returns a Deleter logging to logger, or log.Default() if nil.
func NewDeleter(logger *log.Logger) *Deleter {
	if logger == nil {
		logger = log.Default()
	}
	return &Deleter{logger: logger}
}

// Run deletes every path in t and returns how many were removed.
func (d *Deleter) Run(t Task) int {
	removed := 0
	for _, p := range t.Paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
			metrics.CleanupDeletions.WithLabelValues("deleted").Inc()
		case errors.Is(err, os.ErrNotExist):
			d.logger.Printf("task %s: %s already gone", t.ID, p)
			metrics.CleanupDeletions.WithLabelValues("missing").Inc()
		default:
			d.logger.Printf("task %s: delete %s failed: %v", t.ID, p, err)
			metrics.CleanupDeletions.WithLabelValues("error").Inc()
		}
	}
	return removed
}
