package cleanup

import (
	"context"
	"sync"
	"time"
)

// InMemory runs each task on its own timer inside the API process.
type InMemory struct {
	deleter *Deleter

	mu      sync.Mutex
	pending map[string]pendingTask
	wg      sync.WaitGroup
}

type pendingTask struct {
	task  Task
	timer *time.Timer
}

// NewInMemory creates a timer-backed scheduler.
func NewInMemory(deleter *Deleter) *InMemory {
	return &InMemory{deleter: deleter, pending: make(map[string]pendingTask)}
}

// Schedule arms a timer; it never fails.
func (s *InMemory) Schedule(_ context.Context, paths []string, delay time.Duration) error {
	t := newTask(paths, delay, time.Now())
	if len(t.Paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Add(1)
	timer := time.AfterFunc(delay, func() { s.fire(t.ID) })
	s.pending[t.ID] = pendingTask{task: t, timer: timer}
	return nil
}

func (s *InMemory) fire(id string) {
	s.mu.Lock()
	p, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	defer s.wg.Done()
	s.deleter.Run(p.task)
}

// Pending returns the number of tasks not yet run.
func (s *InMemory) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Flush runs every pending task now and waits for running ones. Used on
// shutdown so scratch files do not outlive the process.
func (s *InMemory) Flush() {
	s.mu.Lock()
	var due []Task
	for id, p := range s.pending {
		if p.timer.Stop() {
			due = append(due, p.task)
			delete(s.pending, id)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		s.deleter.Run(t)
		s.wg.Done()
	}
	s.wg.Wait()
}
