package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the sorted set holding pending tasks.
const DefaultKey = "rollcall:cleanup"

// RedisQueue stores tasks in a sorted set scored by due time so any worker
// can pick them up, including after an API restart.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger *log.Logger
	batch  int64
	now    func() time.Time
}

// NewRedisQueue builds a queue on key, or DefaultKey when empty.
func NewRedisQueue(client *redis.Client, key string, logger *log.Logger) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RedisQueue{client: client, key: key, logger: logger, batch: 100, now: time.Now}
}

// Schedule adds the task with its due time as score.
func (q *RedisQueue) Schedule(ctx context.Context, paths []string, delay time.Duration) error {
	t := newTask(paths, delay, q.now())
	if len(t.Paths) == 0 {
		return nil
	}
	body, err := json.Marshal(t)
	if err != nil {
		return err
	}
	err = q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(t.DueAt.UnixMilli()), Member: body}).Err()
	if err != nil {
		return fmt.Errorf("schedule cleanup %s: %w", t.ID, err)
	}
	return nil
}

// Claim removes and returns due tasks. ZREM decides ownership so two
// workers never run the same task.
func (q *RedisQueue) Claim(ctx context.Context) ([]Task, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: q.batch,
	}).Result()
	if err != nil {
		return nil, err
	}

	var tasks []Task
	for _, m := range members {
		n, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return tasks, err
		}
		if n == 0 {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			q.logger.Printf("dropping malformed cleanup task: %v", err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Run polls until ctx is done, deleting due tasks with d.
func (q *RedisQueue) Run(ctx context.Context, d *Deleter, poll time.Duration) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		tasks, err := q.Claim(ctx)
		if err != nil && ctx.Err() == nil {
			q.logger.Printf("claim cleanup tasks: %v", err)
		}
		for _, t := range tasks {
			n := d.Run(t)
			q.logger.Printf("task %s: removed %d of %d files", t.ID, n, len(t.Paths))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
