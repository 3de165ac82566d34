package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"rollcall/internal/app"
	"rollcall/internal/cleanup"
	"rollcall/internal/config"
	"rollcall/internal/store"
)

// Worker deletes recognition files once their cleanup tasks in Redis are due.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	out, closeLog, err := app.LogOutput(cfg.LogFile)
	if err != nil {
		log.Fatalf("log output: %v", err)
	}
	defer closeLog()
	log.SetOutput(out)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep polling", cfg.RedisAddr)
	}

	logger := app.Logger(out, "cleanup")
	q := cleanup.NewRedisQueue(redisClient.Client, cleanup.DefaultKey, logger)

	log.Printf("worker started, polling %s every %s", cleanup.DefaultKey, cfg.CleanupPoll)
	q.Run(ctx, cleanup.NewDeleter(logger), cfg.CleanupPoll)
	log.Println("worker stopped")
}
