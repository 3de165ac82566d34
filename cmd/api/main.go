package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/app"
	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/cleanup"
	"rollcall/internal/config"
	"rollcall/internal/handler"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	out, closeLog, err := app.LogOutput(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	log.SetOutput(out)
	gin.DefaultWriter = out

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if n, err := db.Migrate(ctx); err != nil {
		return err
	} else if n > 0 {
		log.Printf("applied %d migration(s)", n)
	}

	checks := map[string]handler.HealthCheck{"db": db.Healthy}

	var sched cleanup.Scheduler
	var mem *cleanup.InMemory
	if cfg.CleanupBackend == "redis" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		checks["redis"] = redisClient.Healthy
		sched = cleanup.NewRedisQueue(redisClient.Client, cleanup.DefaultKey, app.Logger(out, "cleanup"))
		log.Println("cleanup tasks published to redis; run cmd/worker to execute them")
	} else {
		mem = cleanup.NewInMemory(cleanup.NewDeleter(app.Logger(out, "cleanup")))
		sched = mem
	}

	ex, closeExtractor, err := app.NewExtractor(ctx, cfg, app.Logger(out, "face"))
	if err != nil {
		return err
	}
	defer closeExtractor()

	m, err := app.NewMedia(cfg)
	if err != nil {
		return err
	}
	pipeline, err := app.NewPipeline(cfg, db, ex, m, sched, app.Logger(out, "recognition"))
	if err != nil {
		return err
	}

	h := handler.New(
		pipeline,
		roster.NewRepository(db.Client),
		attendance.NewService(attendance.NewRepository(db.Client)),
		auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.OperatorSecret, cfg.DeviceSecret),
		handler.Options{
			Checks:         checks,
			MaxUploadBytes: cfg.MaxUploadBytes,
			LogFile:        cfg.LogFile,
			Logger:         app.Logger(out, "http"),
		},
	)

	operator, device := auth.Open(), auth.Open()
	if cfg.AuthDisabled {
		log.Println("warning: authentication disabled")
	} else {
		operator = auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleOperator)
		device = auth.Require(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleDevice, auth.RoleOperator)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:          24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, httpmiddleware.ClientIP).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static(cfg.FacesURLPrefix, cfg.FacesDir)
	h.Register(r, operator, device)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	// run pending deletions before exit
	if mem != nil {
		log.Printf("running %d pending cleanup task(s)", mem.Pending())
		mem.Flush()
	}

	log.Println("Server exited")
	return nil
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
