// Package app builds the services shared by the api server and rollctl from
// configuration.
package app

import (
	"fmt"
	"io"
	"log"
	"os"

	"rollcall/internal/cleanup"
	"rollcall/internal/config"
	"rollcall/internal/face"
	"rollcall/internal/gallery"
	"rollcall/internal/media"
	"rollcall/internal/recognition"
	"rollcall/internal/store"
)

// LogOutput returns stdout, tee'd into path when it is set. The returned
// func closes the file.
func LogOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return io.MultiWriter(os.Stdout, f), func() { _ = f.Close() }, nil
}

// Logger returns a logger writing to out with a component prefix.
func Logger(out io.Writer, component string) *log.Logger {
	return log.New(out, component+": ", log.LstdFlags)
}

// NewMedia creates the scratch directories.
func NewMedia(cfg config.App) (*media.Store, error) {
	return media.New(cfg.UploadDir, cfg.RecognitionDir, cfg.FacesDir, cfg.FacesURLPrefix)
}

// NewPipeline wires the recognition service over Postgres.
func NewPipeline(cfg config.App, db *store.DB, ex face.Extractor, m *media.Store, sched cleanup.Scheduler, logger *log.Logger) (*recognition.Service, error) {
	policy, err := gallery.ParsePolicy(cfg.GalleryPolicy)
	if err != nil {
		return nil, err
	}
	return recognition.NewService(
		recognition.NewPostgresTransactor(db.Client),
		ex,
		m,
		sched,
		recognition.Config{
			Threshold:    cfg.MatchThreshold,
			EmbeddingDim: cfg.EmbeddingDim,
			Policy:       policy,
			CleanupDelay: cfg.CleanupDelay,
		},
		logger,
	), nil
}
