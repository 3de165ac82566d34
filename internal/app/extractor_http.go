//go:build !dlib

package app

import (
	"context"
	"log"

	"rollcall/internal/config"
	"rollcall/internal/face"
	"rollcall/internal/faceclient"
)

// NewExtractor returns the HTTP face service client. Build with -tags dlib
// to run the model in-process instead.
func NewExtractor(ctx context.Context, cfg config.App, logger *log.Logger) (face.Extractor, func(), error) {
	c := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.FaceTimeout)
	if cfg.FaceSkip {
		logger.Println("face service skipped, using synthetic embeddings")
	} else if err := c.Health(ctx); err != nil {
		logger.Printf("warning: face service not available: %v", err)
	}
	return c, func() {}, nil
}
