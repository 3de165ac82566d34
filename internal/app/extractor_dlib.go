//go:build dlib

package app

import (
	"context"
	"log"

	"rollcall/internal/config"
	"rollcall/internal/face"
	"rollcall/internal/facedlib"
)

// NewExtractor loads the dlib models from FACE_MODEL_DIR.
func NewExtractor(_ context.Context, cfg config.App, logger *log.Logger) (face.Extractor, func(), error) {
	ex, err := facedlib.New(cfg.FaceModelDir)
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("dlib models loaded from %s", cfg.FaceModelDir)
	return ex, ex.Close, nil
}
