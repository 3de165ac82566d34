//go:build dlib

// Package facedlib runs the dlib ResNet face model in-process through
// go-face. It needs the dlib shared libraries and the model files
// (shape_predictor_5_face_landmarks.dat, dlib_face_recognition_resnet_model_v1.dat,
// mmod_human_face_detector.dat) in modelDir.
package facedlib

import (
	"context"
	"fmt"
	"sync"

	goface "github.com/Kagami/go-face"

	"rollcall/internal/face"
)

// Extractor implements face.Extractor with a dlib recognizer.
type Extractor struct {
	mu  sync.Mutex
	rec *goface.Recognizer
}

var _ face.Extractor = (*Extractor)(nil)

// New loads the models from modelDir.
func New(modelDir string) (*Extractor, error) {
	rec, err := goface.NewRecognizer(modelDir)
	if err != nil {
		return nil, fmt.Errorf("load dlib models from %s: %w", modelDir, err)
	}
	return &Extractor{rec: rec}, nil
}

// Extract detects every face in a PNG or JPEG image and returns 128-d
// descriptors.
func (e *Extractor) Extract(ctx context.Context, img []byte) ([]face.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := toJPEG(img)
	if err != nil {
		return nil, err
	}

	// the recognizer is not safe for concurrent use
	e.mu.Lock()
	faces, err := e.rec.Recognize(img)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dlib recognize: %w", err)
	}

	dets := make([]face.Detection, 0, len(faces))
	for _, f := range faces {
		emb := make(face.Embedding, len(f.Descriptor))
		copy(emb, f.Descriptor[:])
		dets = append(dets, face.Detection{
			Embedding: emb,
			Box: face.BBox{
				Top:    f.Rectangle.Min.Y,
				Right:  f.Rectangle.Max.X,
				Bottom: f.Rectangle.Max.Y,
				Left:   f.Rectangle.Min.X,
			},
		})
	}
	return dets, nil
}

// Close frees the native recognizer.
func (e *Extractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
}
