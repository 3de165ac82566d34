// Package face defines the contract around the opaque face model: what an
// extractor returns, how embeddings are validated and how two embeddings are
// compared.
package face

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrNoFaceDetected is returned when an image contains zero faces.
	ErrNoFaceDetected = errors.New("no face detected in image")
	// ErrExactlyOneFaceRequired is returned on enrollment when the face count is not 1.
	ErrExactlyOneFaceRequired = errors.New("image must contain exactly one face")
	// ErrInvalidEmbedding is returned for empty, mis-sized or non-finite vectors.
	ErrInvalidEmbedding = errors.New("invalid embedding")
	// ErrModelUnavailable means the model could not be reached; the request
	// may succeed later.
	ErrModelUnavailable = errors.New("face model unavailable")
)

// Embedding is a fixed-length face descriptor produced by the model.
// Treat it as immutable once produced.
type Embedding []float32

// BBox is a face location in pixels, in top/right/bottom/left order.
type BBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Rect converts the box into an image.Rectangle.
func (b BBox) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Detection is one face found by an Extractor.
type Detection struct {
	Embedding Embedding `json:"embedding"`
	Box       BBox      `json:"box"`
}

// Probe is a detection from an incoming recognition request, tagged with a
// synthetic face identifier. It only lives for one request.
type Probe struct {
	FaceID    string
	Embedding Embedding
	Box       BBox
}

// Extractor wraps the face detection/embedding model. Implementations must be
// side-effect free and safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, img []byte) ([]Detection, error)
}

// ExtractFaces runs ex and fails with ErrNoFaceDetected when nothing is found.
func ExtractFaces(ctx context.Context, ex Extractor, img []byte) ([]Detection, error) {
	dets, err := ex.Extract(ctx, img)
	if err != nil {
		return nil, err
	}
	if len(dets) == 0 {
		return nil, ErrNoFaceDetected
	}
	return dets, nil
}

// ExtractSingle is the enrollment path: exactly one face or an error.
func ExtractSingle(ctx context.Context, ex Extractor, img []byte) (Detection, error) {
	dets, err := ExtractFaces(ctx, ex, img)
	if err != nil {
		return Detection{}, err
	}
	if len(dets) != 1 {
		return Detection{}, fmt.Errorf("%w: found %d", ErrExactlyOneFaceRequired, len(dets))
	}
	return dets[0], nil
}

// Validate checks the embedding is non-empty, finite and, when dim > 0, of
// the expected length.
func (e Embedding) Validate(dim int) error {
	if len(e) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidEmbedding)
	}
	if dim > 0 && len(e) != dim {
		return fmt.Errorf("%w: expected %d dimensions, got %d", ErrInvalidEmbedding, dim, len(e))
	}
	for i, v := range e {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at index %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// Clone returns a copy so callers can never mutate a stored vector.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Distance is the Euclidean distance between a and b. It is symmetric and
// accumulates in float64.
func Distance(a, b Embedding) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: dimension mismatch %d vs %d", ErrInvalidEmbedding, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}
