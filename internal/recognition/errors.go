package recognition

import (
	"errors"

	"rollcall/internal/attendance"
	"rollcall/internal/face"
	"rollcall/internal/gallery"
	"rollcall/internal/media"
	"rollcall/internal/roster"
	"rollcall/internal/store"
)

var (
	// ErrInvalidInput covers missing or malformed request fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotEnrolled means the student has no gallery entry to delete.
	ErrNotEnrolled = errors.New("student has no enrolled photo")
)

// Category tells a caller how to react to an error: fix the request, try
// another image, retry later or escalate.
type Category string

const (
	CategoryMissingInput Category = "missing_input"
	CategoryInvalidImage Category = "invalid_image"
	CategoryNoFace       Category = "no_face"
	CategoryFaceCount    Category = "face_count"
	CategoryConflict     Category = "conflict"
	CategoryNotFound     Category = "not_found"
	CategoryDatabase     Category = "database"
	CategoryUnavailable  Category = "model_unavailable"
	CategoryInternal     Category = "internal"
)

// Classify maps err onto a Category. nil maps to "".
func Classify(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, face.ErrNoFaceDetected):
		return CategoryNoFace
	case errors.Is(err, face.ErrExactlyOneFaceRequired):
		return CategoryFaceCount
	case errors.Is(err, media.ErrInvalidImage), errors.Is(err, face.ErrInvalidEmbedding):
		return CategoryInvalidImage
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, media.ErrInvalidImageID),
		errors.Is(err, attendance.ErrInvalidMark),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, roster.ErrInvalid):
		return CategoryMissingInput
	case errors.Is(err, gallery.ErrDuplicateImageID),
		errors.Is(err, gallery.ErrAlreadyEnrolled),
		errors.Is(err, roster.ErrConflict):
		return CategoryConflict
	case errors.Is(err, roster.ErrNotFound),
		errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, ErrNotEnrolled),
		store.IsForeignKeyViolation(err):
		return CategoryNotFound
	case errors.Is(err, face.ErrModelUnavailable):
		return CategoryUnavailable
	case store.IsDatabaseError(err):
		return CategoryDatabase
	}
	return CategoryInternal
}
