package recognition

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"rollcall/internal/attendance"
	"rollcall/internal/face"
	"rollcall/internal/gallery"
	"rollcall/internal/media"
	"rollcall/internal/roster"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"invalid input", fmt.Errorf("%w: x", ErrInvalidInput), CategoryMissingInput},
		{"bad date", attendance.ErrInvalidMark, CategoryMissingInput},
		{"bad status", attendance.ErrInvalidStatus, CategoryMissingInput},
		{"not an image", media.ErrInvalidImage, CategoryInvalidImage},
		{"bad embedding", face.ErrInvalidEmbedding, CategoryInvalidImage},
		{"no face", fmt.Errorf("wrap: %w", face.ErrNoFaceDetected), CategoryNoFace},
		{"two faces", face.ErrExactlyOneFaceRequired, CategoryFaceCount},
		{"duplicate image", gallery.ErrDuplicateImageID, CategoryConflict},
		{"already enrolled", gallery.ErrAlreadyEnrolled, CategoryConflict},
		{"unknown student", roster.ErrNotFound, CategoryNotFound},
		{"nothing enrolled", ErrNotEnrolled, CategoryNotFound},
		{"foreign key", &pgconn.PgError{Code: "23503"}, CategoryNotFound},
		{"pg error", fmt.Errorf("query: %w", &pgconn.PgError{Code: "57P01"}), CategoryDatabase},
		{"conn done", sql.ErrConnDone, CategoryDatabase},
		{"model down", fmt.Errorf("extract: %w", face.ErrModelUnavailable), CategoryUnavailable},
		{"anything else", errors.New("boom"), CategoryInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
