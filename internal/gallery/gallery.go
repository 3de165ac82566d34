// Package gallery holds the enrolled (student, embedding) pairs that incoming
// faces are compared against.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/face"
)

var (
	// ErrDuplicateImageID means the image id is already registered to another student.
	ErrDuplicateImageID = errors.New("image id already registered")
	// ErrAlreadyEnrolled means the student already has an active entry under the single policy.
	ErrAlreadyEnrolled = errors.New("student already has an enrolled photo")
)

// Entry is one enrolled embedding. Group data is joined from the student
// at read time so the matcher can derive status without extra lookups.
type Entry struct {
	FaceID    int64          `json:"face_id"`
	StudentID int64          `json:"student_id"`
	FullName  string         `json:"full_name"`
	GroupID   int64          `json:"group_id"` // 0 when the student has no group
	ImageID   string         `json:"image_id"`
	Embedding face.Embedding `json:"-"`
	CreatedAt time.Time      `json:"created_at"`
}

// Policy controls how many active entries a student may have.
type Policy string

const (
	// PolicySingle allows one active entry per student.
	PolicySingle Policy = "single"
	// PolicyMultiple lets several photos coexist for a student.
	PolicyMultiple Policy = "multiple"
)

// ParsePolicy converts a config value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicySingle, PolicyMultiple:
		return Policy(s), nil
	case "":
		return PolicySingle, nil
	}
	return "", fmt.Errorf("unknown gallery policy %q", s)
}

// Store is the persistence surface the enrollment rules need.
type Store interface {
	Add(ctx context.Context, studentID int64, emb face.Embedding, imageID string) (Entry, error)
	FindByImageID(ctx context.Context, imageID string) (*Entry, error)
	CountByStudent(ctx context.Context, studentID int64) (int, error)
	RemoveByStudent(ctx context.Context, studentID int64) ([]string, error)
	RemoveByImageID(ctx context.Context, imageID string) (bool, error)
	AllEntries(ctx context.Context) ([]Entry, error)
}

// EnrollResult reports what Enroll did.
type EnrollResult struct {
	Entry Entry
	// Created is false when the call was an idempotent retry of an earlier enrollment.
	Created bool
	// Replaced lists image ids of entries removed under PolicySingle with replace.
	Replaced []string
}

// Enroll applies the image-id and per-student rules and inserts the entry.
// Run it inside the caller's transaction so a failure leaves no partial rows.
func Enroll(ctx context.Context, s Store, policy Policy, studentID int64, emb face.Embedding, imageID string, replace bool) (EnrollResult, error) {
	existing, err := s.FindByImageID(ctx, imageID)
	if err != nil {
		return EnrollResult{}, err
	}
	if existing != nil {
		if existing.StudentID != studentID {
			return EnrollResult{}, fmt.Errorf("%w: %s", ErrDuplicateImageID, imageID)
		}
		return EnrollResult{Entry: *existing}, nil
	}

	var replaced []string
	if policy == PolicySingle {
		n, err := s.CountByStudent(ctx, studentID)
		if err != nil {
			return EnrollResult{}, err
		}
		if n > 0 {
			if !replace {
				return EnrollResult{}, fmt.Errorf("%w: student %d", ErrAlreadyEnrolled, studentID)
			}
			if replaced, err = s.RemoveByStudent(ctx, studentID); err != nil {
				return EnrollResult{}, err
			}
		}
	}

	entry, err := s.Add(ctx, studentID, emb.Clone(), imageID)
	if err != nil {
		return EnrollResult{}, err
	}
	return EnrollResult{Entry: entry, Created: true, Replaced: replaced}, nil
}
