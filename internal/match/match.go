// Package match compares probe embeddings against the gallery and derives
// a per-face status for a requested group.
package match

import (
	"sort"

	"rollcall/internal/face"
	"rollcall/internal/gallery"
)

// DefaultThreshold is the largest distance still treated as the same person.
const DefaultThreshold = 0.5

// Status of one recognised face.
type Status string

const (
	StatusPresent    Status = "present"
	StatusOtherGroup Status = "other_group"
	StatusUnknown    Status = "unknown"
)

// Candidate is a gallery entry within threshold of the probe.
type Candidate struct {
	StudentID int64   `json:"student_id"`
	FullName  string  `json:"full_name"`
	GroupID   int64   `json:"group_id"`
	ImageID   string  `json:"image_id"`
	Distance  float64 `json:"distance"`
}

// Result is the outcome for one probe face.
type Result struct {
	FaceID  string      `json:"face_id"`
	Box     face.BBox   `json:"box"`
	Status  Status      `json:"status"`
	Matches []Candidate `json:"matches"`
}

// Matcher applies a fixed threshold.
type Matcher struct {
	Threshold float64
}

// New returns a Matcher; a non-positive threshold selects DefaultThreshold.
func New(threshold float64) Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match scans every entry. All candidates are reported, closest first, and
// the status looks at the group of every candidate, not only the nearest.
func (m Matcher) Match(probe face.Probe, entries []gallery.Entry, groupID int64) Result {
	res := Result{
		FaceID:  probe.FaceID,
		Box:     probe.Box,
		Status:  StatusUnknown,
		Matches: []Candidate{},
	}

	for _, e := range entries {
		d, err := face.Distance(probe.Embedding, e.Embedding)
		if err != nil {
			// model mismatch, the entry can never match this probe
			continue
		}
		if d > m.Threshold {
			continue
		}
		res.Matches = append(res.Matches, Candidate{
			StudentID: e.StudentID,
			FullName:  e.FullName,
			GroupID:   e.GroupID,
			ImageID:   e.ImageID,
			Distance:  d,
		})
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		a, b := res.Matches[i], res.Matches[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.ImageID < b.ImageID
	})

	if len(res.Matches) > 0 {
		res.Status = StatusOtherGroup
		for _, c := range res.Matches {
			if c.GroupID == groupID {
				res.Status = StatusPresent
				break
			}
		}
	}
	return res
}

// PresentStudents returns the distinct students of the requested group found
// across results, in first-seen order.
func PresentStudents(results []Result, groupID int64) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, r := range results {
		for _, c := range r.Matches {
			if c.GroupID != groupID || seen[c.StudentID] {
				continue
			}
			seen[c.StudentID] = true
			ids = append(ids, c.StudentID)
		}
	}
	return ids
}
