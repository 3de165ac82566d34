// Package recognition runs the face pipeline: enrollment into the gallery,
// classroom recognition and the attendance writes that follow from it.
package recognition

import (
	"context"
	"fmt"
	"log"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/cleanup"
	"rollcall/internal/face"
	"rollcall/internal/gallery"
	"rollcall/internal/match"
	"rollcall/internal/media"
	"rollcall/internal/metrics"
)

// Config tunes the pipeline.
type Config struct {
	Threshold    float64
	EmbeddingDim int // 0 accepts any dimension
	Policy       gallery.Policy
	CleanupDelay time.Duration
}

// Service is constructed once and shared by all requests. It holds no
// mutable state of its own.
type Service struct {
	tx        Transactor
	extractor face.Extractor
	media     *media.Store
	cleanup   cleanup.Scheduler
	matcher   match.Matcher
	cfg       Config
	logger    *log.Logger
}

// NewService wires the pipeline. A nil logger uses log.Default().
func NewService(tx Transactor, ex face.Extractor, m *media.Store, sched cleanup.Scheduler, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Policy == "" {
		cfg.Policy = gallery.PolicySingle
	}
	return &Service{
		tx:        tx,
		extractor: ex,
		media:     m,
		cleanup:   sched,
		matcher:   match.New(cfg.Threshold),
		cfg:       cfg,
		logger:    logger,
	}
}

// EnrollRequest registers one photo for a student. ImageID is optional and
// acts as an idempotency key when set.
type EnrollRequest struct {
	StudentID int64
	Image     []byte
	ImageID   string
	Replace   bool
}

// EnrollResult describes the stored entry.
type EnrollResult struct {
	Entry    gallery.Entry `json:"entry"`
	Created  bool          `json:"created"`
	Replaced []string      `json:"replaced,omitempty"`
}

// Enroll extracts exactly one face and stores it in the gallery. The photo
// is written only once the gallery row exists, inside the same transaction.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (res EnrollResult, err error) {
	defer func() { metrics.Enrollments.WithLabelValues(enrollOutcome(res, err)).Inc() }()

	if req.StudentID <= 0 {
		return EnrollResult{}, fmt.Errorf("%w: student_id is required", ErrInvalidInput)
	}
	if len(req.Image) == 0 {
		return EnrollResult{}, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}
	if _, err := media.Sniff(req.Image); err != nil {
		return EnrollResult{}, err
	}
	if req.ImageID == "" {
		req.ImageID = s.media.NewID()
	} else if err := media.ValidateImageID(req.ImageID); err != nil {
		return EnrollResult{}, err
	}

	repos := s.tx.Repos()
	if _, err := repos.Roster.GetStudent(ctx, req.StudentID); err != nil {
		return EnrollResult{}, err
	}
	existing, err := repos.Gallery.FindByImageID(ctx, req.ImageID)
	if err != nil {
		return EnrollResult{}, err
	}
	if existing != nil {
		if existing.StudentID != req.StudentID {
			return EnrollResult{}, fmt.Errorf("%w: %s", gallery.ErrDuplicateImageID, req.ImageID)
		}
		return EnrollResult{Entry: *existing}, nil
	}

	det, err := face.ExtractSingle(ctx, s.extractor, req.Image)
	if err != nil {
		return EnrollResult{}, err
	}
	if err := det.Embedding.Validate(s.cfg.EmbeddingDim); err != nil {
		return EnrollResult{}, err
	}

	var saved string
	err = s.tx.WithinTx(ctx, func(r Repos) error {
		out, err := gallery.Enroll(ctx, r.Gallery, s.cfg.Policy, req.StudentID, det.Embedding, req.ImageID, req.Replace)
		if err != nil {
			return err
		}
		res = EnrollResult{Entry: out.Entry, Created: out.Created, Replaced: out.Replaced}
		if !out.Created {
			return nil
		}
		saved, err = s.media.SaveUpload(req.Image, req.ImageID)
		return err
	})
	if err != nil {
		if saved != "" {
			s.removeNow(saved)
		}
		return EnrollResult{}, err
	}

	for _, id := range res.Replaced {
		s.removeNow(s.media.UploadFiles(id)...)
	}
	s.logger.Printf("enrolled student %d image %s (created=%v, replaced=%d)", req.StudentID, req.ImageID, res.Created, len(res.Replaced))
	return res, nil
}

func enrollOutcome(res EnrollResult, err error) string {
	switch {
	case err != nil:
		return string(Classify(err))
	case !res.Created:
		return "retry"
	case len(res.Replaced) > 0:
		return "replaced"
	}
	return "created"
}

// RecognizeRequest is one classroom photo for (subject, group, date).
type RecognizeRequest struct {
	SubjectID int64
	GroupID   int64
	Date      time.Time
	Image     []byte
}

// FaceResult is the outcome for one detected face.
type FaceResult struct {
	FaceID       string            `json:"face_id"`
	FaceNumber   int               `json:"face_number"`
	Status       match.Status      `json:"status"`
	Matches      []match.Candidate `json:"matches"`
	Box          face.BBox         `json:"box"`
	FaceImageURL string            `json:"face_image_url,omitempty"`
}

// RecognizeResult lists every face and the attendance rows written.
type RecognizeResult struct {
	Faces  []FaceResult        `json:"results"`
	Marked []attendance.Record `json:"marked"`
}

// Recognize matches every face in the photo and marks the students of the
// requested group present, all in one transaction. The group and subject
// must exist before any model work is done. The photo and crops are
// handed to the cleanup scheduler only on success; on failure they are
// removed before returning.
func (s *Service) Recognize(ctx context.Context, req RecognizeRequest) (RecognizeResult, error) {
	if req.SubjectID <= 0 || req.GroupID <= 0 {
		return RecognizeResult{}, fmt.Errorf("%w: subject_id and group_id are required", ErrInvalidInput)
	}
	if req.Date.IsZero() {
		return RecognizeResult{}, fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if len(req.Image) == 0 {
		return RecognizeResult{}, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}

	if _, err := media.Sniff(req.Image); err != nil {
		return RecognizeResult{}, err
	}
	repos := s.tx.Repos()
	if _, err := repos.Roster.GetGroup(ctx, req.GroupID); err != nil {
		return RecognizeResult{}, err
	}
	if _, err := repos.Roster.GetSubject(ctx, req.SubjectID); err != nil {
		return RecognizeResult{}, err
	}

	start := time.Now()
	defer func() { metrics.RecognitionDuration.Observe(time.Since(start).Seconds()) }()

	id, photoPath, err := s.media.SaveRecognition(req.Image)
	if err != nil {
		return RecognizeResult{}, err
	}
	files := []string{photoPath}
	fail := func(err error) (RecognizeResult, error) {
		s.removeNow(files...)
		return RecognizeResult{}, err
	}

	detections, err := face.ExtractFaces(ctx, s.extractor, req.Image)
	if err != nil {
		return fail(err)
	}
	for i, d := range detections {
		if err := d.Embedding.Validate(s.cfg.EmbeddingDim); err != nil {
			return fail(fmt.Errorf("face %d: %w", i+1, err))
		}
	}
	metrics.FacesDetected.Add(float64(len(detections)))

	boxes := make([]face.BBox, len(detections))
	for i, d := range detections {
		boxes[i] = d.Box
	}
	crops, err := s.media.CropFaces(req.Image, id, boxes)
	if err != nil {
		s.logger.Printf("recognition %s: crop faces: %v", id, err)
	}
	for _, c := range crops {
		if c.Path != "" {
			files = append(files, c.Path)
		}
	}

	entries, err := s.tx.Repos().Gallery.AllEntries(ctx)
	if err != nil {
		return fail(err)
	}

	results := make([]match.Result, len(detections))
	faces := make([]FaceResult, len(detections))
	for i, d := range detections {
		probe := face.Probe{FaceID: fmt.Sprintf("%s_face_%d", id, i+1), Embedding: d.Embedding, Box: d.Box}
		results[i] = s.matcher.Match(probe, entries, req.GroupID)
		faces[i] = FaceResult{
			FaceID:     probe.FaceID,
			FaceNumber: i + 1,
			Status:     results[i].Status,
			Matches:    results[i].Matches,
			Box:        d.Box,
		}
		if i < len(crops) {
			faces[i].FaceImageURL = crops[i].URL
		}
		metrics.MatchOutcomes.WithLabelValues(string(results[i].Status)).Inc()
	}

	present := match.PresentStudents(results, req.GroupID)
	marked := make([]attendance.Record, 0, len(present))
	err = s.tx.WithinTx(ctx, func(r Repos) error {
		for _, studentID := range present {
			rec, err := r.Attendance.Upsert(ctx, attendance.Mark{
				StudentID: studentID,
				SubjectID: req.SubjectID,
				GroupID:   req.GroupID,
				Date:      req.Date,
				Status:    attendance.StatusPresent,
			})
			if err != nil {
				return err
			}
			marked = append(marked, rec)
		}
		return nil
	})
	if err != nil {
		return fail(err)
	}
	for range marked {
		metrics.AttendanceMarks.WithLabelValues(string(attendance.StatusPresent)).Inc()
	}

	if err := s.cleanup.Schedule(context.WithoutCancel(ctx), files, s.cfg.CleanupDelay); err != nil {
		s.logger.Printf("recognition %s: schedule cleanup: %v", id, err)
	}
	s.logger.Printf("recognition %s: %d faces, %d students marked present", id, len(faces), len(marked))
	return RecognizeResult{Faces: faces, Marked: marked}, nil
}

// DeleteStudentPhotos removes every gallery entry of a student and then
// their photos. It returns ErrNotEnrolled if there was nothing to remove.
func (s *Service) DeleteStudentPhotos(ctx context.Context, studentID int64) (int, error) {
	var imageIDs []string
	err := s.tx.WithinTx(ctx, func(r Repos) error {
		if _, err := r.Roster.GetStudent(ctx, studentID); err != nil {
			return err
		}
		ids, err := r.Gallery.RemoveByStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("%w: student %d", ErrNotEnrolled, studentID)
		}
		imageIDs = ids
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.removeUploads(imageIDs)
	s.logger.Printf("removed %d photos of student %d", len(imageIDs), studentID)
	return len(imageIDs), nil
}

// DeleteSummary counts what DeleteStudent removed.
type DeleteSummary struct {
	Faces      int   `json:"faces"`
	Attendance int64 `json:"attendance"`
}

// DeleteStudent removes attendance, gallery entries and the student in one
// transaction. Photo files go after the commit.
func (s *Service) DeleteStudent(ctx context.Context, studentID int64) (DeleteSummary, error) {
	var sum DeleteSummary
	var imageIDs []string
	err := s.tx.WithinTx(ctx, func(r Repos) error {
		n, err := r.Attendance.DeleteByStudent(ctx, studentID)
		if err != nil {
			return err
		}
		ids, err := r.Gallery.RemoveByStudent(ctx, studentID)
		if err != nil {
			return err
		}
		if err := r.Roster.DeleteStudent(ctx, studentID); err != nil {
			return err
		}
		sum = DeleteSummary{Faces: len(ids), Attendance: n}
		imageIDs = ids
		return nil
	})
	if err != nil {
		return DeleteSummary{}, err
	}
	s.removeUploads(imageIDs)
	s.logger.Printf("deleted student %d (%d faces, %d attendance rows)", studentID, sum.Faces, sum.Attendance)
	return sum, nil
}

// PruneResult reports a gallery prune.
type PruneResult struct {
	Checked int      `json:"checked"`
	Removed []string `json:"removed"`
}

// PruneGallery drops entries whose enrollment photo no longer exists on disk.
func (s *Service) PruneGallery(ctx context.Context) (PruneResult, error) {
	entries, err := s.tx.Repos().Gallery.AllEntries(ctx)
	if err != nil {
		return PruneResult{}, err
	}
	res := PruneResult{Checked: len(entries), Removed: []string{}}
	var missing []string
	for _, e := range entries {
		if !s.media.HasUpload(e.ImageID) {
			missing = append(missing, e.ImageID)
		}
	}
	if len(missing) == 0 {
		return res, nil
	}

	err = s.tx.WithinTx(ctx, func(r Repos) error {
		for _, id := range missing {
			ok, err := r.Gallery.RemoveByImageID(ctx, id)
			if err != nil {
				return err
			}
			if ok {
				res.Removed = append(res.Removed, id)
			}
		}
		return nil
	})
	if err != nil {
		return PruneResult{}, err
	}
	s.logger.Printf("pruned %d of %d gallery entries with missing photos", len(res.Removed), res.Checked)
	return res, nil
}

func (s *Service) removeUploads(imageIDs []string) {
	for _, id := range imageIDs {
		s.removeNow(s.media.UploadFiles(id)...)
	}
}

func (s *Service) removeNow(paths ...string) {
	if err := media.Remove(paths...); err != nil {
		s.logger.Printf("remove files: %v", err)
	}
}
