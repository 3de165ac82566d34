// Package media manages the scratch directories for enrollment uploads,
// recognition photos and per-face crops.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"rollcall/internal/face"
)

var (
	ErrInvalidImage   = errors.New("image must be a PNG or JPEG")
	ErrInvalidImageID = errors.New("invalid image id")
)

var imageIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Crop is one saved face derivative.
type Crop struct {
	FaceNumber int
	Name       string
	Path       string
	URL        string
}

// Store owns the three scratch areas.
type Store struct {
	UploadDir      string
	RecognitionDir string
	FacesDir       string
	URLPrefix      string

	now func() time.Time
}

// New creates the directories if needed.
func New(uploadDir, recognitionDir, facesDir, urlPrefix string) (*Store, error) {
	for _, dir := range []string{uploadDir, recognitionDir, facesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{
		UploadDir:      uploadDir,
		RecognitionDir: recognitionDir,
		FacesDir:       facesDir,
		URLPrefix:      urlPrefix,
		now:            time.Now,
	}, nil
}

// NewID returns a timestamped, collision-resistant file id.
func (s *Store) NewID() string {
	return s.now().UTC().Format("20060102_150405") + "_" + uuid.NewString()
}

// ValidateImageID checks a client-supplied image id.
func ValidateImageID(id string) error {
	if !imageIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidImageID, id)
	}
	return nil
}

// Sniff returns the file extension for PNG or JPEG data.
func Sniff(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrInvalidImage
	}
	ext, ok := extensions[http.DetectContentType(data)]
	if !ok {
		return "", ErrInvalidImage
	}
	return ext, nil
}

// SaveUpload writes an enrollment photo under imageID.
func (s *Store) SaveUpload(data []byte, imageID string) (string, error) {
	if err := ValidateImageID(imageID); err != nil {
		return "", err
	}
	ext, err := Sniff(data)
	if err != nil {
		return "", err
	}
	p := filepath.Join(s.UploadDir, imageID+ext)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return p, nil
}

// UploadFiles lists every path an enrollment photo for imageID may live at.
func (s *Store) UploadFiles(imageID string) []string {
	paths := make([]string, 0, len(extensions))
	for _, ext := range []string{".png", ".jpg"} {
		paths = append(paths, filepath.Join(s.UploadDir, imageID+ext))
	}
	return paths
}

// HasUpload reports whether any photo for imageID exists on disk.
func (s *Store) HasUpload(imageID string) bool {
	for _, p := range s.UploadFiles(imageID) {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// SaveRecognition writes a classroom photo and returns its id and path.
func (s *Store) SaveRecognition(data []byte) (string, string, error) {
	ext, err := Sniff(data)
	if err != nil {
		return "", "", err
	}
	id := s.NewID()
	p := filepath.Join(s.RecognitionDir, id+ext)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", "", fmt.Errorf("write recognition photo: %w", err)
	}
	return id, p, nil
}

// CropFaces saves one PNG per box as <stem>_face_<n>.png, n starting at 1.
// Boxes outside the image are clamped; an empty crop gets no file.
func (s *Store) CropFaces(data []byte, stem string, boxes []face.BBox) ([]Crop, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	crops := make([]Crop, 0, len(boxes))
	for i, box := range boxes {
		c := Crop{FaceNumber: i + 1}
		rect := box.Rect().Intersect(img.Bounds())
		if rect.Empty() {
			crops = append(crops, c)
			continue
		}
		c.Name = fmt.Sprintf("%s_face_%d.png", stem, i+1)
		c.Path = filepath.Join(s.FacesDir, c.Name)
		if err := imaging.Save(imaging.Crop(img, rect), c.Path); err != nil {
			return crops, fmt.Errorf("save crop %s: %w", c.Name, err)
		}
		c.URL = s.FaceURL(c.Name)
		crops = append(crops, c)
	}
	return crops, nil
}

// FaceURL is the public URL of a crop.
func (s *Store) FaceURL(name string) string {
	return path.Join("/", s.URLPrefix, name)
}

// Remove deletes the files, ignoring ones that are already gone.
func Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
