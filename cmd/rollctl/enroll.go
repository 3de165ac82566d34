package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"rollcall/internal/media"
	"rollcall/internal/recognition"
)

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir DIR",
	Short: "Enroll every PNG/JPEG photo in a directory for one student",
	Long: `Enroll every .png, .jpg and .jpeg file in DIR for the given student.

Each file gets the image id "<student>_<file stem>", so running the command
again for the same directory is a no-op for files already enrolled.
Photos with zero or several faces are reported and skipped.

Examples:
  rollctl enroll-dir ./photos/ada --student 12

  # single-photo gallery: swap the student's current photo
  rollctl enroll-dir ./photos/ada --student 12 --replace`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollDirCmd)

	enrollDirCmd.Flags().Int64("student", 0, "Student id to enroll the photos for")
	enrollDirCmd.Flags().Bool("replace", false, "Replace the student's existing photo (single policy)")
	_ = enrollDirCmd.MarkFlagRequired("student")
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	studentID, _ := cmd.Flags().GetInt64("student")
	replace, _ := cmd.Flags().GetBool("replace")
	if studentID <= 0 {
		return fmt.Errorf("--student must be a positive id")
	}

	files, err := imageFiles(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintf(out, "No PNG/JPEG files in %s\n", args[0])
		return nil
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	svc, done, err := e.pipeline(ctx)
	if err != nil {
		return err
	}
	defer done()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	var created, existing int
	var failures []string
	for _, path := range files {
		res, err := enrollFile(cmd, svc, studentID, path, replace)
		switch {
		case err != nil:
			failures = append(failures, fmt.Sprintf("%s: %v (%s)", filepath.Base(path), err, recognition.Classify(err)))
		case res.Created:
			created++
			// only the first new photo replaces the old ones
			replace = false
		default:
			existing++
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()

	fmt.Fprintf(out, "\nEnrolled %d, already present %d, failed %d\n", created, existing, len(failures))
	for _, f := range failures {
		fmt.Fprintf(out, "  %s\n", f)
	}
	if len(failures) > 0 && created+existing == 0 {
		return errors.New("no photo could be enrolled")
	}
	return nil
}

func enrollFile(cmd *cobra.Command, svc *recognition.Service, studentID int64, path string, replace bool) (recognition.EnrollResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recognition.EnrollResult{}, err
	}
	return svc.Enroll(cmd.Context(), recognition.EnrollRequest{
		StudentID: studentID,
		Image:     data,
		ImageID:   imageIDFor(studentID, filepath.Base(path)),
		Replace:   replace,
	})
}

// imageFiles lists the PNG/JPEG files directly inside dir, sorted by name.
func imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var files []string
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(ent.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, filepath.Join(dir, ent.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// imageIDFor derives a stable image id from the student and file name. An
// empty result lets the service generate one.
func imageIDFor(studentID int64, name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.Trim(unsafeIDChars.ReplaceAllString(stem, "_"), "_")
	if stem == "" {
		return ""
	}
	id := fmt.Sprintf("%d_%s", studentID, stem)
	if len(id) > 128 {
		id = id[:128]
	}
	if media.ValidateImageID(id) != nil {
		return ""
	}
	return id
}
