// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_faces_detected_total",
		Help: "Faces found in recognition photos.",
	})

	MatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_match_outcomes_total",
		Help: "Recognised faces by derived status.",
	}, []string{"status"})

	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_enrollments_total",
		Help: "Enrollment attempts by result.",
	}, []string{"result"})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_attendance_marks_total",
		Help: "Attendance upserts by status.",
	}, []string{"status"})

	CleanupDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_cleanup_deletions_total",
		Help: "Deferred file deletions by result.",
	}, []string{"result"})

	RecognitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollcall_recognition_duration_seconds",
		Help:    "Time spent extracting and matching one recognition photo.",
		Buckets: prometheus.DefBuckets,
	})
)
