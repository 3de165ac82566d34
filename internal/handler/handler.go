// Package handler exposes the roster, enrollment, recognition and
// attendance operations over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/recognition"
	"rollcall/internal/roster"
)

// Pipeline is the face pipeline.
type Pipeline interface {
	Enroll(ctx context.Context, req recognition.EnrollRequest) (recognition.EnrollResult, error)
	Recognize(ctx context.Context, req recognition.RecognizeRequest) (recognition.RecognizeResult, error)
	DeleteStudentPhotos(ctx context.Context, studentID int64) (int, error)
	DeleteStudent(ctx context.Context, studentID int64) (recognition.DeleteSummary, error)
	PruneGallery(ctx context.Context) (recognition.PruneResult, error)
}

// Roster manages groups, subjects and students.
type Roster interface {
	CreateGroup(ctx context.Context, name string) (roster.Group, error)
	ListGroups(ctx context.Context) ([]roster.Group, error)
	CreateSubject(ctx context.Context, name string) (roster.Subject, error)
	ListSubjects(ctx context.Context) ([]roster.Subject, error)
	CreateStudent(ctx context.Context, fullName string, groupID int64) (roster.Student, error)
	GetStudent(ctx context.Context, id int64) (roster.Student, error)
	ListStudents(ctx context.Context, groupID int64) ([]roster.Student, error)
}

// Attendance reads and overrides attendance rows.
type Attendance interface {
	MarkBatch(ctx context.Context, marks []attendance.Mark) ([]attendance.Record, error)
	Roster(ctx context.Context, groupID, subjectID int64, date time.Time) ([]attendance.RosterRow, error)
	List(ctx context.Context, f attendance.Filter) ([]attendance.Record, error)
	SetStatus(ctx context.Context, id int64, status string) (attendance.Record, error)
}

// TokenIssuer exchanges client secrets for tokens.
type TokenIssuer interface {
	Exchange(clientID string, role auth.Role, secret string) (auth.Token, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	pipeline   Pipeline
	roster     Roster
	attendance Attendance
	issuer     TokenIssuer
	checks     map[string]HealthCheck
	maxUpload  int64
	logFile    string
	logger     *log.Logger
	today      func() time.Time
}

// Options carries the optional parts of a Handler.
type Options struct {
	Checks         map[string]HealthCheck
	MaxUploadBytes int64
	LogFile        string // served by GET /v1/logs
	Logger         *log.Logger
}

func New(p Pipeline, r Roster, a Attendance, issuer TokenIssuer, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		pipeline:   p,
		roster:     r,
		attendance: a,
		issuer:     issuer,
		checks:     opts.Checks,
		maxUpload:  opts.MaxUploadBytes,
		logFile:    opts.LogFile,
		logger:     opts.Logger,
		today:      func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts every route. operator guards management routes; device
// guards the recognition route, which operators may also call.
func (h *Handler) Register(r gin.IRouter, operator, device gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/auth/token", h.IssueToken)

	r.POST("/v1/recognitions", device, h.Recognize)

	v1 := r.Group("/v1", operator)
	v1.GET("/groups", h.ListGroups)
	v1.POST("/groups", h.CreateGroup)
	v1.GET("/subjects", h.ListSubjects)
	v1.POST("/subjects", h.CreateSubject)

	v1.GET("/students", h.ListStudents)
	v1.POST("/students", h.CreateStudent)
	v1.GET("/students/:id", h.GetStudent)
	v1.DELETE("/students/:id", h.DeleteStudent)
	v1.POST("/students/:id/photo", h.EnrollPhoto)
	v1.DELETE("/students/:id/photo", h.DeleteStudentPhotos)

	v1.POST("/gallery/prune", h.PruneGallery)

	v1.GET("/attendance", h.ListAttendance)
	v1.GET("/attendance/roster", h.AttendanceRoster)
	v1.PUT("/attendance", h.MarkAttendance)
	v1.PUT("/attendance/:id", h.SetAttendanceStatus)

	v1.GET("/logs", h.Logs)
}

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		deps[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	deps["status"] = "ok"
	if status != http.StatusOK {
		deps["status"] = "degraded"
	}
	c.JSON(status, deps)
}

type tokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
	Role         string `json:"role" binding:"required,oneof=operator device"`
}

func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	tok, err := h.issuer.Exchange(req.ClientID, auth.Role(req.Role), req.ClientSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid client credentials", "category": "unauthorized"})
		return
	}
	c.JSON(http.StatusCreated, tok)
}

// writeError maps err to a status code and a category the client can act on.
func (h *Handler) writeError(c *gin.Context, err error) {
	cat := recognition.Classify(err)
	status := http.StatusInternalServerError
	msg := err.Error()
	switch cat {
	case recognition.CategoryMissingInput, recognition.CategoryInvalidImage:
		status = http.StatusBadRequest
	case recognition.CategoryNoFace, recognition.CategoryFaceCount:
		status = http.StatusUnprocessableEntity
	case recognition.CategoryConflict:
		status = http.StatusConflict
	case recognition.CategoryNotFound:
		status = http.StatusNotFound
	case recognition.CategoryDatabase:
		status = http.StatusServiceUnavailable
		msg = "database unavailable, retry later"
		h.logger.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	case recognition.CategoryUnavailable:
		status = http.StatusServiceUnavailable
		msg = "face model unavailable, retry later"
		h.logger.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	default:
		msg = "internal error"
		h.logger.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": msg, "category": cat})
}

func (h *Handler) bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "category": recognition.CategoryMissingInput})
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.bindError(c, fmt.Errorf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

// readImage reads the multipart "image" field, capped at maxUpload bytes.
func (h *Handler) readImage(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: image larger than %d bytes", recognition.ErrInvalidInput, h.maxUpload)
		}
		return nil, fmt.Errorf("%w: image file is required", recognition.ErrInvalidInput)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) parseDate(s string) (time.Time, error) {
	if s == "" {
		t := h.today()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return attendance.ParseDate(s)
}
