package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/recognition"
)

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.roster.ListGroups(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	g, err := h.roster.CreateGroup(c.Request.Context(), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *Handler) ListSubjects(c *gin.Context) {
	subjects, err := h.roster.ListSubjects(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, subjects)
}

func (h *Handler) CreateSubject(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	s, err := h.roster.CreateSubject(c.Request.Context(), req.Name)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

type studentRequest struct {
	FullName string `json:"full_name" binding:"required"`
	GroupID  int64  `json:"group_id" binding:"omitempty,gt=0"`
}

type studentQuery struct {
	GroupID int64 `form:"group_id" binding:"omitempty,gt=0"`
}

func (h *Handler) ListStudents(c *gin.Context) {
	var q studentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}
	students, err := h.roster.ListStudents(c.Request.Context(), q.GroupID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	st, err := h.roster.CreateStudent(c.Request.Context(), req.FullName, req.GroupID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) GetStudent(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	st, err := h.roster.GetStudent(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteStudent removes the student with all photos and attendance.
func (h *Handler) DeleteStudent(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	sum, err := h.pipeline.DeleteStudent(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_id": id, "deleted": sum})
}

type enrollForm struct {
	ImageID string `form:"image_id"`
	Replace bool   `form:"replace"`
}

// EnrollPhoto takes a multipart form with an "image" file holding exactly
// one face.
func (h *Handler) EnrollPhoto(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	img, err := h.readImage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var form enrollForm
	if err := c.ShouldBind(&form); err != nil {
		h.bindError(c, err)
		return
	}

	res, err := h.pipeline.Enroll(c.Request.Context(), recognition.EnrollRequest{
		StudentID: id,
		Image:     img,
		ImageID:   form.ImageID,
		Replace:   form.Replace,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusCreated
	if !res.Created {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *Handler) DeleteStudentPhotos(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	n, err := h.pipeline.DeleteStudentPhotos(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student_id": id, "removed": n})
}

func (h *Handler) PruneGallery(c *gin.Context) {
	res, err := h.pipeline.PruneGallery(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type recognizeForm struct {
	SubjectID int64  `form:"subject_id" binding:"required,gt=0"`
	GroupID   int64  `form:"group_id" binding:"required,gt=0"`
	Date      string `form:"date"`
}

// Recognize takes a classroom photo as multipart "image" plus subject_id,
// group_id and an optional date (today when omitted).
func (h *Handler) Recognize(c *gin.Context) {
	img, err := h.readImage(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	var form recognizeForm
	if err := c.ShouldBind(&form); err != nil {
		h.bindError(c, err)
		return
	}
	date, err := h.parseDate(form.Date)
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.pipeline.Recognize(c.Request.Context(), recognition.RecognizeRequest{
		SubjectID: form.SubjectID,
		GroupID:   form.GroupID,
		Date:      date,
		Image:     img,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type attendanceQuery struct {
	StudentID int64  `form:"student_id" binding:"omitempty,gt=0"`
	SubjectID int64  `form:"subject_id" binding:"omitempty,gt=0"`
	GroupID   int64  `form:"group_id" binding:"omitempty,gt=0"`
	Date      string `form:"date"`
	Limit     uint64 `form:"limit"`
	Offset    uint64 `form:"offset"`
}

func (h *Handler) ListAttendance(c *gin.Context) {
	var q attendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}
	f := attendance.Filter{StudentID: q.StudentID, SubjectID: q.SubjectID, GroupID: q.GroupID, Limit: q.Limit, Offset: q.Offset}
	if q.Date != "" {
		d, err := attendance.ParseDate(q.Date)
		if err != nil {
			h.writeError(c, err)
			return
		}
		f.Date = d
	}
	records, err := h.attendance.List(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, records)
}

type rosterQuery struct {
	GroupID   int64  `form:"group_id" binding:"required,gt=0"`
	SubjectID int64  `form:"subject_id" binding:"required,gt=0"`
	Date      string `form:"date"`
}

// AttendanceRoster lists every student of the group; unmarked ones are absent.
func (h *Handler) AttendanceRoster(c *gin.Context) {
	var q rosterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}
	date, err := h.parseDate(q.Date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	rows, err := h.attendance.Roster(c.Request.Context(), q.GroupID, q.SubjectID, date)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if rows == nil {
		rows = []attendance.RosterRow{}
	}
	c.JSON(http.StatusOK, gin.H{
		"group_id":   q.GroupID,
		"subject_id": q.SubjectID,
		"date":       date.Format(attendance.DateLayout),
		"students":   rows,
	})
}

type markRequest struct {
	StudentID int64  `json:"student_id" binding:"required,gt=0"`
	SubjectID int64  `json:"subject_id" binding:"required,gt=0"`
	GroupID   int64  `json:"group_id" binding:"required,gt=0"`
	Date      string `json:"date" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=present absent"`
}

type batchRequest struct {
	Records []markRequest `json:"records" binding:"required,min=1,dive"`
}

// MarkAttendance applies a batch of marks in one transaction.
func (h *Handler) MarkAttendance(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	marks := make([]attendance.Mark, 0, len(req.Records))
	for _, r := range req.Records {
		d, err := attendance.ParseDate(r.Date)
		if err != nil {
			h.writeError(c, err)
			return
		}
		marks = append(marks, attendance.Mark{
			StudentID: r.StudentID,
			SubjectID: r.SubjectID,
			GroupID:   r.GroupID,
			Date:      d,
			Status:    attendance.Status(r.Status),
		})
	}
	records, err := h.attendance.MarkBatch(c.Request.Context(), marks)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) SetAttendanceStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	rec, err := h.attendance.SetStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
