package handlers

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"health-screening/export"
	"health-screening/models"
	"health-screening/service"
)

// AdminAPI is the dashboard backend
type AdminAPI interface {
	Query(ctx context.Context, f models.SubmissionFilter) (*models.SubmissionPage, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	UpdateFollowUp(ctx context.Context, id string, u models.FollowUpUpdate) (*models.Submission, error)
	Export(ctx context.Context, req models.ExportRequest, w io.Writer) error
	Stats(ctx context.Context, churchID string) (*models.SubmissionStats, error)
	Notify(ctx context.Context, id string, req models.NotifyRequest) error
}

// PhotoSigner issues signed photo URLs
type PhotoSigner interface {
	AdminURL(ctx context.Context, photoPath string) (*models.SignedURLResponse, error)
	ParticipantURL(ctx context.Context, submissionID, verification string) (*models.SignedURLResponse, error)
}

// AdminHandler serves the admin submission routes
type AdminHandler struct {
	admin  AdminAPI
	photos PhotoSigner
}

// NewAdminHandler creates the admin handler
func NewAdminHandler(admin AdminAPI, photos PhotoSigner) *AdminHandler {
	return &AdminHandler{admin: admin, photos: photos}
}

// ListSubmissions handles GET /admin/submissions
func (h *AdminHandler) ListSubmissions(c *gin.Context) {
	filter, errs := queryParams(c).toFilter()
	if len(errs) > 0 {
		fail(c, http.StatusBadRequest, "Invalid query parameters", errs...)
		return
	}

	page, err := h.admin.Query(c.Request.Context(), filter)
	if err != nil {
		failErr(c, err, "Submissions")
		return
	}
	ok(c, http.StatusOK, page)
}

// GetSubmission handles GET /admin/submissions/:id
func (h *AdminHandler) GetSubmission(c *gin.Context) {
	sub, err := h.admin.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, "Submission")
		return
	}
	ok(c, http.StatusOK, sub)
}

// UpdateFollowUp handles PUT /admin/submissions/:id/follow-up
func (h *AdminHandler) UpdateFollowUp(c *gin.Context) {
	var req models.FollowUpUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	sub, err := h.admin.UpdateFollowUp(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		failErr(c, err, "Submission")
		return
	}
	ok(c, http.StatusOK, sub)
}

// Notify handles POST /admin/submissions/:id/notify
func (h *AdminHandler) Notify(c *gin.Context) {
	var req models.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.admin.Notify(c.Request.Context(), c.Param("id"), req); err != nil {
		failErr(c, err, "Submission")
		return
	}
	ok(c, http.StatusOK, gin.H{"channel": req.Channel})
}

type exportBody struct {
	Format  string       `json:"format" binding:"required"`
	Filters filterParams `json:"filters"`
}

// Export handles POST /admin/export. The file is rendered into memory first
// so a failure can still produce a JSON error.
func (h *AdminHandler) Export(c *gin.Context) {
	var body exportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		bindError(c, err)
		return
	}
	filter, errs := body.Filters.toFilter()
	if len(errs) > 0 {
		fail(c, http.StatusBadRequest, "Invalid filters", errs...)
		return
	}

	var buf bytes.Buffer
	err := h.admin.Export(c.Request.Context(), models.ExportRequest{Format: body.Format, Filters: filter}, &buf)
	if err != nil {
		failErr(c, err, "Submissions")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+export.Filename(time.Now().UTC())+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Stats handles GET /admin/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context(), c.Query("churchId"))
	if err != nil {
		failErr(c, err, "Stats")
		return
	}
	ok(c, http.StatusOK, stats)
}

// AdminPhotoURL handles POST /admin/photos/signed-url
func (h *AdminHandler) AdminPhotoURL(c *gin.Context) {
	var req models.AdminPhotoURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.photos.AdminURL(c.Request.Context(), req.PhotoPath)
	if err != nil {
		failErr(c, err, "Photo")
		return
	}
	ok(c, http.StatusOK, res)
}

// ParticipantPhotoURL handles the public POST /photos/signed-url
func (h *AdminHandler) ParticipantPhotoURL(c *gin.Context) {
	var req models.ParticipantPhotoURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.photos.ParticipantURL(c.Request.Context(), req.SubmissionID, req.PhoneVerification)
	if err != nil {
		failErr(c, err, "Submission")
		return
	}
	ok(c, http.StatusOK, res)
}

var _ AdminAPI = (*service.AdminService)(nil)
var _ PhotoSigner = (*service.PhotoService)(nil)
