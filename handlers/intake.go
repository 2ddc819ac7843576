package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"health-screening/models"
	"health-screening/service"
	"health-screening/upload"
)

// PhotoField is the multipart field carrying the selfie
const PhotoField = "selfie"

// multipart parts beyond this size spill to disk
const formMemory = 8 << 20

// Submitter runs the intake pipeline
type Submitter interface {
	Submit(ctx context.Context, req service.IntakeRequest) (string, *service.IntakeError)
}

// IntakeHandler serves the public submission form
type IntakeHandler struct {
	intake  Submitter
	maxBody int64
}

// NewIntakeHandler creates the handler. Bodies larger than maxUpload plus
// 1MB of form overhead are refused outright.
func NewIntakeHandler(intake Submitter, maxUpload int64) *IntakeHandler {
	return &IntakeHandler{intake: intake, maxBody: maxUpload + 1<<20}
}

// Submit handles POST /api/v1/submissions
func (h *IntakeHandler) Submit(c *gin.Context) {
	if c.Request.ContentLength > h.maxBody {
		fail(c, http.StatusRequestEntityTooLarge, "Request is too large")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	if err := c.Request.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "Request is too large")
			return
		}
		fail(c, http.StatusBadRequest, "Invalid form data")
		return
	}
	defer func() {
		if err := c.Request.MultipartForm.RemoveAll(); err != nil {
			log.Warnf("Failed to remove multipart temp files: %v", err)
		}
	}()

	req := service.IntakeRequest{
		Form:       make(map[string]string, len(c.Request.MultipartForm.Value)),
		Headers:    c.Request.Header,
		RemoteAddr: c.Request.RemoteAddr,
	}
	for k, v := range c.Request.MultipartForm.Value {
		if len(v) > 0 {
			req.Form[k] = v[0]
		}
	}
	if raw := req.Form["deviceInfo"]; raw != "" {
		var info models.ClientInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			log.Debugf("Ignoring malformed deviceInfo: %v", err)
		} else {
			req.ClientInfo = info
		}
		delete(req.Form, "deviceInfo")
	}

	if files := c.Request.MultipartForm.File[PhotoField]; len(files) > 0 {
		fh := files[0]
		path, err := spool(fh)
		if err != nil {
			log.Errorf("Failed to spool upload %s: %v", upload.SanitizeFilename(fh.Filename), err)
			fail(c, http.StatusInternalServerError, "Internal server error")
			return
		}
		defer os.Remove(path)

		req.FilePath = path
		req.FileName = fh.Filename
		req.FileMIME = fh.Header.Get("Content-Type")
	}

	id, ierr := h.intake.Submit(c.Request.Context(), req)
	if ierr != nil {
		if ierr.Status >= http.StatusInternalServerError {
			log.Errorf("Submission failed: %v", ierr)
		}
		fail(c, ierr.Status, ierr.Message, ierr.Fields...)
		return
	}

	ok(c, http.StatusCreated, models.CreatedResponse{ID: id})
}

// spool copies an uploaded part to its own temp file for validation
func spool(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "selfie-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}
