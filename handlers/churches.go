package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"health-screening/models"
	"health-screening/qrcode"
)

// ChurchAPI manages outreach locations
type ChurchAPI interface {
	List(ctx context.Context, includeArchived bool) ([]models.Church, error)
	Create(ctx context.Context, req models.ChurchRequest) (*models.Church, error)
	Update(ctx context.Context, id string, req models.ChurchRequest) (*models.Church, error)
	Delete(ctx context.Context, id string) (*models.ChurchDeleteResult, error)
	QRCode(ctx context.Context, id string, size int) ([]byte, error)
}

type ChurchHandler struct {
	churches ChurchAPI
}

func NewChurchHandler(churches ChurchAPI) *ChurchHandler {
	return &ChurchHandler{churches: churches}
}

// PublicList handles GET /churches for the intake form
func (h *ChurchHandler) PublicList(c *gin.Context) {
	churches, err := h.churches.List(c.Request.Context(), false)
	if err != nil {
		failErr(c, err, "Churches")
		return
	}
	ok(c, http.StatusOK, churches)
}

// List handles GET /admin/churches?includeArchived=true
func (h *ChurchHandler) List(c *gin.Context) {
	includeArchived, _ := strconv.ParseBool(c.Query("includeArchived"))
	churches, err := h.churches.List(c.Request.Context(), includeArchived)
	if err != nil {
		failErr(c, err, "Churches")
		return
	}
	ok(c, http.StatusOK, churches)
}

func (h *ChurchHandler) Create(c *gin.Context) {
	var req models.ChurchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	church, err := h.churches.Create(c.Request.Context(), req)
	if err != nil {
		failErr(c, err, "Church")
		return
	}
	ok(c, http.StatusCreated, church)
}

func (h *ChurchHandler) Update(c *gin.Context) {
	var req models.ChurchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	church, err := h.churches.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		failErr(c, err, "Church")
		return
	}
	ok(c, http.StatusOK, church)
}

// Delete removes a location, or archives it when submissions reference it
func (h *ChurchHandler) Delete(c *gin.Context) {
	res, err := h.churches.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err, "Church")
		return
	}
	ok(c, http.StatusOK, res)
}

// QRCode handles GET /admin/churches/:id/qr?size=
func (h *ChurchHandler) QRCode(c *gin.Context) {
	size := qrcode.DefaultSize
	if raw := c.Query("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "size must be an integer")
			return
		}
		size = qrcode.ClampSize(n)
	}

	png, err := h.churches.QRCode(c.Request.Context(), c.Param("id"), size)
	if err != nil {
		failErr(c, err, "Church")
		return
	}
	c.Header("Content-Disposition", `inline; filename="church-`+c.Param("id")+`-qr.png"`)
	c.Data(http.StatusOK, "image/png", png)
}
