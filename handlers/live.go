package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/samber/lo"

	"health-screening/models"
	"health-screening/websocket"
)

// LiveHandler upgrades admin connections onto the submission feed
type LiveHandler struct {
	hub      *websocket.Hub
	upgrader gorilla.Upgrader
}

// NewLiveHandler creates the live feed handler. Browser origins must be in
// allowedOrigins or match the request host.
func NewLiveHandler(hub *websocket.Hub, allowedOrigins []string) *LiveHandler {
	return &LiveHandler{
		hub: hub,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"), r.Host, allowedOrigins)
			},
		},
	}
}

func originAllowed(origin, host string, allowed []string) bool {
	if origin == "" || lo.Contains(allowed, origin) {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}

// Subscribe handles GET /admin/live
func (h *LiveHandler) Subscribe(c *gin.Context) {
	userID := c.GetString("user_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("Live feed upgrade failed for user %s: %v", userID, err)
		return
	}

	client := websocket.NewClient(h.hub, conn, userID)
	if !h.hub.Add(client) {
		conn.Close()
		return
	}
	log.Infof("Live feed client connected for user %s", userID)

	go client.WritePump()
	go client.ReadPump()
}

// Pinger reports database reachability
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves GET /health
func HealthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := models.HealthResponse{
			Status:    "healthy",
			Service:   "health-screening",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				log.Warnf("Health check database ping failed: %v", err)
				res.Status = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, res)
				return
			}
		}
		c.JSON(http.StatusOK, res)
	}
}
