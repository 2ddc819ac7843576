package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"health-screening/middleware"
	"health-screening/models"
	"health-screening/service"
)

const refreshCookiePath = "/api/v1/auth"

// Authenticator manages admin sessions
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*service.TokenPair, *models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*service.TokenPair, *models.User, error)
	Logout(ctx context.Context, refreshToken string) error
}

// AuthHandler serves login, refresh, logout and me
type AuthHandler struct {
	auth   Authenticator
	secure bool
	domain string
}

// NewAuthHandler creates the auth handler. secure and domain apply to the
// session cookies.
func NewAuthHandler(auth Authenticator, secure bool, domain string) *AuthHandler {
	return &AuthHandler{auth: auth, secure: secure, domain: domain}
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	pair, user, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	case errors.Is(err, service.ErrForbidden):
		fail(c, http.StatusForbidden, "Admin access required")
		return
	case err != nil:
		failErr(c, err, "User")
		return
	}

	h.setCookies(c, pair)
	ok(c, http.StatusOK, models.LoginResponse{User: user, ExpiresAt: pair.AccessExpiresAt})
}

// Refresh handles POST /auth/refresh, rotating both cookies
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshTokenCookie)
	if token == "" {
		fail(c, http.StatusUnauthorized, "Refresh token required")
		return
	}

	pair, user, err := h.auth.Refresh(c.Request.Context(), token)
	switch {
	case errors.Is(err, service.ErrInvalidToken), errors.Is(err, service.ErrForbidden):
		h.clearCookies(c)
		fail(c, http.StatusUnauthorized, "Invalid or expired refresh token")
		return
	case err != nil:
		failErr(c, err, "User")
		return
	}

	h.setCookies(c, pair)
	ok(c, http.StatusOK, models.LoginResponse{User: user, ExpiresAt: pair.AccessExpiresAt})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := c.Cookie(middleware.RefreshTokenCookie)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		failErr(c, err, "Session")
		return
	}
	h.clearCookies(c)
	ok(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims, found := middleware.ClaimsFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, "Authentication required")
		return
	}
	ok(c, http.StatusOK, gin.H{
		"id":    claims.UserID,
		"email": claims.Email,
		"role":  claims.Role,
	})
}

func (h *AuthHandler) setCookies(c *gin.Context, pair *service.TokenPair) {
	now := time.Now()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, pair.AccessToken, maxAge(pair.AccessExpiresAt, now), "/", h.domain, h.secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, pair.RefreshToken, maxAge(pair.RefreshExpiresAt, now), refreshCookiePath, h.domain, h.secure, true)
}

func (h *AuthHandler) clearCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", h.domain, h.secure, true)
	c.SetCookie(middleware.RefreshTokenCookie, "", -1, refreshCookiePath, h.domain, h.secure, true)
}

func maxAge(expires, now time.Time) int {
	secs := int(expires.Sub(now).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}
