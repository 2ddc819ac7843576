package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"health-screening/models"
	"health-screening/service"
)

// Cookie names carrying the session tokens
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const claimsKey = "claims"

// TokenValidator verifies access tokens
type TokenValidator interface {
	ValidateAccessToken(token string) (*service.Claims, error)
}

// RequireAdmin is the single guard for admin routes. The access token is read
// from the access_token cookie, falling back to an Authorization bearer header.
func RequireAdmin(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		claims, err := auth.ValidateAccessToken(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if claims.Role != models.RoleAdmin {
			abort(c, http.StatusForbidden, "Admin access required")
			return
		}

		c.Set(claimsKey, claims)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// ClaimsFrom returns the claims set by RequireAdmin
func ClaimsFrom(c *gin.Context) (*service.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*service.Claims)
	return claims, ok
}

func accessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}
	return extractToken(c.GetHeader("Authorization"))
}

// extractToken extracts the token from a Bearer authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Success: false, Error: msg})
}
