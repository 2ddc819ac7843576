package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"health-screening/metrics"
	"health-screening/ratelimit"
)

// RateLimitResponse is the 429 body
type RateLimitResponse struct {
	Success    bool      `json:"success"`
	Error      string    `json:"error"`
	RetryAfter int       `json:"retryAfter"`
	ResetTime  time.Time `json:"resetTime"`
}

// RateLimit counts each request against the kind's policy, keyed by client IP
func RateLimit(limiter *ratelimit.Limiter, kind ratelimit.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		res := limiter.Check(c.Request.Context(), clientIP, kind)

		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		}

		if !res.Allowed {
			retryAfter := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			metrics.RateLimitedTotal.WithLabelValues(string(kind)).Inc()
			log.Warnf("Rate limit %s exceeded for IP: %s", kind, clientIP)

			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
				Success:    false,
				Error:      "Too many requests, please try again later",
				RetryAfter: retryAfter,
				ResetTime:  res.ResetAt.UTC(),
			})
			return
		}

		c.Next()
	}
}
