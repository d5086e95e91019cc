package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/IShalkin/manoe-sub005/pkg/ratelimit"
)

// securityHeaders sets the standard security response headers on every
// response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// rateLimit admits or denies the request against the caller's sliding
// window. Store failures fail secure with 503; they are never treated as
// an open gate.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.gate == nil {
			c.Next()
			return
		}
		identity := ratelimit.Identity(c.Request)
		decision, err := s.gate.Admit(c.Request.Context(), identity, c.Request.URL.Path)
		switch {
		case errors.Is(err, ratelimit.ErrRateLimited):
			s.metrics.RateLimitDenials.WithLabelValues(decision.Window).Inc()
			setRateHeaders(c, decision)
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		case err != nil:
			s.logger.Error("Rate limit check failed", "identity", identity, "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate limiter unavailable"})
		default:
			setRateHeaders(c, decision)
			c.Next()
		}
	}
}

func setRateHeaders(c *gin.Context, d ratelimit.Decision) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt, 10))
}
