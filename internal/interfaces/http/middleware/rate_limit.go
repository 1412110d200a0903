package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/crewbill/keysvc/internal/application/dto"
	"github.com/crewbill/keysvc/internal/infrastructure/ratelimit"
	"github.com/crewbill/keysvc/pkg/errors"
)

// RateLimit throttles callers by client IP using the shared Redis limiter.
func RateLimit(limiter *ratelimit.RedisRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.Request.Context(), c.ClientIP()) {
			dto.SendError(c, errors.ErrRateLimited())
			c.Abort()
			return
		}
		c.Next()
	}
}
