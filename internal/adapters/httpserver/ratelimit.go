package httpserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimitMiddleware caps requests per caller over a fixed window using
// redis counters, so the limit holds across replicas. Keyed by the
// authenticated subject when present, client IP otherwise. Redis being
// down fails open: throttling is protection, not a correctness guarantee.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration, baseLogger *zerolog.Logger) gin.HandlerFunc {
	log := baseLogger.With().Str("component", "rate_limit").Logger()

	return func(c *gin.Context) {
		key := c.GetString("sub")
		if key == "" {
			key = c.ClientIP()
		}
		redisKey := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), key)

		// INCR and the TTL travel in one pipeline so a counter can never
		// outlive its window. ExpireNX only arms a missing TTL, keeping
		// the window fixed rather than sliding.
		pipe := rdb.Pipeline()
		incr := pipe.Incr(c.Request.Context(), redisKey)
		pipe.ExpireNX(c.Request.Context(), redisKey, window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		if n := incr.Val(); n > int64(limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   fmt.Sprintf("rate limit exceeded: %d requests per %v", limit, window),
			})
			return
		}

		c.Next()
	}
}
