package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"resumeforge/internal/api/middleware"
	"resumeforge/internal/errcode"
)

// RateCounter 是限流所需的 Redis 子集。
type RateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client RateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// renderRateLimit 按 owner 和自然分钟计数渲染请求。Redis 不可用时放行。
func renderRateLimit(client RateCounter, perMinute int, now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := middleware.OwnerID(c)
		if client == nil || perMinute <= 0 || !ok {
			c.Next()
			return
		}

		window := now().UTC().Truncate(time.Minute).Unix()
		key := fmt.Sprintf("rate:render:%s:%d", ownerID, window)
		count, err := incrWithTTL(c.Request.Context(), client, key, time.Minute)
		if err != nil {
			middleware.LoggerFromContext(c).Warn("render rate counter unavailable", slog.String("error", err.Error()))
			c.Next()
			return
		}
		if count > int64(perMinute) {
			c.Header("Retry-After", "60")
			Error(c, http.StatusTooManyRequests, errcode.RateLimited, "too many render requests, try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
