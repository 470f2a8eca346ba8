package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"backend/pkg/apperr"
	"backend/pkg/response"
)

// NewRedisRateLimitStore builds a limiter store on the shared redis
// client so counters survive restarts and apply across workers.
func NewRedisRateLimitStore(client *redis.Client) (limiter.Store, error) {
	return sredis.NewStoreWithOptions(client, limiter.StoreOptions{
		Prefix: "ratelimit",
	})
}

// NewMemoryRateLimitStore is a process-local store for tests and
// single-process development.
func NewMemoryRateLimitStore() limiter.Store {
	return memory.NewStore()
}

// RateLimit returns a per-client-IP limiter middleware. Exceeding the
// rate aborts with 429 in the standard error envelope.
func RateLimit(store limiter.Store, rate limiter.Rate) gin.HandlerFunc {
	instance := limiter.New(store, rate, limiter.WithTrustForwardHeader(true))
	return mgin.NewMiddleware(instance,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				response.Error(apperr.CodeRateLimited, "rate limit exceeded"))
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// A broken store must not lock everyone out.
			c.Next()
		}),
	)
}
