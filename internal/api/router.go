package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/internal/metrics"
	"github.com/Gopher0727/GiftList/middleware/jwt"
	logger "github.com/Gopher0727/GiftList/middleware/log"
	"github.com/Gopher0727/GiftList/utils/ratelimit"
)

// Deps are the cross-cutting pieces of the router. Limiter, Metrics and
// Health may be nil.
type Deps struct {
	Tokens  *jwt.TokenManager
	Limiter ratelimit.Limiter
	Rules   ratelimit.Rules
	Metrics *metrics.Metrics
	Log     *logger.Logger
	Health  func(ctx context.Context) error
}

// NewRouter builds the gin engine with middleware and every route mounted.
func NewRouter(h Handlers, d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}

	r := gin.New()
	r.Use(
		logger.GinMiddleware(d.Log),
		Recovery(d.Log),
		CORS(),
	)
	if d.Metrics != nil {
		r.Use(d.Metrics.GinMiddleware())
		r.GET("/metrics", d.Metrics.Handler())
	}

	r.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				d.Log.WarnContext(ctx, "health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterRoutes(r, h, d)
	return r
}
