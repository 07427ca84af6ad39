package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"subline/internal/authz"
	"subline/internal/lifecycle"
	"subline/internal/logging"
	"subline/internal/services"
	"subline/internal/topic"
)

// StatusFunc reports the daemon status served by GET /api/status.
type StatusFunc func(ctx context.Context) DaemonStatus

// Options wires the router to the daemon.
type Options struct {
	Store     *topic.Store
	Lifecycle *lifecycle.Service
	Status    StatusFunc
	// Token is the bearer token required on every request. Empty disables
	// authentication.
	Token  string
	Logger *slog.Logger
}

type handler struct {
	store     *topic.Store
	lifecycle *lifecycle.Service
	status    StatusFunc
	logger    *slog.Logger
}

// NewRouter builds the gin engine serving the topic and lifecycle API.
func NewRouter(opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "api")

	h := &handler{
		store:     opts.Store,
		lifecycle: opts.Lifecycle,
		status:    opts.Status,
		logger:    logger,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(logger), authenticate(opts.Token))

	group := router.Group("/api")
	group.GET("/status", h.getStatus)
	group.GET("/topics", h.listTopics)
	group.GET("/topics/:id", h.getTopic)
	group.POST("/topics/:id", h.runAction)
	group.POST("/topics/:id/reload", h.reloadSubtitle)

	router.NoRoute(func(c *gin.Context) {
		jsonError(c, http.StatusNotFound, "route not found", "")
	})
	return router
}

// requestID attaches a correlation id to the request context and response.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		ctx := services.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("elapsed", time.Since(start)),
		}
		reqLogger := logging.WithContext(c.Request.Context(), logger)
		if c.Writer.Status() >= http.StatusInternalServerError {
			reqLogger.Warn("api request failed", logging.Args(attrs...)...)
			return
		}
		reqLogger.Debug("api request", logging.Args(attrs...)...)
	}
}

// authenticate validates the bearer token. If token is empty, no authentication
// is required and every request runs as the system principal.
func authenticate(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token != "" {
			auth := c.GetHeader("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				jsonError(c, http.StatusUnauthorized, "unauthorized", "")
				return
			}
		}
		ctx := authz.WithPrincipal(c.Request.Context(), authz.System)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
