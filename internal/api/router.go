package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"user-service/internal/metrics"
)

type RouterConfig struct {
	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// DatabaseState reports the connection state shown by /health.
	DatabaseState func() string
	StartedAt     time.Time
}

// NewRouter wires the user routes, health, metrics and the error mapping.
func NewRouter(cfg RouterConfig, userHandler *UserHandler) *echo.Echo {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()
	e.HTTPErrorHandler = errorHandler
	// rate limit buckets are keyed on the peer address, never on client headers
	e.IPExtractor = echo.ExtractIPDirect()

	// Middleware
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(requestLogger())
	e.Use(metrics.Middleware())
	e.Use(middleware.BodyLimit("1M"))
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiterWithConfig(rateLimiterConfig(cfg.RateLimit, cfg.RateBurst)))
	}

	// Routes
	health := healthHandler(cfg)
	e.GET("/health", health)
	e.HEAD("/health", health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	users := e.Group("/api/users")
	users.GET("", userHandler.ListUsers)
	users.HEAD("", userHandler.ListUsers)
	users.GET("/:id", userHandler.GetUser)
	users.HEAD("/:id", userHandler.GetUser)
	users.POST("", userHandler.CreateUser)

	return e
}

func healthHandler(cfg RouterConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]interface{}{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(cfg.StartedAt).Seconds(),
		}
		if cfg.DatabaseState != nil {
			body["database"] = cfg.DatabaseState()
		}
		return c.JSON(http.StatusOK, body)
	}
}

func rateLimiterConfig(limit float64, burst int) middleware.RateLimiterConfig {
	return middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/metrics"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}

// errorHandler is the terminal fallback for errors no handler answered:
// unknown routes become 404, anything unexpected a generic 500.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := internalError

	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch {
		case he.Code == http.StatusNotFound || he.Code == http.StatusMethodNotAllowed:
			log.Info().Msgf("404 - Route not found: %s", c.Request().URL.RequestURI())
			status = http.StatusNotFound
			body = map[string]string{"error": "Route not found"}
		case he.Code < http.StatusInternalServerError:
			status = he.Code
			body = map[string]string{"error": http.StatusText(he.Code)}
		}
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msgf("Unhandled error on %s %s", c.Request().Method, c.Request().URL.RequestURI())
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		log.Error().Err(writeErr).Msg("Error writing error response")
	}
}
