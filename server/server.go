package server

import (
	"errors"
	"fmt"
	"time"

	"blogfeed/models"
	"blogfeed/service"
	"blogfeed/source"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	// Shared caches never keep the feed longer than an hour
	maxSharedMaxAge      = time.Hour
	staleWhileRevalidate = 60 * time.Second

	OriginHeader = "X-Feed-Origin"
)

// Paths the post list is served on. /api/hashnode is kept for pages built
// against the old route.
var FeedPaths = []string{"/feed", "/api/hashnode"}

type ServerConfig struct {
	// The service producing the post list
	Service *service.Service

	// Comma separated origins allowed to call the API from a browser
	AllowOrigins string
}

// Returns a fiber.App instance serving the normalized blog feed
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "blogfeed",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes, rendering errors here so the logged status is the final one
		if err := c.Next(); err != nil {
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				return handlerErr
			}
		}

		log.WithFields(log.Fields{
			"method":    c.Method(),
			"route":     c.Route().Path,
			"status":    c.Response().StatusCode(),
			"latency":   time.Since(start),
			"requestId": c.GetRespHeader(fiber.HeaderXRequestID),
		}).Info("Request")
		return nil
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(compress.New())

	allowOrigins := config.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowMethods: "GET,HEAD,OPTIONS",
		AllowHeaders: "Cache-Control",
	}))

	cacheControl := cacheControlValue(config.Service.CacheTTL())
	for _, path := range FeedPaths {
		app.Get(path, feedHandler(config.Service, cacheControl))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(models.HealthResponse{Status: "ok"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

func feedHandler(svc *service.Service, cacheControl string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := svc.Posts(c.UserContext())
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderCacheControl, cacheControl)
		c.Set(OriginHeader, string(result.Origin))
		return c.JSON(result.Posts)
	}
}

// errorHandler renders every error as {error, details}. Upstream contract
// violations are a 502, everything else unexpected a 500.
func errorHandler(c *fiber.Ctx, err error) error {
	c.Set(fiber.HeaderCacheControl, "no-store")

	var fetchErr *source.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Kind == source.KindContract {
		return c.Status(fiber.StatusBadGateway).JSON(models.ErrorResponse{
			Error:   "Upstream returned errors",
			Details: fetchErr.Details,
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(models.ErrorResponse{
			Error: fiberErr.Message,
		})
	}

	log.WithFields(log.Fields{
		"path":  c.Path(),
		"error": err,
	}).Error("Failed to serve request")

	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error:   "Failed to load posts",
		Details: err.Error(),
	})
}

// cacheControlValue lets shared caches keep the feed for the cache TTL, at
// most an hour
func cacheControlValue(ttl time.Duration) string {
	maxAge := ttl
	if maxAge > maxSharedMaxAge {
		maxAge = maxSharedMaxAge
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d",
		int(maxAge.Seconds()), int(staleWhileRevalidate.Seconds()))
}
