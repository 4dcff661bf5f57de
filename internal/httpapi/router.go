// Package httpapi exposes the scrape/map/agent-extract/search surface
// over fiber, grounded on the teacher's internal/http package: the same
// app-wide Locals injection, request-logging-plus-metrics middleware,
// and /health + /metrics endpoints, generalized from the teacher's
// multi-tenant session/OIDC auth down to the single X-API-Key scheme
// this spec calls for.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"distill/internal/config"
	"distill/internal/crawler"
	"distill/internal/llm"
	"distill/internal/metrics"
	"distill/internal/ratelimit"
	"distill/internal/search"
	"distill/internal/store"
)

// Server wires the fiber app to its collaborators: the durable store,
// the shared single-URL fetch pipeline (crawler.Deps/FetchPage), an LLM
// client factory for agent_extract and scrape format requests, and an
// optional search provider.
type Server struct {
	app    *fiber.App
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

// NewServer builds the fiber app and registers every route.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	crawlerDeps crawler.Deps,
	llmClientSource func(provider, model string) (llm.Client, llm.Provider, string, error),
	searchProvider search.Provider,
	redisClient *redis.Client,
	logger *slog.Logger,
) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	if logger == nil {
		logger = slog.Default()
	}

	app.Use(requestLoggingMiddleware(func(reqID, method, path string, status int, latencyMs int64) {
		logger.Info("request",
			"request_id", reqID, "method", method, "path", path,
			"status", status, "latency_ms", latencyMs)
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		if c.Query("deep") != "true" {
			return c.JSON(fiber.Map{"status": "ok"})
		}

		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := st.DB.PingContext(ctx); err != nil {
			dbStatus = "error"
		}
		redisStatus := "disabled"
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}
		browserStatus := "disabled"
		if cfg.Rod.Enabled {
			browserStatus = "enabled"
		}

		status := "ok"
		if dbStatus != "ok" || redisStatus == "error" {
			status = "error"
		}
		return c.JSON(fiber.Map{"status": status, "db": dbStatus, "redis": redisStatus, "browser": browserStatus})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	limiter := ratelimit.New(redisClient, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, cfg.RateLimit.DefaultPerMinute)

	h := &handlers{
		cfg:             cfg,
		store:           st,
		crawlerDeps:     crawlerDeps,
		llmClientSource: llmClientSource,
		search:          searchProvider,
		logger:          logger,
	}

	v1 := app.Group("/api/v1", authMiddleware(st), rateLimitMiddleware(limiter))
	v1.Post("/scrape", requireScope("scrape"), h.scrape)
	v1.Post("/map", requireScope("map"), h.submitMap)
	v1.Get("/map/:jobID", requireScope("map"), h.jobStatus)
	v1.Post("/agent/extract", requireScope("extract"), h.submitAgentExtract)
	v1.Post("/search", requireScope("search"), h.submitSearch)
	v1.Get("/search/results/:taskID", requireScope("search"), h.jobResultsByParam("taskID"))
	v1.Get("/jobs/:jobID", h.jobStatus)
	v1.Get("/jobs/:jobID/results", h.jobResultsByParam("jobID"))

	return &Server{app: app, cfg: cfg, store: st, logger: logger}
}

// Listen starts the HTTP server on cfg.Server.Host:Port.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	return s.app.Listen(addr)
}
