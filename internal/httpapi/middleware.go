package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"distill/internal/apierr"
	"distill/internal/credential"
	"distill/internal/metrics"
	"distill/internal/model"
	"distill/internal/ratelimit"
	"distill/internal/store"
)

// CredentialStore is the slice of store.Store the auth middleware needs.
type CredentialStore interface {
	GetCredentialByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error)
	TouchCredentialLastUsed(ctx context.Context, id uuid.UUID) error
}

// authMiddleware authenticates every request against the X-API-Key
// header: hash the presented key, look it up, and stash the resolved
// credential in c.Locals for handlers and the rate limiter to use.
// Generalized from the teacher's authMiddleware, which additionally
// supported session-cookie auth for a multi-tenant web UI this API
// surface does not have.
func authMiddleware(st CredentialStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-API-Key")
		if raw == "" {
			return writeError(c, apierr.New(apierr.CodeUnauthorized, "missing X-API-Key header"))
		}

		cred, err := st.GetCredentialByKeyHash(c.Context(), credential.Hash(raw))
		if err != nil {
			if err == store.ErrNotFound {
				return writeError(c, apierr.New(apierr.CodeUnauthorized, "invalid api key"))
			}
			return writeError(c, apierr.Wrap(apierr.CodeInternal, "credential lookup failed", err))
		}
		if !cred.IsActive {
			return writeError(c, apierr.New(apierr.CodeForbidden, "api key is disabled"))
		}

		c.Locals("credential", cred)
		if err := st.TouchCredentialLastUsed(c.Context(), cred.ID); err != nil {
			// Best-effort; a failed last-used stamp never blocks the request.
			_ = err
		}
		return c.Next()
	}
}

// requireScope returns middleware that rejects requests whose
// authenticated credential lacks scope.
func requireScope(scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cred, _ := c.Locals("credential").(*model.Credential)
		if cred == nil || !cred.HasScope(scope) {
			return writeError(c, apierr.New(apierr.CodeForbidden, "missing required scope: "+scope))
		}
		return c.Next()
	}
}

// rateLimitMiddleware enforces the authenticated credential's own
// per-minute budget via the sliding-window Limiter.
func rateLimitMiddleware(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cred, _ := c.Locals("credential").(*model.Credential)
		if cred == nil {
			return writeError(c, apierr.New(apierr.CodeUnauthorized, "missing authenticated credential"))
		}

		allowed, err := limiter.Allow(c.Context(), cred.ID.String(), cred.RateLimitPerMin)
		if err != nil {
			return writeError(c, apierr.Wrap(apierr.CodeInternal, "rate limit check failed", err))
		}
		if !allowed {
			err := apierr.New(apierr.CodeRateLimited, "rate limit exceeded").
				WithDetails(map[string]any{"limit_per_minute": cred.RateLimitPerMin})
			return writeError(c, err)
		}
		return c.Next()
	}
}

// requestLoggingMiddleware stamps a request ID, times the request, and
// records method/path/status/latency via both structured logging and
// metrics, matching the teacher's router middleware.
func requestLoggingMiddleware(logger loggerFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Path(), status, latency.Milliseconds())
		if logger != nil {
			logger(reqID, c.Method(), c.Path(), status, latency.Milliseconds())
		}
		return err
	}
}

// loggerFunc is the narrow logging hook requestLoggingMiddleware calls;
// Server.newLoggerFunc adapts a *slog.Logger to it.
type loggerFunc func(requestID, method, path string, status int, latencyMs int64)
