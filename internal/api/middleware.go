package api

import (
	"context"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v5"
	"github.com/didip/tollbooth/v5/limiter"

	"github.com/F3-Nation/f3-nation-auth/internal/api/apierrors"
	"github.com/F3-Nation/f3-nation-auth/internal/models"
	"github.com/F3-Nation/f3-nation-auth/internal/observability"
	"github.com/F3-Nation/f3-nation-auth/internal/utilities"
)

// limitHandler rate limits requests by the configured header, falling back
// to the client IP when no header is configured.
func (a *API) limitHandler(lmt *limiter.Limiter) middlewareHandler {
	return func(w http.ResponseWriter, req *http.Request) (context.Context, error) {
		c := req.Context()

		key := ""
		if limitHeader := a.config.RateLimitHeader; limitHeader != "" {
			key = req.Header.Get(limitHeader)
			if key == "" {
				log := observability.GetLogEntry(req)
				log.WithField("header", limitHeader).Warn("request does not have a value for the rate limiting header, falling back to the client IP")
			}
		}
		if key == "" {
			key = utilities.GetIPAddress(req)
		}

		if err := tollbooth.LimitByKeys(lmt, []string{key}); err != nil {
			return c, tooManyRequestsError(apierrors.ErrorCodeOverRequestRateLimit, "Request rate limit reached")
		}
		return c, nil
	}
}

// databaseCleanup removes expired rows after mutating requests so the system
// works without a background scheduler.
func (a *API) databaseCleanup(cleanup *models.Cleanup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)

			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				// continue

			default:
				return
			}

			db := a.db.WithContext(r.Context())
			log := observability.GetLogEntry(r)

			affectedRows, err := cleanup.Clean(db)
			if err != nil {
				log.WithError(err).WithField("affected_rows", affectedRows).Warn("database cleanup failed")
			} else if affectedRows > 0 {
				log.WithField("affected_rows", affectedRows).Debug("cleaned up expired or stale rows")
			}
		})
	}
}

func timeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
