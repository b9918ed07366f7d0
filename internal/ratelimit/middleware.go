package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"klaro/internal/middleware"
)

// Middleware gates a handler behind the limiter. Every response carries the
// X-RateLimit-* headers; a rejected request gets 429 with Retry-After and a
// JSON error envelope.
func Middleware(l *Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := Identity(w, r)

		res := l.Admit(ctx, identity)
		setHeaders(w, res)

		if !res.Allowed {
			slog.InfoContext(ctx, "request rate limited", "used", res.Used, "limit", res.Limit)

			retryAfter := int(res.ResetIn(time.Now()).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)

			resp := map[string]interface{}{
				"error": map[string]string{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests, try again later",
				},
				"correlationId": middleware.GetCorrelationID(ctx),
			}
			if err := json.NewEncoder(w).Encode(resp); err != nil {
				slog.ErrorContext(ctx, "failed to encode rate limit response", "error", err)
			}
			return
		}

		next(w, r)
	}
}

// CheckHandler reports the caller's current allowance without consuming one.
func CheckHandler(l *Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity := Identity(w, r)

		res, err := l.Status(ctx, identity)
		if err != nil {
			slog.ErrorContext(ctx, "failed to read rate limit status", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false})
			return
		}

		setHeaders(w, res)
		w.Header().Set("Content-Type", "application/json")
		resp := map[string]interface{}{
			"success": true,
			"limits": map[string]interface{}{
				"total":     res.Limit,
				"remaining": res.Remaining,
				"used":      res.Used,
				"resetAt":   res.ResetAt.UTC().Format(time.RFC3339),
				"resetIn":   int(res.ResetIn(time.Now()).Seconds()),
			},
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.ErrorContext(ctx, "failed to encode limits response", "error", err)
		}
	}
}

func setHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
