package ratelimit_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"klaro/internal/ratelimit"
)

func request(cookie string) *http.Request {
	req := httptest.NewRequest("POST", "/adapt", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.AddCookie(&http.Cookie{Name: ratelimit.VisitorCookie, Value: cookie})
	return req
}

func TestMiddleware(t *testing.T) {
	t.Run("Allows And Sets Headers", func(t *testing.T) {
		l := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), 2, time.Hour, false)
		called := false
		h := ratelimit.Middleware(l, func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusAccepted)
		})

		w := httptest.NewRecorder()
		h(w, request("tok"))

		assert.True(t, called)
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("Rejects With 429", func(t *testing.T) {
		l := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), 1, time.Hour, false)
		calls := 0
		h := ratelimit.Middleware(l, func(w http.ResponseWriter, r *http.Request) {
			calls++
		})

		w := httptest.NewRecorder()
		h(w, request("tok"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, calls)

		w2 := httptest.NewRecorder()
		h(w2, request("tok"))
		assert.Equal(t, http.StatusTooManyRequests, w2.Code)
		assert.Equal(t, 1, calls)
		assert.Equal(t, "0", w2.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w2.Header().Get("Retry-After"))

		var body map[string]interface{}
		assert.NoError(t, json.Unmarshal(w2.Body.Bytes(), &body))
		errObj := body["error"].(map[string]interface{})
		assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])
	})
}

func TestCheckHandler(t *testing.T) {
	l := ratelimit.NewLimiter(ratelimit.NewMemoryCounter(), 5, time.Hour, false)

	// Consume two admissions first.
	consume := ratelimit.Middleware(l, func(w http.ResponseWriter, r *http.Request) {})
	consume(httptest.NewRecorder(), request("tok"))
	consume(httptest.NewRecorder(), request("tok"))

	w := httptest.NewRecorder()
	ratelimit.CheckHandler(l)(w, request("tok"))

	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool `json:"success"`
		Limits  struct {
			Total     int    `json:"total"`
			Remaining int    `json:"remaining"`
			Used      int    `json:"used"`
			ResetAt   string `json:"resetAt"`
			ResetIn   int    `json:"resetIn"`
		} `json:"limits"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 5, body.Limits.Total)
	assert.Equal(t, 2, body.Limits.Used)
	assert.Equal(t, 3, body.Limits.Remaining)
	assert.Greater(t, body.Limits.ResetIn, 0)
	assert.NotEmpty(t, body.Limits.ResetAt)
}
