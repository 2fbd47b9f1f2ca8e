package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/logistics-auth/pkg/httputil"
)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

// --- ContentTypeJSON Middleware Tests ---

func TestContentTypeJSON_PostWithValidJSON_Passes(t *testing.T) {
	called := false
	handler := ContentTypeJSON(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/test", strings.NewReader(`{"key":"value"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}

func TestContentTypeJSON_PostWithWrongContentType_Returns415(t *testing.T) {
	called := false
	handler := ContentTypeJSON(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/test", strings.NewReader(`identifier=admin`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	assert.False(t, called)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", resp.Error.Code)
}

func TestContentTypeJSON_BodylessPost_Passes(t *testing.T) {
	called := false
	handler := ContentTypeJSON(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}

// --- LoginThrottle Middleware Tests ---

type stubLimiter struct {
	allowed    bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.retryAfter, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoginThrottle_Allowed(t *testing.T) {
	limiter := &stubLimiter{allowed: true}
	called := false
	handler := LoginThrottle(limiter, discardLogger())(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
	assert.Equal(t, []string{"203.0.113.7"}, limiter.keys)
}

func TestLoginThrottle_Denied(t *testing.T) {
	limiter := &stubLimiter{allowed: false, retryAfter: 42 * time.Second}
	called := false
	handler := LoginThrottle(limiter, discardLogger())(okHandler(&called))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.False(t, called)
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))

	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TOO_MANY_ATTEMPTS", resp.Error.Code)
	assert.EqualValues(t, 42, resp.Error.Details["retry_after_seconds"])
}

func TestLoginThrottle_LimiterErrorFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("dial tcp: connection refused")}
	called := false
	handler := LoginThrottle(limiter, discardLogger())(okHandler(&called))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}
