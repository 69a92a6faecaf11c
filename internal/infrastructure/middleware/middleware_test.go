package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/services"
	apperrors "edgestream/pkg/errors"
	"edgestream/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type mockAuth struct {
	mock.Mock
}

func (m *mockAuth) ValidatePlayback(ctx context.Context, req domain.PlaybackRequest) (*domain.PlaybackGrant, error) {
	args := m.Called(ctx, req)
	grant, _ := args.Get(0).(*domain.PlaybackGrant)
	return grant, args.Error(1)
}

func (m *mockAuth) VerifySessionToken(token string) (*domain.PlaybackClaims, error) {
	args := m.Called(token)
	claims, _ := args.Get(0).(*domain.PlaybackClaims)
	return claims, args.Error(1)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandlerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t).Sugar()

	router := gin.New()
	router.Use(ErrorHandlerMiddleware(log))
	router.GET("/range", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("serve: %w", apperrors.NewRangeNotSatisfiableError(1048576)))
	})
	router.GET("/plain", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("boom"))
	})
	router.GET("/written", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
		_ = c.Error(fmt.Errorf("late"))
	})

	t.Run("app error keeps status and headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/range", nil))

		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
		assert.Equal(t, "bytes */1048576", w.Header().Get("Content-Range"))
		assert.Equal(t, "RANGE_NOT_SATISFIABLE", decodeBody(t, w)["error"])
	})

	t.Run("plain error becomes 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plain", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "INTERNAL_ERROR", decodeBody(t, w)["error"])
	})

	t.Run("written response is left alone", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", w.Body.String())
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/panic", func(c *gin.Context) {
		panic("kaboom")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeBody(t, w)["error"])
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/", func(c *gin.Context) {
		seen = logger.RequestID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, seen)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", seen)
}

func TestAccessLogMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.Use(AccessLogMiddleware(logger.NewContextLogger(zap.New(core))))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/fail", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("store down"))
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	req.Header.Set("X-Session-ID", "sess-7")
	router.ServeHTTP(httptest.NewRecorder(), req)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fail", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	ok := entries[0].ContextMap()
	assert.Equal(t, "http_request", entries[0].Message)
	assert.Equal(t, "req-7", ok["request_id"])
	assert.Equal(t, "sess-7", ok["session_id"])
	assert.Equal(t, int64(http.StatusOK), ok["status_code"])

	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "store down", entries[1].ContextMap()["error"])
	_, tagged := entries[1].ContextMap()["session_id"]
	assert.False(t, tagged)
}

func TestSessionTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := &mockAuth{}
	claims := &domain.PlaybackClaims{ContentID: "movie", DeviceID: "tv", ExpiresAt: time.Now().Add(time.Hour)}
	auth.On("VerifySessionToken", "good").Return(claims, nil)
	auth.On("VerifySessionToken", "old").Return(nil, services.ErrExpiredToken)
	auth.On("VerifySessionToken", "bad").Return(nil, domain.ErrInvalidToken)

	router := gin.New()
	router.GET("/segment/:contentId/:qualityId/:segment", SessionTokenMiddleware(auth), func(c *gin.Context) {
		got, ok := PlaybackClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, got.DeviceID)
	})

	tests := []struct {
		name     string
		path     string
		header   string
		want     int
		wantBody string
	}{
		{"bearer header", "/segment/movie/3/1.ts", "Bearer good", http.StatusOK, "tv"},
		{"query token", "/segment/movie/3/1.ts?token=good", "", http.StatusOK, "tv"},
		{"missing", "/segment/movie/3/1.ts", "", http.StatusForbidden, ""},
		{"wrong scheme", "/segment/movie/3/1.ts", "Basic good", http.StatusForbidden, ""},
		{"expired", "/segment/movie/3/1.ts", "Bearer old", http.StatusForbidden, ""},
		{"invalid", "/segment/movie/3/1.ts", "Bearer bad", http.StatusForbidden, ""},
		{"other content", "/segment/series/3/1.ts", "Bearer good", http.StatusForbidden, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestOptionalSessionTokenMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := &mockAuth{}
	auth.On("VerifySessionToken", "bad").Return(nil, domain.ErrInvalidToken)

	router := gin.New()
	router.GET("/", OptionalSessionTokenMiddleware(auth), func(c *gin.Context) {
		_, ok := PlaybackClaims(c)
		c.JSON(http.StatusOK, gin.H{"authenticated": ok})
	})

	for _, header := range []string{"", "Bearer bad"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, false, decodeBody(t, w)["authenticated"])
	}
}

type recordingObserver struct {
	routes []string
	status []int
}

func (o *recordingObserver) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	o.routes = append(o.routes, method+" "+route)
	o.status = append(o.status, status)
}

func TestTracingMiddleware_ObservesRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &recordingObserver{}

	router := gin.New()
	router.Use(TracingMiddleware(obs))
	router.GET("/manifest/:contentId/master.m3u8", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/manifest/abc/master.m3u8", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, []string{"GET /manifest/:contentId/master.m3u8", "GET unmatched"}, obs.routes)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, obs.status)
}
