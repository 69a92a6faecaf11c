package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/platform"
	"edgestream/internal/core/services"
	"edgestream/internal/infrastructure/distributed"
	"edgestream/internal/infrastructure/loadbalancer"
	"edgestream/internal/infrastructure/monitoring"
	"edgestream/internal/infrastructure/repositories/memory"
	"edgestream/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	router *gin.Engine
	auth   *services.AuthService
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}

	zl := zaptest.NewLogger(t)
	log := zl.Sugar()
	reg := prometheus.NewRegistry()
	collector := monitoring.NewPrometheusCollector(reg)

	edges, err := loadbalancer.NewEdgeSelector(loadbalancer.StrategyConsistent, []string{"us-east-1"})
	require.NoError(t, err)

	ladder := domain.DefaultLadder
	analyticsRepo := memory.NewMemoryAnalyticsRepository(cfg.Analytics.MaxEventsPerSession)
	sessions := services.NewSessionService(memory.NewMemorySessionRepository(), services.SessionConfig{}, collector, log)
	bandwidth := services.NewBandwidthService(memory.NewMemoryBandwidthRepository(), ladder, collector, log)
	qoe := services.NewQoEService(sessions, analyticsRepo, ladder, log)
	publisher := distributed.NopPublisher{}
	manifests := services.NewManifestService(ladder, platform.NewRegistry(), sessions, bandwidth, edges, publisher, time.Minute, collector, log)
	t.Cleanup(manifests.Stop)
	auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.CDNSigningKey, cfg.Auth.SessionTokenTTL, ladder, log)

	router := NewRouter(cfg, Services{
		Manifests: manifests,
		Segments:  services.NewSegmentService(ladder, sessions, edges, cfg.CDN.SegmentCacheSecs, collector, log),
		Analytics: services.NewAnalyticsService(analyticsRepo, sessions, bandwidth, qoe, publisher, cfg.Analytics.MaxEventsPerRequest, collector, log),
		Bandwidth: bandwidth,
		Auth:      auth,
		Sessions:  sessions,
		Edges:     edges,
		Health:    monitoring.NewHealthChecker(),
		Collector: collector,
		Gatherer:  reg,
	}, zl)

	return &testServer{router: router, auth: auth}
}

func (s *testServer) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestMasterManifest(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(http.MethodGet, "/manifest/movie/master.m3u8", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "application/vnd.apple.mpegurl", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "MISS", w.Header().Get(HeaderCDNCache))
	assert.Equal(t, "us-east-1", w.Header().Get(HeaderEdgeLocation))
	sessionID := w.Header().Get(HeaderSessionID)
	assert.Len(t, sessionID, 36)

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U"))
	// default 5 Mbps estimate admits everything up to 7.5 Mbps
	assert.Equal(t, 7, strings.Count(body, "#EXT-X-STREAM-INF"))

	again := srv.do(http.MethodGet, "/manifest/movie/master.m3u8", nil, map[string]string{HeaderSessionID: sessionID})
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "HIT", again.Header().Get(HeaderCDNCache))
	assert.Equal(t, sessionID, again.Header().Get(HeaderSessionID))
}

func TestMasterManifest_Filtering(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"mobile at 1 Mbps", map[string]string{HeaderDeviceType: "mobile", HeaderBandwidthEstimate: "1000000"}, 4},
		{"mobile at 20 Mbps", map[string]string{HeaderDeviceType: "mobile", HeaderBandwidthEstimate: "20000000"}, 6},
		{"smarttv at 20 Mbps", map[string]string{HeaderDeviceType: "smarttv", HeaderBandwidthEstimate: "20000000"}, 8},
		{"roku user agent", map[string]string{"User-Agent": "Roku/DVP-9.10", HeaderBandwidthEstimate: "20000000"}, 7},
		{"explicit platform", map[string]string{HeaderPlatform: "roku", HeaderBandwidthEstimate: "20000000"}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodGet, "/manifest/movie/master.m3u8", nil, tt.headers)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			if got := strings.Count(w.Body.String(), "#EXT-X-STREAM-INF"); got != tt.want {
				t.Errorf("variants = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMasterManifest_Rejections(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name    string
		path    string
		headers map[string]string
	}{
		{"non-numeric bandwidth", "/manifest/movie/master.m3u8", map[string]string{HeaderBandwidthEstimate: "fast"}},
		{"negative bandwidth", "/manifest/movie/master.m3u8", map[string]string{HeaderBandwidthEstimate: "-5"}},
		{"bad session id", "/manifest/movie/master.m3u8", map[string]string{HeaderSessionID: "a b"}},
		{"bad content id", "/manifest/mo%20vie/master.m3u8", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodGet, tt.path, nil, tt.headers)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "VALIDATION_ERROR", jsonBody(t, w)["error"])
		})
	}
}

func TestVariantManifest(t *testing.T) {
	srv := newTestServer(t, nil)

	vod := srv.do(http.MethodGet, "/manifest/movie/video/3/index.m3u8", nil, nil)
	require.Equal(t, http.StatusOK, vod.Code)
	assert.Equal(t, 100, strings.Count(vod.Body.String(), "#EXTINF"))
	assert.Contains(t, vod.Body.String(), "#EXT-X-ENDLIST")

	live := srv.do(http.MethodGet, "/manifest/movie/video/3/index.m3u8?live=true", nil, nil)
	require.Equal(t, http.StatusOK, live.Code)
	assert.Equal(t, 10, strings.Count(live.Body.String(), "#EXTINF"))
	assert.Contains(t, live.Body.String(), "#EXT-X-MEDIA-SEQUENCE:0")
	assert.NotContains(t, live.Body.String(), "#EXT-X-ENDLIST")
	assert.Equal(t, "no-cache", live.Header().Get("Cache-Control"))

	assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/manifest/movie/video/99/index.m3u8", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodGet, "/manifest/movie/video/x/index.m3u8", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodGet, "/manifest/movie/video/3/index.m3u8?live=maybe", nil, nil).Code)
}

func TestSegment(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("full body", func(t *testing.T) {
		w := srv.do(http.MethodGet, "/segment/movie/3/5.ts", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.SegmentSizeBytes, w.Body.Len())
		assert.Equal(t, byte(5), w.Body.Bytes()[0])
		assert.Equal(t, byte(4), w.Body.Bytes()[255])
		assert.Equal(t, "video/mp2t", w.Header().Get("Content-Type"))
		assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
		assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
		assert.Equal(t, "us-east-1", w.Header().Get(HeaderEdgeLocation))
	})

	t.Run("byte range", func(t *testing.T) {
		w := srv.do(http.MethodGet, "/segment/movie/3/0.ts", nil, map[string]string{"Range": "bytes=0-999"})
		require.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, "bytes 0-999/1048576", w.Header().Get("Content-Range"))
		assert.Equal(t, "1000", w.Header().Get("Content-Length"))
		assert.Equal(t, 1000, w.Body.Len())
	})

	t.Run("open ended range", func(t *testing.T) {
		w := srv.do(http.MethodGet, "/segment/movie/3/0.ts", nil, map[string]string{"Range": "bytes=1048000-"})
		require.Equal(t, http.StatusPartialContent, w.Code)
		assert.Equal(t, "bytes 1048000-1048575/1048576", w.Header().Get("Content-Range"))
		assert.Equal(t, 576, w.Body.Len())
	})

	t.Run("malformed range", func(t *testing.T) {
		w := srv.do(http.MethodGet, "/segment/movie/3/0.ts", nil, map[string]string{"Range": "bytes=abc-def"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unsatisfiable range", func(t *testing.T) {
		w := srv.do(http.MethodGet, "/segment/movie/3/0.ts", nil, map[string]string{"Range": "bytes=2000000-"})
		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, w.Code)
		assert.Equal(t, "bytes */1048576", w.Header().Get("Content-Range"))
	})

	t.Run("unknown quality", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, srv.do(http.MethodGet, "/segment/movie/42/0.ts", nil, nil).Code)
	})

	t.Run("bad segment id", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodGet, "/segment/movie/3/first.ts", nil, nil).Code)
		assert.Equal(t, http.StatusBadRequest, srv.do(http.MethodGet, "/segment/movie/3/-1.ts", nil, nil).Code)
	})
}

func TestSegment_RequiresSessionToken(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Auth.RequireSegmentToken = true
	})

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodGet, "/segment/movie/3/0.ts", nil, nil).Code)

	grant := srv.do(http.MethodPost, "/auth/validate", []byte(`{"token":"abcdefghijkl","contentId":"movie","deviceId":"tv-1"}`), nil)
	require.Equal(t, http.StatusOK, grant.Code)
	token, _ := jsonBody(t, grant)["sessionToken"].(string)
	require.NotEmpty(t, token)

	w := srv.do(http.MethodGet, "/segment/movie/3/0.ts", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	other := srv.do(http.MethodGet, "/segment/series/3/0.ts", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, other.Code)
}

func TestAuthValidate(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("valid token", func(t *testing.T) {
		w := srv.do(http.MethodPost, "/auth/validate", []byte(`{"token":"0123456789","contentId":"movie","deviceId":"tv-1"}`), nil)
		require.Equal(t, http.StatusOK, w.Code)

		body := jsonBody(t, w)
		assert.Equal(t, true, body["valid"])
		assert.NotEmpty(t, body["sessionToken"])
		assert.NotEmpty(t, body["cdnToken"])
		assert.Len(t, body["allowedQualities"], len(domain.DefaultLadder))

		expiresAt, err := time.Parse(time.RFC3339, body["expiresAt"].(string))
		require.NoError(t, err)
		assert.True(t, expiresAt.After(time.Now()))
	})

	for _, token := range []string{"", "short", "123456789"} {
		t.Run("rejects "+token, func(t *testing.T) {
			payload, _ := json.Marshal(map[string]string{"token": token, "contentId": "movie", "deviceId": "tv-1"})
			w := srv.do(http.MethodPost, "/auth/validate", payload, nil)
			require.Equal(t, http.StatusForbidden, w.Code)

			body := jsonBody(t, w)
			assert.Equal(t, false, body["valid"])
			assert.Equal(t, "Invalid token", body["error"])
		})
	}

	t.Run("missing content id", func(t *testing.T) {
		w := srv.do(http.MethodPost, "/auth/validate", []byte(`{"token":"0123456789","deviceId":"tv-1"}`), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := srv.do(http.MethodPost, "/auth/validate", []byte(`{"token":`), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAnalyticsEvents(t *testing.T) {
	srv := newTestServer(t, nil)

	master := srv.do(http.MethodGet, "/manifest/movie/master.m3u8", nil, nil)
	require.Equal(t, http.StatusOK, master.Code)
	sessionID := master.Header().Get(HeaderSessionID)

	t.Run("missing events", func(t *testing.T) {
		w := srv.do(http.MethodPost, "/analytics/events", []byte(`{}`), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", jsonBody(t, w)["error"])
	})

	t.Run("batch", func(t *testing.T) {
		payload := []byte(`{"events":[
			{"type":"rebuffer","sessionId":"` + sessionID + `"},
			{"type":"bandwidth","sessionId":"` + sessionID + `","data":{"bandwidth":2000000}}
		]}`)
		w := srv.do(http.MethodPost, "/analytics/events", payload, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		body := jsonBody(t, w)
		assert.Equal(t, float64(2), body["received"])
		score, ok := body["qoeScore"].(float64)
		require.True(t, ok)
		assert.InDelta(t, 4.5, score, 0.5)
		assert.NotNil(t, body["recommendations"])
	})

	t.Run("bandwidth sample reaches the estimate", func(t *testing.T) {
		w := srv.do(http.MethodGet, "/bandwidth/estimate", nil, map[string]string{HeaderSessionID: sessionID})
		require.Equal(t, http.StatusOK, w.Code)
		body := jsonBody(t, w)
		assert.Equal(t, float64(2_000_000), body["estimatedBandwidth"])
		assert.Equal(t, float64(1), body["samples"])
	})
}

func TestBandwidthEstimate_Default(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(http.MethodGet, "/bandwidth/estimate", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := jsonBody(t, w)
	assert.Equal(t, float64(domain.DefaultBandwidthBps), body["estimatedBandwidth"])
	// 70% of 5 Mbps is 3.5 Mbps, which admits the 3 Mbps level
	assert.Equal(t, float64(5), body["recommendedQuality"])
	assert.Equal(t, 0.5, body["confidence"])
	assert.Len(t, body["availableQualities"], len(domain.DefaultLadder))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(http.MethodGet, "/manifest/movie/master.m3u8", nil, nil)

	health := srv.do(http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, health.Code)
	body := jsonBody(t, health)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(1), body["activeSessions"])
	assert.Len(t, body["edgeLocations"], 1)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/ready", nil, nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/edges", nil, nil).Code)

	metrics := srv.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), "edgestream_manifests_served_total")
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, nil)
	w := srv.do(http.MethodGet, "/health", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}
