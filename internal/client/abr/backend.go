package abr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/pkg/circuitbreaker"
	"edgestream/pkg/retry"
	"edgestream/pkg/tracing"

	"go.uber.org/zap"
)

// Backend supplies server-side quality recommendations to the engine.
type Backend interface {
	Recommend(ctx context.Context, sessionID domain.SessionID) (domain.StreamingRecommendation, error)
}

// MasterPlaylist is a fetched master playlist with the headers the edge attached.
type MasterPlaylist struct {
	Body         string
	SessionID    domain.SessionID
	EdgeLocation string
	CacheStatus  string
}

// HTTPBackend talks to an edge server. Every call goes through a circuit breaker
// wrapping a retry loop, so a flapping server trips the breaker after a few failed rounds.
type HTTPBackend struct {
	baseURL   string
	userAgent string
	client    *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	retry     retry.Config
	logger    *zap.SugaredLogger
}

type HTTPBackendOption func(*HTTPBackend)

func WithRetryConfig(cfg retry.Config) HTTPBackendOption {
	return func(b *HTTPBackend) { b.retry = cfg }
}

func WithBreakerConfig(cfg circuitbreaker.Config) HTTPBackendOption {
	return func(b *HTTPBackend) { b.breaker = circuitbreaker.New("edge-backend", cfg) }
}

func WithUserAgent(ua string) HTTPBackendOption {
	return func(b *HTTPBackend) { b.userAgent = ua }
}

func NewHTTPBackend(baseURL string, timeout time.Duration, logger *zap.SugaredLogger, opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: circuitbreaker.New("edge-backend", circuitbreaker.DefaultConfig()),
		retry:   retry.DefaultConfig(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}

	b.breaker.OnStateChange(func(name string, from, to circuitbreaker.State) {
		b.logger.Warnw("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})
	return b
}

// BreakerState exposes the breaker for diagnostics.
func (b *HTTPBackend) BreakerState() circuitbreaker.State {
	return b.breaker.State()
}

// Recommend asks the edge for its bandwidth estimate of the session. Failures wrap
// domain.ErrBackendUnavailable.
func (b *HTTPBackend) Recommend(ctx context.Context, sessionID domain.SessionID) (domain.StreamingRecommendation, error) {
	headers := map[string]string{}
	if sessionID != "" {
		headers["X-Session-ID"] = string(sessionID)
	}

	var report domain.BandwidthReport
	if _, err := b.call(ctx, "bandwidth_estimate", http.MethodGet, "/bandwidth/estimate", headers, nil, &report); err != nil {
		return domain.StreamingRecommendation{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
	}

	return domain.StreamingRecommendation{
		RecommendedLevel:   report.RecommendedQuality,
		EstimatedBandwidth: report.EstimatedBandwidth,
		Confidence:         report.Confidence,
		Source:             domain.RecommendationSourceBackend,
	}, nil
}

// FetchMaster requests the master playlist for contentID.
func (b *HTTPBackend) FetchMaster(ctx context.Context, contentID string, sessionID domain.SessionID, deviceType domain.DeviceType) (*MasterPlaylist, error) {
	headers := map[string]string{}
	if sessionID != "" {
		headers["X-Session-ID"] = string(sessionID)
	}
	if deviceType != "" {
		headers["X-Device-Type"] = string(deviceType)
	}

	var body []byte
	h, err := b.call(ctx, "master_playlist", http.MethodGet, "/manifest/"+url.PathEscape(contentID)+"/master.m3u8", headers, nil, &body)
	if err != nil {
		return nil, err
	}
	return &MasterPlaylist{
		Body:         string(body),
		SessionID:    domain.SessionID(h.Get("X-Session-ID")),
		EdgeLocation: h.Get("X-Edge-Location"),
		CacheStatus:  h.Get("X-CDN-Cache"),
	}, nil
}

// ReportEvents posts a batch of playback events and returns the server's verdict.
func (b *HTTPBackend) ReportEvents(ctx context.Context, sessionID domain.SessionID, events []domain.AnalyticsEvent) (*domain.AnalyticsResult, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"sessionId": sessionID,
		"events":    events,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode events: %w", err)
	}

	var result domain.AnalyticsResult
	if _, err := b.call(ctx, "analytics_events", http.MethodPost, "/analytics/events", nil, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// call performs one logical request. out is either *[]byte for the raw body or a
// pointer to decode JSON into. 4xx responses are not retried.
func (b *HTTPBackend) call(
	ctx context.Context,
	operation, method, path string,
	headers map[string]string,
	body []byte,
	out interface{},
) (http.Header, error) {
	return circuitbreaker.Execute(b.breaker, func() (http.Header, error) {
		return retry.Do(ctx, b.retry, func(ctx context.Context) (http.Header, error) {
			return b.once(ctx, operation, method, path, headers, body, out)
		})
	})
}

func (b *HTTPBackend) once(
	ctx context.Context,
	operation, method, path string,
	headers map[string]string,
	body []byte,
	out interface{},
) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.userAgent != "" {
		req.Header.Set("User-Agent", b.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	ctx, span := tracing.TraceBackendCall(ctx, req, operation)
	defer span.End()
	req = req.WithContext(ctx)

	resp, err := b.client.Do(req)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		serr := &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(data))}
		tracing.RecordError(ctx, serr)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(serr)
		}
		return nil, serr
	}

	switch dst := out.(type) {
	case nil:
	case *[]byte:
		*dst = data
	default:
		if err := json.Unmarshal(data, dst); err != nil {
			return nil, retry.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
	}
	return resp.Header, nil
}
