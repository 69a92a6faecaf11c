package services

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"edgestream/internal/core/domain"
	"edgestream/internal/core/ports"
	"edgestream/internal/infrastructure/streaming"
	"edgestream/pkg/tracing"

	"go.uber.org/zap"
)

type SegmentService struct {
	ladder       domain.Ladder
	sessions     ports.SessionService
	edges        ports.EdgeSelector
	cacheControl string
	metrics      Metrics
	logger       *zap.SugaredLogger
}

func NewSegmentService(
	ladder domain.Ladder,
	sessions ports.SessionService,
	edges ports.EdgeSelector,
	cacheMaxAge int,
	metrics Metrics,
	logger *zap.SugaredLogger,
) *SegmentService {
	return &SegmentService{
		ladder:       ladder,
		sessions:     sessions,
		edges:        edges,
		cacheControl: fmt.Sprintf("public, max-age=%d, immutable", cacheMaxAge),
		metrics:      metricsOrNop(metrics),
		logger:       logger,
	}
}

// Serve renders a synthetic segment, honoring a single byte range.
func (s *SegmentService) Serve(ctx context.Context, req domain.SegmentRequest) (*domain.SegmentResponse, error) {
	if req.SegmentID < 0 {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidSegmentID, req.SegmentID)
	}
	if _, err := s.ladder.Level(req.QualityID); err != nil {
		return nil, err
	}

	rng, err := ParseRange(req.RangeHeader, domain.SegmentSizeBytes)
	if err != nil {
		return nil, err
	}

	body := streaming.SegmentPayload(req.SegmentID)
	edge := s.edgeFor(ctx, req)
	tracing.AddSpanAttributes(ctx,
		tracing.ContentIDKey.String(req.ContentID),
		tracing.QualityIDKey.Int(req.QualityID),
		tracing.SegmentIDKey.Int(req.SegmentID),
		tracing.EdgeLocationKey.String(edge),
	)

	headers := map[string]string{
		"Content-Type":    "video/mp2t",
		"Cache-Control":   s.cacheControl,
		"Accept-Ranges":   "bytes",
		"ETag":            fmt.Sprintf(`"%s-%d-%d"`, req.ContentID, req.QualityID, req.SegmentID),
		"X-Edge-Location": edge,
	}

	status := http.StatusOK
	if rng != nil {
		status = http.StatusPartialContent
		body = body[rng.Start : rng.End+1]
		headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, domain.SegmentSizeBytes)
	}
	headers["Content-Length"] = strconv.Itoa(len(body))

	s.metrics.RecordSegment(status, len(body))

	return &domain.SegmentResponse{
		Status:  status,
		Headers: headers,
		Body:    body,
		Range:   rng,
	}, nil
}

// edgeFor reports the session's assigned edge when the session is known.
func (s *SegmentService) edgeFor(ctx context.Context, req domain.SegmentRequest) string {
	if req.SessionID != "" {
		if sess, err := s.sessions.Get(ctx, req.SessionID); err == nil && sess.EdgeLocation != "" {
			return sess.EdgeLocation
		}
		return s.edges.Select(req.SessionID)
	}
	return s.edges.Select(domain.SessionID(req.ContentID))
}
