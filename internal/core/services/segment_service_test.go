package services

import (
	"context"
	"net/http"
	"testing"

	"edgestream/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	const size = domain.SegmentSizeBytes

	tests := []struct {
		name    string
		header  string
		want    *domain.ByteRange
		wantErr error
	}{
		{"empty", "", nil, nil},
		{"closed", "bytes=0-999", &domain.ByteRange{Start: 0, End: 999}, nil},
		{"open ended", "bytes=1000-", &domain.ByteRange{Start: 1000, End: size - 1}, nil},
		{"suffix", "bytes=-500", &domain.ByteRange{Start: size - 500, End: size - 1}, nil},
		{"suffix longer than body", "bytes=-2000000", &domain.ByteRange{Start: 0, End: size - 1}, nil},
		{"end clamped", "bytes=1048000-2000000", &domain.ByteRange{Start: 1048000, End: size - 1}, nil},
		{"single byte", "bytes=5-5", &domain.ByteRange{Start: 5, End: 5}, nil},
		{"end overflows int", "bytes=0-99999999999999999999", &domain.ByteRange{Start: 0, End: size - 1}, nil},
		{"suffix overflows int", "bytes=-99999999999999999999", &domain.ByteRange{Start: 0, End: size - 1}, nil},
		{"start overflows int", "bytes=99999999999999999999-", nil, domain.ErrRangeNotSatisfiable},
		{"start at size", "bytes=1048576-", nil, domain.ErrRangeNotSatisfiable},
		{"start past size", "bytes=2000000-2000010", nil, domain.ErrRangeNotSatisfiable},
		{"reversed", "bytes=10-5", nil, domain.ErrInvalidRange},
		{"multi range", "bytes=0-1,5-6", nil, domain.ErrInvalidRange},
		{"wrong unit", "items=0-1", nil, domain.ErrInvalidRange},
		{"garbage", "bytes=abc", nil, domain.ErrInvalidRange},
		{"negative start", "bytes=-5-10", nil, domain.ErrInvalidRange},
		{"zero suffix", "bytes=-0", nil, domain.ErrInvalidRange},
		{"signed", "bytes=+1-2", nil, domain.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.header, size)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegmentService_FullBody(t *testing.T) {
	st := newTestStack(t)

	resp, err := st.segments.Serve(context.Background(), domain.SegmentRequest{ContentID: "movie", QualityID: 3, SegmentID: 7})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, resp.Body, domain.SegmentSizeBytes)
	assert.Equal(t, byte(7), resp.Body[0])
	assert.Equal(t, byte((1000+7)%256), resp.Body[1000])
	assert.Equal(t, "public, max-age=31536000, immutable", resp.Headers["Cache-Control"])
	assert.Equal(t, "bytes", resp.Headers["Accept-Ranges"])
	assert.Equal(t, "video/mp2t", resp.Headers["Content-Type"])
	assert.Equal(t, "us-east-1", resp.Headers["X-Edge-Location"])
	assert.Equal(t, "1048576", resp.Headers["Content-Length"])
	assert.NotContains(t, resp.Headers, "Content-Range")
}

func TestSegmentService_Range(t *testing.T) {
	st := newTestStack(t)

	resp, err := st.segments.Serve(context.Background(), domain.SegmentRequest{
		ContentID:   "movie",
		QualityID:   0,
		SegmentID:   1,
		RangeHeader: "bytes=0-999",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.Status)
	assert.Len(t, resp.Body, 1000)
	assert.Equal(t, "bytes 0-999/1048576", resp.Headers["Content-Range"])
	assert.Equal(t, "1000", resp.Headers["Content-Length"])
	assert.Equal(t, byte(1), resp.Body[0])
	assert.Equal(t, byte((999+1)%256), resp.Body[999])
}

func TestSegmentService_Errors(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()

	_, err := st.segments.Serve(ctx, domain.SegmentRequest{ContentID: "movie", QualityID: 9, SegmentID: 0})
	assert.ErrorIs(t, err, domain.ErrQualityNotFound)

	_, err = st.segments.Serve(ctx, domain.SegmentRequest{ContentID: "movie", QualityID: 0, SegmentID: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidSegmentID)

	_, err = st.segments.Serve(ctx, domain.SegmentRequest{ContentID: "movie", QualityID: 0, RangeHeader: "bytes=2000000-"})
	assert.ErrorIs(t, err, domain.ErrRangeNotSatisfiable)
}

func TestSegmentService_UsesSessionEdge(t *testing.T) {
	st := newTestStack(t)
	ctx := context.Background()
	require.NoError(t, st.sessions.Create(ctx, &domain.Session{ID: "s1", EdgeLocation: "ap-southeast-1"}))

	resp, err := st.segments.Serve(ctx, domain.SegmentRequest{ContentID: "movie", QualityID: 0, SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "ap-southeast-1", resp.Headers["X-Edge-Location"])
}
