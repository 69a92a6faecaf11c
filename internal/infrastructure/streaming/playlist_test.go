package streaming

import (
	"bytes"
	"strings"
	"testing"

	"edgestream/internal/core/domain"

	"github.com/grafov/m3u8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackager_MasterParses(t *testing.T) {
	p := NewPackager()
	levels := domain.DefaultLadder[:4]

	out := p.Master("eu-west-1", levels)

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(out), false)
	require.NoError(t, err)
	require.Equal(t, m3u8.MASTER, listType)

	master := playlist.(*m3u8.MasterPlaylist)
	require.Len(t, master.Variants, 4)
	for i, v := range master.Variants {
		assert.Equal(t, uint32(levels[i].BitrateBps), v.Bandwidth)
		assert.Equal(t, levels[i].Resolution, v.Resolution)
		assert.Equal(t, VariantURI(levels[i].ID), v.URI)
		assert.Equal(t, "audio", v.Audio)
	}

	assert.Contains(t, out, `#EXT-X-SESSION-DATA:DATA-ID="com.edgestream.edge-location",VALUE="eu-west-1"`)
	assert.Contains(t, out, `#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="audio",NAME="English",LANGUAGE="en",DEFAULT=YES`)
}

func TestPackager_MasterWithNoLevels(t *testing.T) {
	out := NewPackager().Master("us-east-1", nil)

	assert.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	assert.NotContains(t, out, "#EXT-X-STREAM-INF")
}

func TestPackager_MediaVOD(t *testing.T) {
	out := NewPackager().Media("movie-1", 3, false)

	playlist, listType, err := m3u8.DecodeFrom(strings.NewReader(out), false)
	require.NoError(t, err)
	require.Equal(t, m3u8.MEDIA, listType)

	media := playlist.(*m3u8.MediaPlaylist)
	assert.Equal(t, 6.0, media.TargetDuration)
	assert.True(t, media.Closed, "VOD playlist must end with ENDLIST")
	assert.Equal(t, m3u8.VOD, media.MediaType)

	var segments []*m3u8.MediaSegment
	for _, s := range media.Segments {
		if s != nil {
			segments = append(segments, s)
		}
	}
	require.Len(t, segments, domain.VODSegmentCount)
	assert.Equal(t, "/segment/movie-1/3/0.ts", segments[0].URI)
	assert.Equal(t, "/segment/movie-1/3/99.ts", segments[99].URI)
	assert.Equal(t, 6.0, segments[0].Duration)
}

func TestPackager_MediaLive(t *testing.T) {
	out := NewPackager().Media("channel-7", 0, true)

	assert.Contains(t, out, "#EXT-X-MEDIA-SEQUENCE:0\n")
	assert.NotContains(t, out, "#EXT-X-ENDLIST")
	assert.NotContains(t, out, "#EXT-X-PLAYLIST-TYPE")
	assert.Equal(t, domain.LiveWindowSegments, strings.Count(out, "#EXTINF:6.000,"))
}

func TestSegmentPayload(t *testing.T) {
	tests := []struct {
		segmentID int
	}{
		{0}, {1}, {255}, {256}, {1000},
	}

	for _, tt := range tests {
		body := SegmentPayload(tt.segmentID)
		if len(body) != domain.SegmentSizeBytes {
			t.Fatalf("segment %d: len = %d, want %d", tt.segmentID, len(body), domain.SegmentSizeBytes)
		}
		for _, i := range []int{0, 1, 255, 256, 4097, domain.SegmentSizeBytes - 1} {
			want := byte((i + tt.segmentID) % 256)
			if body[i] != want {
				t.Errorf("segment %d byte %d = %d, want %d", tt.segmentID, i, body[i], want)
			}
		}
	}

	assert.True(t, bytes.Equal(SegmentPayload(3), SegmentPayload(259)))
}
