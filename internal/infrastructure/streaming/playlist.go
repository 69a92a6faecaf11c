package streaming

import (
	"fmt"
	"time"

	"edgestream/internal/core/domain"
	"edgestream/pkg/optimize"
)

const (
	hlsVersion        = 6
	audioGroupID      = "audio"
	edgeSessionDataID = "com.edgestream.edge-location"
)

// A 4K VOD media playlist is about 9 KiB; larger buffers are not kept.
var playlistBuffers = optimize.NewBufferPool(4<<10, 64<<10)

// AudioRendition is an alternate audio track advertised in the master playlist.
// Renditions have no URI, so audio is carried in the video variants.
type AudioRendition struct {
	Name     string
	Language string
	Default  bool
}

var DefaultAudioRenditions = []AudioRendition{
	{Name: "English", Language: "en", Default: true},
	{Name: "Spanish", Language: "es"},
}

// Segment is one entry of a media playlist.
type Segment struct {
	Index    int
	Duration time.Duration
	URI      string
}

// Packager renders HLS playlists for synthetic content.
type Packager struct {
	segmentDuration time.Duration
	vodSegments     int
	liveWindow      int
	audio           []AudioRendition
}

func NewPackager() *Packager {
	return &Packager{
		segmentDuration: domain.SegmentDurationSeconds * time.Second,
		vodSegments:     domain.VODSegmentCount,
		liveWindow:      domain.LiveWindowSegments,
		audio:           DefaultAudioRenditions,
	}
}

// VariantURI is the master-relative URI of a quality's media playlist.
func VariantURI(qualityID int) string {
	return fmt.Sprintf("video/%d/index.m3u8", qualityID)
}

// SegmentURI is the absolute path a player fetches a segment from.
func SegmentURI(contentID string, qualityID, index int) string {
	return fmt.Sprintf("/segment/%s/%d/%d.ts", contentID, qualityID, index)
}

// Master renders the master playlist. levels must already be filtered and in ascending order.
func (p *Packager) Master(edgeLocation string, levels domain.Ladder) string {
	b := playlistBuffers.Get()
	defer playlistBuffers.Put(b)

	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(b, "#EXT-X-VERSION:%d\n", hlsVersion)
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")
	fmt.Fprintf(b, "#EXT-X-SESSION-DATA:DATA-ID=%q,VALUE=%q\n", edgeSessionDataID, edgeLocation)

	for _, a := range p.audio {
		fmt.Fprintf(b, "#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=%q,NAME=%q,LANGUAGE=%q,DEFAULT=%s,AUTOSELECT=YES\n",
			audioGroupID, a.Name, a.Language, yesNo(a.Default))
	}

	for _, q := range levels {
		b.WriteString("\n")
		fmt.Fprintf(b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s,FRAME-RATE=%d.000,CODECS=\"%s,%s\",AUDIO=%q\n",
			q.BitrateBps, q.Resolution, q.FPS, q.Codec, domain.AudioCodec, audioGroupID)
		b.WriteString(VariantURI(q.ID))
		b.WriteString("\n")
	}

	return b.String()
}

// Segments lists the segments of a variant. VOD playlists are complete; live ones
// expose a fixed sliding window starting at sequence 0.
func (p *Packager) Segments(contentID string, qualityID int, live bool) []Segment {
	count := p.vodSegments
	if live {
		count = p.liveWindow
	}

	segments := make([]Segment, count)
	for i := range segments {
		segments[i] = Segment{
			Index:    i,
			Duration: p.segmentDuration,
			URI:      SegmentURI(contentID, qualityID, i),
		}
	}
	return segments
}

// Media renders a variant playlist.
func (p *Packager) Media(contentID string, qualityID int, live bool) string {
	b := playlistBuffers.Get()
	defer playlistBuffers.Put(b)

	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(b, "#EXT-X-VERSION:%d\n", hlsVersion)
	fmt.Fprintf(b, "#EXT-X-TARGETDURATION:%d\n", int(p.segmentDuration.Seconds()))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	if !live {
		b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	}
	b.WriteString("#EXT-X-INDEPENDENT-SEGMENTS\n")

	for _, seg := range p.Segments(contentID, qualityID, live) {
		fmt.Fprintf(b, "#EXTINF:%.3f,\n", seg.Duration.Seconds())
		b.WriteString(seg.URI)
		b.WriteString("\n")
	}

	if !live {
		b.WriteString("#EXT-X-ENDLIST\n")
	}

	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "YES"
	}
	return "NO"
}
