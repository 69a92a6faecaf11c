package domain

const (
	SegmentDurationSeconds = 6
	VODSegmentCount        = 100
	LiveWindowSegments     = 10
	SegmentSizeBytes       = 1_048_576
)

type MasterRequest struct {
	ContentID  string
	DeviceType DeviceType
	// BandwidthBps is nil when the client sent no estimate.
	BandwidthBps *float64
	SessionID    SessionID
	PlatformID   string
}

type MasterManifest struct {
	Playlist     string
	EdgeLocation string
	SessionID    SessionID
	CacheHit     bool
	Qualities    Ladder
}

type SegmentRequest struct {
	ContentID   string
	QualityID   int
	SegmentID   int
	RangeHeader string
	SessionID   SessionID
}

// SegmentResponse is a rendered segment. Body may alias a shared read-only buffer.
type SegmentResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Range   *ByteRange
}

// ByteRange is an inclusive byte interval.
type ByteRange struct {
	Start int
	End   int
}

func (r ByteRange) Length() int {
	return r.End - r.Start + 1
}
