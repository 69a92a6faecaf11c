package streaming

import "edgestream/internal/core/domain"

// pattern holds the byte sequence 0..255 repeated, long enough that any
// segment's payload is a contiguous window of it.
var pattern = func() []byte {
	buf := make([]byte, domain.SegmentSizeBytes+256)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}()

// SegmentPayload returns the synthetic body of a segment: byte i is (i+segmentID) mod 256.
// The returned slice is shared and must not be modified.
func SegmentPayload(segmentID int) []byte {
	offset := segmentID % 256
	return pattern[offset : offset+domain.SegmentSizeBytes : offset+domain.SegmentSizeBytes]
}
