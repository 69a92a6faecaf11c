package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// QualityLevel is one rung of the bitrate ladder. ID is the index into the ladder.
type QualityLevel struct {
	ID         int    `json:"id"`
	BitrateBps int    `json:"bitrate"`
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
	Codec      string `json:"codec"`
}

// Height returns the vertical resolution parsed from Resolution ("1920x1080" -> 1080).
func (q QualityLevel) Height() int {
	_, h, ok := strings.Cut(q.Resolution, "x")
	if !ok {
		return 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0
	}
	return height
}

const AudioCodec = "mp4a.40.2"

// Ladder is sorted ascending by bitrate and ids are stable indices into it.
type Ladder []QualityLevel

// DefaultLadder is the global quality ladder shared by every piece of content.
var DefaultLadder = Ladder{
	{ID: 0, BitrateBps: 250_000, Resolution: "426x240", FPS: 30, Codec: "avc1.42c015"},
	{ID: 1, BitrateBps: 500_000, Resolution: "640x360", FPS: 30, Codec: "avc1.42c01e"},
	{ID: 2, BitrateBps: 800_000, Resolution: "854x480", FPS: 30, Codec: "avc1.4d401e"},
	{ID: 3, BitrateBps: 1_200_000, Resolution: "1280x720", FPS: 30, Codec: "avc1.4d401f"},
	{ID: 4, BitrateBps: 2_000_000, Resolution: "1280x720", FPS: 60, Codec: "avc1.4d4020"},
	{ID: 5, BitrateBps: 3_000_000, Resolution: "1920x1080", FPS: 30, Codec: "avc1.640028"},
	{ID: 6, BitrateBps: 4_500_000, Resolution: "1920x1080", FPS: 60, Codec: "avc1.64002a"},
	{ID: 7, BitrateBps: 15_000_000, Resolution: "3840x2160", FPS: 30, Codec: "avc1.640033"},
}

// Level looks a quality up by id.
func (l Ladder) Level(id int) (QualityLevel, error) {
	if id < 0 || id >= len(l) {
		return QualityLevel{}, fmt.Errorf("%w: %d", ErrQualityNotFound, id)
	}
	return l[id], nil
}

// MaxIndex returns the highest valid quality id.
func (l Ladder) MaxIndex() int {
	return len(l) - 1
}

// HighestWithin returns the highest level whose bitrate does not exceed budgetBps.
// Level 0 is returned when nothing fits.
func (l Ladder) HighestWithin(budgetBps float64) QualityLevel {
	best := l[0]
	for _, q := range l {
		if float64(q.BitrateBps) <= budgetBps {
			best = q
		}
	}
	return best
}

// Filter returns the levels accepted by keep, preserving ladder order.
func (l Ladder) Filter(keep func(QualityLevel) bool) Ladder {
	out := make(Ladder, 0, len(l))
	for _, q := range l {
		if keep(q) {
			out = append(out, q)
		}
	}
	return out
}

// IDs lists the quality ids in ladder order.
func (l Ladder) IDs() []int {
	ids := make([]int, len(l))
	for i, q := range l {
		ids[i] = q.ID
	}
	return ids
}
