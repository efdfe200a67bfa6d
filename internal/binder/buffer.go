package binder

import "github.com/randomizedcoder/go-playback-probe/internal/playback"

// gapTolerance lets a position sitting just before a range (a small hole
// at a segment boundary) count as inside it.
const gapTolerance = 0.1

// ComputeBufferSize returns the seconds of media buffered ahead of
// position: the distance to the end of the range holding position, or 0
// when position is outside every range.
func ComputeBufferSize(ranges playback.TimeRanges, position float64) float64 {
	for _, r := range ranges {
		padded := playback.TimeRange{Start: r.Start - gapTolerance, End: r.End}
		if padded.Contains(position) {
			return r.End - position
		}
	}
	return 0
}

// LiveEdge returns the end of the last buffered range.
func LiveEdge(ranges playback.TimeRanges) (float64, error) {
	last, err := ranges.Last()
	if err != nil {
		return 0, err
	}
	return last.End, nil
}
