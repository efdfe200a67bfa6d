package playback

import "errors"

// ErrNoRanges is returned when a TimeRanges is empty.
var ErrNoRanges = errors.New("no buffered ranges")

// TimeRange is a buffered interval of media time, in seconds.
type TimeRange struct {
	Start float64
	End   float64
}

// Contains reports whether pos lies in [Start, End).
func (r TimeRange) Contains(pos float64) bool {
	return pos >= r.Start && pos < r.End
}

// TimeRanges is an ordered, non-overlapping sequence of buffered ranges.
type TimeRanges []TimeRange

// Len returns the number of ranges.
func (t TimeRanges) Len() int {
	return len(t)
}

// Start returns the start of range i.
func (t TimeRanges) Start(i int) float64 {
	return t[i].Start
}

// End returns the end of range i.
func (t TimeRanges) End(i int) float64 {
	return t[i].End
}

// Last returns the last range, or ErrNoRanges.
func (t TimeRanges) Last() (TimeRange, error) {
	if len(t) == 0 {
		return TimeRange{}, ErrNoRanges
	}
	return t[len(t)-1], nil
}

// Clone returns a copy that does not alias t.
func (t TimeRanges) Clone() TimeRanges {
	if t == nil {
		return nil
	}
	out := make(TimeRanges, len(t))
	copy(out, t)
	return out
}
