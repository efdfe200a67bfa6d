// Package timeseries keeps a bounded history of timestamped samples for a
// single metric channel.
//
// A Series is a fixed-size ring buffer: once full, each Add overwrites the
// oldest sample. Reads return copies in chronological order.
//
// Thread-safe: Add acquires the write lock, reads acquire the read lock.
package timeseries

import (
	"sync"
	"time"
)

// DefaultCapacity holds five minutes of samples at one per second.
const DefaultCapacity = 300

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

// realClock uses time.Now() for production.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Sample is one timestamped value.
type Sample struct {
	Time  time.Time
	Value float64
}

// Series is a ring buffer of samples.
//
// Usage:
//
//	s := timeseries.New(120)
//	s.Add(4.2)
//	last, ok := s.Last()
//	spark := s.Values(40)
type Series struct {
	mu       sync.RWMutex
	samples  []Sample
	writeIdx int // next write position once the buffer is full
	capacity int
	clock    Clock
}

// New creates a series holding up to capacity samples, using the real clock.
func New(capacity int) *Series {
	return NewWithClock(capacity, realClock{})
}

// NewWithClock creates a series with a custom clock for testing.
func NewWithClock(capacity int, clock Clock) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{
		samples:  make([]Sample, 0, capacity),
		capacity: capacity,
		clock:    clock,
	}
}

// Add appends v stamped with the current time.
func (s *Series) Add(v float64) {
	s.AddAt(s.clock.Now(), v)
}

// AddAt appends v stamped with ts.
func (s *Series) AddAt(ts time.Time, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sample := Sample{Time: ts, Value: v}
	if len(s.samples) < s.capacity {
		s.samples = append(s.samples, sample)
		return
	}
	s.samples[s.writeIdx] = sample
	s.writeIdx = (s.writeIdx + 1) % s.capacity
}

// Len returns the number of samples held.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Last returns the newest sample.
func (s *Series) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.at(len(s.samples) - 1), true
}

// Samples returns every held sample, oldest first.
func (s *Series) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sample, len(s.samples))
	for i := range out {
		out[i] = s.at(i)
	}
	return out
}

// Values returns the values of the newest n samples, oldest first.
func (s *Series) Values(n int) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.samples) {
		n = len(s.samples)
	}
	if n <= 0 {
		return nil
	}

	out := make([]float64, n)
	offset := len(s.samples) - n
	for i := range out {
		out[i] = s.at(offset + i).Value
	}
	return out
}

// Avg returns the mean of samples newer than window, and how many there
// were. Zero samples yields 0.
func (s *Series) Avg(window time.Duration) (float64, int) {
	cutoff := s.clock.Now().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum float64
	var n int
	for i := len(s.samples) - 1; i >= 0; i-- {
		sample := s.at(i)
		if !sample.Time.After(cutoff) {
			break
		}
		sum += sample.Value
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// Reset drops every sample.
func (s *Series) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = s.samples[:0]
	s.writeIdx = 0
}

// at maps a chronological index to the ring. Must be called with mu held.
func (s *Series) at(i int) Sample {
	if len(s.samples) < s.capacity {
		return s.samples[i]
	}
	return s.samples[(s.writeIdx+i)%s.capacity]
}
