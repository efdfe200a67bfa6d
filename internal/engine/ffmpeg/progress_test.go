package ffmpeg

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"1.00x", 1.0},
		{"0.95x", 0.95},
		{" 1.5x", 1.5},
		{"10.0x", 10.0},
		{"N/A", 0},
		{"", 0},
		{"fast", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseSpeed(tt.input); got != tt.want {
				t.Errorf("parseSpeed(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseBitrate(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"512.0kbits/s", 512_000},
		{"2.5Mbits/s", 2_500_000},
		{"900bits/s", 900},
		{"  800.0kbits/s", 800_000},
		{"N/A", 0},
		{"", 0},
		{"-1.0kbits/s", 0},
		{"abckbits/s", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseBitrate(tt.input); got != tt.want {
				t.Errorf("parseBitrate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

const sampleProgress = `frame=0
fps=0.00
bitrate=N/A
total_size=N/A
out_time_us=0
speed=N/A
progress=continue
frame=0
fps=0.00
bitrate=812.4kbits/s
total_size=203100
out_time_us=2000000
speed=1.00x
progress=continue
bitrate=810.0kbits/s
total_size=405000
out_time_us=4000000
speed=0.99x
progress=end
`

func TestProgressParser_Blocks(t *testing.T) {
	var got []Progress
	p := NewProgressParser(func(u Progress) { got = append(got, u) })

	for _, line := range strings.Split(sampleProgress, "\n") {
		p.ParseLine(line)
	}

	if len(got) != 3 {
		t.Fatalf("got %d blocks, want 3", len(got))
	}

	first := got[0]
	if first.OutTime != 0 || first.Speed != 0 || first.Bitrate != 0 || first.TotalSize != 0 {
		t.Errorf("first block = %+v, want zero values for N/A", first)
	}

	second := got[1]
	if second.OutTime != 2*time.Second {
		t.Errorf("OutTime = %v, want 2s", second.OutTime)
	}
	if second.Bitrate != 812_400 {
		t.Errorf("Bitrate = %v, want 812400", second.Bitrate)
	}
	if second.TotalSize != 203100 {
		t.Errorf("TotalSize = %v, want 203100", second.TotalSize)
	}
	if second.Speed != 1.0 {
		t.Errorf("Speed = %v, want 1.0", second.Speed)
	}
	if second.IsEnd() {
		t.Error("second block must not be the end")
	}

	if !got[2].IsEnd() {
		t.Error("last block must be the end")
	}

	blocks, lines := p.Stats()
	if blocks != 3 {
		t.Errorf("blocks = %d, want 3", blocks)
	}
	if lines != 19 {
		t.Errorf("lines = %d, want 19", lines)
	}
}

func TestProgressParser_ResetsBetweenBlocks(t *testing.T) {
	var got []Progress
	p := NewProgressParser(func(u Progress) { got = append(got, u) })

	p.ParseLine("bitrate=500.0kbits/s")
	p.ParseLine("out_time_us=1000000")
	p.ParseLine("progress=continue")
	p.ParseLine("progress=continue")

	if len(got) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got))
	}
	if got[1].Bitrate != 0 || got[1].OutTime != 0 {
		t.Errorf("second block carried values over: %+v", got[1])
	}
}

func TestProgressParser_IgnoresJunk(t *testing.T) {
	calls := 0
	p := NewProgressParser(func(Progress) { calls++ })

	for _, line := range []string{"", "garbage", "out_time_us=-5", "out_time_us=abc"} {
		p.ParseLine(line)
	}
	p.ParseLine("progress=continue")

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestProgressParser_NilCallback(t *testing.T) {
	p := NewProgressParser(nil)
	p.ParseLine("out_time_us=1")
	p.ParseLine("progress=continue")

	if blocks, _ := p.Stats(); blocks != 1 {
		t.Errorf("blocks = %d, want 1", blocks)
	}
}

func TestProgressParser_Concurrent(t *testing.T) {
	var mu sync.Mutex
	count := 0
	p := NewProgressParser(func(Progress) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				p.ParseLine("speed=1.00x")
				p.ParseLine("progress=continue")
			}
		}()
	}
	wg.Wait()

	if count != 1000 {
		t.Errorf("count = %d, want 1000", count)
	}
}
