package network

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepNow returns a clock that advances by step on every call.
func stepNow(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := t
		t = t.Add(step)
		return now
	}
}

// =============================================================================
// Tests: DownloadProber
// =============================================================================

func TestDownloadProber_Throughput(t *testing.T) {
	body := strings.Repeat("x", 125_000)
	var gotUA, gotHeader, gotCache string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Probe")
		gotCache = r.Header.Get("Cache-Control")
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	p := NewDownloadProber(srv.URL, 0, ClientOptions{
		UserAgent: "playback-probe/test",
		Headers:   []string{"X-Probe: yes", "malformed"},
	})
	p.now = stepNow(time.Second)

	bps, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1e6, bps)
	assert.Equal(t, "playback-probe/test", gotUA)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, "no-cache", gotCache)
}

func TestDownloadProber_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 10_000))
	}))
	defer srv.Close()

	p := NewDownloadProber(srv.URL, 1000, ClientOptions{})
	p.now = stepNow(time.Second)

	bps, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8000.0, bps)
}

func TestDownloadProber_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			wantErr: ErrHTTPStatus,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			wantErr: ErrHTTPStatus,
		},
		{
			name:    "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {},
			wantErr: ErrNoData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewDownloadProber(srv.URL, 0, ClientOptions{}).Probe(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDownloadProber_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDownloadProber(srv.URL, 0, ClientOptions{}).Probe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Tests: ExporterProber
// =============================================================================

// exporterServer serves node_exporter text with a receive counter that the
// test can move.
type exporterServer struct {
	mu    sync.Mutex
	eth0  float64
	wlan0 float64
}

func (s *exporterServer) set(eth0, wlan0 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eth0, s.wlan0 = eth0, wlan0
}

func (s *exporterServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, `# HELP node_cpu_seconds_total Seconds the CPUs spent in each mode.
# TYPE node_cpu_seconds_total counter
node_cpu_seconds_total{cpu="0",mode="idle"} 12345.67
# HELP node_network_receive_bytes_total Network device statistic receive_bytes.
# TYPE node_network_receive_bytes_total counter
node_network_receive_bytes_total{device="lo"} 999999999
node_network_receive_bytes_total{device="eth0"} %g
node_network_receive_bytes_total{device="wlan0"} %g
`, s.eth0, s.wlan0)
}

func TestExporterProber_Rate(t *testing.T) {
	tests := []struct {
		name   string
		device string
		want   float64
	}{
		// eth0 +1000 B and wlan0 +250 B over 1s
		{"all non-loopback", "", 10_000},
		{"single device", "eth0", 8_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := &exporterServer{}
			exp.set(5_000, 100)
			srv := httptest.NewServer(exp)
			defer srv.Close()

			p := NewExporterProber(srv.URL, tt.device, ClientOptions{})
			p.now = stepNow(time.Second)

			_, err := p.Probe(context.Background())
			require.ErrorIs(t, err, ErrPriming)

			exp.set(6_000, 350)
			bps, err := p.Probe(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, bps)
		})
	}
}

func TestExporterProber_CounterReset(t *testing.T) {
	exp := &exporterServer{}
	exp.set(5_000, 0)
	srv := httptest.NewServer(exp)
	defer srv.Close()

	p := NewExporterProber(srv.URL, "eth0", ClientOptions{})
	p.now = stepNow(time.Second)

	_, err := p.Probe(context.Background())
	require.ErrorIs(t, err, ErrPriming)

	exp.set(10, 0)
	_, err = p.Probe(context.Background())
	require.ErrorIs(t, err, ErrCounterReset)

	// The reset re-baselines, so the next probe is a normal rate.
	exp.set(1_010, 0)
	bps, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8_000.0, bps)
}

// slowFirstServer serves eth0 counters in request order and holds the
// response to request hold until release is closed.
type slowFirstServer struct {
	values  []float64
	hold    int
	arrived chan struct{}
	release chan struct{}

	mu   sync.Mutex
	next int
}

func (s *slowFirstServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := s.next
	s.next++
	s.mu.Unlock()

	if i == s.hold {
		close(s.arrived)
		<-s.release
	}
	fmt.Fprintf(w, "# TYPE node_network_receive_bytes_total counter\nnode_network_receive_bytes_total{device=\"eth0\"} %g\n", s.values[i])
}

func TestExporterProber_OverlappingScrapes(t *testing.T) {
	exp := &slowFirstServer{
		values:  []float64{500, 1_000, 2_000, 3_000},
		hold:    1,
		arrived: make(chan struct{}),
		release: make(chan struct{}),
	}
	srv := httptest.NewServer(exp)
	defer srv.Close()

	p := NewExporterProber(srv.URL, "eth0", ClientOptions{})
	p.now = stepNow(time.Second)

	// t=0s: baseline 500 B
	_, err := p.Probe(context.Background())
	require.ErrorIs(t, err, ErrPriming)

	// t=1s: scrape of 1000 B, answered last
	slow := make(chan error, 1)
	go func() {
		_, err := p.Probe(context.Background())
		slow <- err
	}()
	<-exp.arrived

	// t=2s: 2000 B overtakes it
	bps, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1_500.0*8/2, bps)

	close(exp.release)
	require.ErrorIs(t, <-slow, ErrStaleSample)

	// t=3s: the baseline is still the 2000 B sample
	bps, err = p.Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8_000.0, bps)
}

func TestExporterProber_MissingDevice(t *testing.T) {
	exp := &exporterServer{}
	srv := httptest.NewServer(exp)
	defer srv.Close()

	_, err := NewExporterProber(srv.URL, "ens5", ClientOptions{}).Probe(context.Background())
	assert.ErrorIs(t, err, ErrMetricMissing)
}

func TestExporterProber_MissingMetric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# TYPE up gauge\nup 1\n")
	}))
	defer srv.Close()

	_, err := NewExporterProber(srv.URL, "", ClientOptions{}).Probe(context.Background())
	assert.ErrorIs(t, err, ErrMetricMissing)
}

func TestExporterProber_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewExporterProber(srv.URL, "", ClientOptions{}).Probe(context.Background())
	assert.ErrorIs(t, err, ErrHTTPStatus)
}

func TestExporterProber_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "node_network_receive_bytes_total{device=\"eth0\" 12\n")
	}))
	defer srv.Close()

	_, err := NewExporterProber(srv.URL, "", ClientOptions{}).Probe(context.Background())
	assert.Error(t, err)
}
