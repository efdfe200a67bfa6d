package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const receiveBytesMetric = "node_network_receive_bytes_total"

var (
	// ErrPriming is returned by the first scrape, which only records the
	// counter baseline.
	ErrPriming = errors.New("first scrape primes the counter")

	// ErrCounterReset is returned when the counter went backwards.
	ErrCounterReset = errors.New("counter reset")

	// ErrStaleSample is returned when a scrape started before the one that
	// set the current baseline. The baseline is left untouched.
	ErrStaleSample = errors.New("stale sample")

	// ErrMetricMissing is returned when the exporter does not expose the
	// receive counter (or the configured device).
	ErrMetricMissing = errors.New("metric missing")
)

// ExporterProber reports the receive rate of a node_exporter host.
type ExporterProber struct {
	url    string
	device string // empty = every non-loopback device
	opts   ClientOptions
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	primed    bool
	lastBytes float64
	lastTime  time.Time
}

// NewExporterProber creates a prober scraping url.
func NewExporterProber(url, device string, opts ClientOptions) *ExporterProber {
	return &ExporterProber{
		url:    url,
		device: device,
		opts:   opts,
		client: opts.client(),
		now:    time.Now,
	}
}

// Probe scrapes the exporter and returns the receive rate in bits/s since
// the previous scrape. Probes may overlap: a sample is stamped when its
// scrape starts, and one older than the baseline is dropped.
func (p *ExporterProber) Probe(ctx context.Context) (float64, error) {
	now := p.now()
	families, err := p.scrape(ctx)
	if err != nil {
		return 0, err
	}
	total, err := receiveBytes(families, p.device)
	if err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.primed {
		p.primed = true
		p.lastBytes, p.lastTime = total, now
		return 0, ErrPriming
	}
	if now.Before(p.lastTime) {
		return 0, ErrStaleSample
	}

	delta := total - p.lastBytes
	elapsed := now.Sub(p.lastTime).Seconds()
	p.lastBytes, p.lastTime = total, now

	if delta < 0 {
		return 0, ErrCounterReset
	}
	if elapsed <= 0 {
		return 0, fmt.Errorf("non-positive scrape interval %.3fs", elapsed)
	}
	return delta * 8 / elapsed, nil
}

// scrape fetches and parses the exporter's text exposition.
func (p *ExporterProber) scrape(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	p.opts.decorate(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}

// receiveBytes sums the receive counter for device, or for every
// non-loopback device when device is empty.
func receiveBytes(families map[string]*dto.MetricFamily, device string) (float64, error) {
	mf, ok := families[receiveBytesMetric]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMetricMissing, receiveBytesMetric)
	}

	var total float64
	found := false
	for _, metric := range mf.GetMetric() {
		name := deviceLabel(metric)
		switch {
		case device != "" && name != device:
			continue
		case device == "" && name == "lo":
			continue
		}
		total += metric.GetCounter().GetValue()
		found = true
	}

	if !found {
		if device != "" {
			return 0, fmt.Errorf("%w: device %q", ErrMetricMissing, device)
		}
		return 0, fmt.Errorf("%w: no non-loopback device", ErrMetricMissing)
	}
	return total, nil
}

func deviceLabel(metric *dto.Metric) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == "device" {
			return label.GetValue()
		}
	}
	return ""
}
