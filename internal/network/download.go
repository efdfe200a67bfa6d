package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DownloadProber estimates bandwidth by timing a GET of a URL.
type DownloadProber struct {
	url      string
	maxBytes int64
	opts     ClientOptions
	client   *http.Client
	now      func() time.Time
}

// NewDownloadProber creates a prober for url. maxBytes caps each download
// (0 = read the whole body).
func NewDownloadProber(url string, maxBytes int64, opts ClientOptions) *DownloadProber {
	return &DownloadProber{
		url:      url,
		maxBytes: maxBytes,
		opts:     opts,
		client:   opts.client(),
		now:      time.Now,
	}
}

// Probe downloads the URL and returns the observed throughput in bits/s.
func (p *DownloadProber) Probe(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	p.opts.decorate(req)
	req.Header.Set("Cache-Control", "no-cache")

	start := p.now()
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return 0, err
	}

	var body io.Reader = resp.Body
	if p.maxBytes > 0 {
		body = io.LimitReader(resp.Body, p.maxBytes)
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}
	elapsed := p.now().Sub(start)

	if n == 0 {
		return 0, ErrNoData
	}
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	return float64(n) * 8 / elapsed.Seconds(), nil
}
