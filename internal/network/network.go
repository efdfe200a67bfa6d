// Package network provides bandwidth probers for the binder.
//
// DownloadProber times an HTTP download and reports its throughput.
// ExporterProber reads a node_exporter's receive-bytes counter and reports
// the rate between consecutive scrapes. Both return bits per second.
package network

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrHTTPStatus is returned for a non-2xx response.
	ErrHTTPStatus = errors.New("unexpected http status")

	// ErrNoData is returned when a probe transferred nothing.
	ErrNoData = errors.New("no data transferred")
)

// ClientOptions configures the HTTP side of a prober.
type ClientOptions struct {
	UserAgent string
	Headers   []string // "Name: value"
	Timeout   time.Duration
	Client    *http.Client // overrides Timeout when set
}

func (o ClientOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// decorate applies the user agent and custom headers to req.
func (o ClientOptions) decorate(req *http.Request) {
	if o.UserAgent != "" {
		req.Header.Set("User-Agent", o.UserAgent)
	}
	for _, h := range o.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			continue
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return nil
}
