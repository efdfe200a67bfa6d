// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os/exec"
	"strings"
	"syscall"
)

// minFileDescriptors covers the metrics server, probes, the ffmpeg pipes
// and the terminal.
const minFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// Options selects what RunAll checks. Empty fields skip their check.
type Options struct {
	FFmpegPath   string // checked when set
	MetricsAddr  string
	BandwidthURL string
	ExporterURL  string
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks selected by opts.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	result.add(checkFileDescriptors(minFileDescriptors))

	if opts.FFmpegPath != "" {
		result.add(checkFFmpeg(opts.FFmpegPath))
	}
	if opts.MetricsAddr != "" {
		result.add(checkListenAddr(opts.MetricsAddr))
	}
	if opts.BandwidthURL != "" {
		result.add(checkURL("bandwidth_url", opts.BandwidthURL))
	}
	if opts.ExporterURL != "" {
		result.add(checkURL("exporter_url", opts.ExporterURL))
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(required int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(limit.Cur)
	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkFFmpeg verifies FFmpeg is available and working.
func checkFFmpeg(path string) Check {
	cmd := exec.Command(path, "-version")
	output, err := cmd.Output()

	if err != nil {
		return Check{
			Name:    "ffmpeg",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	// "ffmpeg version 6.1 Copyright ..."
	version := "unknown"
	first, _, _ := strings.Cut(string(output), "\n")
	if parts := strings.Fields(first); len(parts) >= 3 {
		version = parts[2]
	}

	return Check{
		Name:    "ffmpeg",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, version),
	}
}

// checkListenAddr verifies the metrics address can be bound.
func checkListenAddr(addr string) Check {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{
			Name:    "metrics_addr",
			Passed:  false,
			Message: fmt.Sprintf("cannot listen on %s: %v", addr, err),
		}
	}
	defer closeQuietly(ln)

	return Check{
		Name:    "metrics_addr",
		Passed:  true,
		Message: fmt.Sprintf("%s is free", addr),
	}
}

// checkURL verifies rawURL is an absolute http(s) URL.
func checkURL(name, rawURL string) Check {
	u, err := url.Parse(rawURL)
	switch {
	case err != nil:
		return Check{Name: name, Message: err.Error()}
	case u.Scheme != "http" && u.Scheme != "https":
		return Check{Name: name, Message: fmt.Sprintf("scheme %q is not http or https", u.Scheme)}
	case u.Host == "":
		return Check{Name: name, Message: "missing host"}
	}
	return Check{Name: name, Passed: true, Message: rawURL}
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}

// PrintResults prints the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "ffmpeg":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg) or set -ffmpeg"
	case "metrics_addr":
		return "pick a free -metrics address, or pass -metrics \"\" to disable"
	case "bandwidth_url", "exporter_url":
		return "use an absolute http:// or https:// URL"
	default:
		return "see -help"
	}
}
