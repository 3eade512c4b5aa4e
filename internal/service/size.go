package service

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"useapi-go/internal/client"
	"useapi-go/internal/config"
	"useapi-go/internal/metrics"
	"useapi-go/internal/model"
	"useapi-go/internal/redact"
)

// ErrInvalidURL is returned when the probe URL is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid URL")

// StatusError reports an upstream response with status >= 400.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	class := "Client"
	if e.Code >= 500 {
		class = "Server"
	}
	return fmt.Sprintf("%s error '%d %s' for url '%s'", class, e.Code, http.StatusText(e.Code), e.URL)
}

// SizeService fetches a URL and reports its body size and timing.
type SizeService struct {
	client    *client.UpstreamClient
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSizeService creates a SizeService with its own upstream client.
func NewSizeService(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *SizeService {
	c := client.New(client.Options{
		Timeout:          cfg.Size.Timeout(),
		MaxResponseBytes: cfg.Relay.MaxResponseBytes,
		MaxRedirects:     cfg.Size.MaxRedirects,
	}, logger, m)

	return &SizeService{
		client:    c,
		userAgent: cfg.Size.UserAgent,
		logger:    logger.With("component", "size_service"),
		metrics:   m,
		now:       time.Now,
	}
}

// Measure fetches rawURL with a GET and returns its size in characters along
// with the total and request timings.
func (s *SizeService) Measure(ctx context.Context, rawURL string) (*model.SizeResult, error) {
	totalStart := s.now()

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		s.record("invalid_url")
		return nil, fmt.Errorf("%w: %q must be an absolute http or https URL", ErrInvalidURL, rawURL)
	}

	tr := &traceRecorder{now: s.now}
	ctx = httptrace.WithClientTrace(ctx, tr.clientTrace())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		s.record("error")
		return nil, fmt.Errorf("build request: %w", err)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	requestStart := s.now()
	resp, err := s.client.Do(req)
	requestEnd := s.now()
	if err != nil {
		s.record("error")
		s.logger.Error("size probe failed", "url", redact.String(rawURL), "err", redact.Error(err))
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		s.record("upstream_error")
		return nil, &StatusError{Code: resp.StatusCode, URL: u.String()}
	}

	size := utf8.RuneCount(resp.Body)
	totalTime := s.now().Sub(totalStart).Seconds()
	requestTime := requestEnd.Sub(requestStart).Seconds()

	pct := 100.0
	if totalTime > 0 {
		pct = requestTime / totalTime * 100
	}

	s.record("ok")
	return &model.SizeResult{
		URL:                   u.String(),
		Size:                  size,
		TotalTime:             round(totalTime, 4),
		RequestTimePercentage: round(pct, 2),
		Timings:               tr.timings(),
	}, nil
}

func (s *SizeService) record(result string) {
	if s.metrics != nil {
		s.metrics.SizeProbes.WithLabelValues(result).Inc()
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// traceRecorder collects connection phase timestamps. Dial callbacks may run
// on separate goroutines, so every access holds mu.
type traceRecorder struct {
	now func() time.Time

	mu                        sync.Mutex
	start                     time.Time
	dnsStart, dnsDone         time.Time
	connectStart, connectDone time.Time
	tlsStart, tlsDone         time.Time
	firstByte                 time.Time
}

func (r *traceRecorder) set(t *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.IsZero() {
		*t = r.now()
	}
}

func (r *traceRecorder) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		GetConn:              func(string) { r.set(&r.start) },
		DNSStart:             func(httptrace.DNSStartInfo) { r.set(&r.dnsStart) },
		DNSDone:              func(httptrace.DNSDoneInfo) { r.set(&r.dnsDone) },
		ConnectStart:         func(string, string) { r.set(&r.connectStart) },
		ConnectDone:          func(string, string, error) { r.set(&r.connectDone) },
		TLSHandshakeStart:    func() { r.set(&r.tlsStart) },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { r.set(&r.tlsDone) },
		GotFirstResponseByte: func() { r.set(&r.firstByte) },
	}
}

func (r *traceRecorder) timings() model.Timings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.Timings{
		DNS:     millis(r.dnsStart, r.dnsDone),
		Connect: millis(r.connectStart, r.connectDone),
		TLS:     millis(r.tlsStart, r.tlsDone),
		TTFB:    millis(r.start, r.firstByte),
	}
}

// millis returns end-start in milliseconds, or 0 when either phase was not observed.
func millis(start, end time.Time) float64 {
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return round(float64(end.Sub(start))/float64(time.Millisecond), 3)
}
