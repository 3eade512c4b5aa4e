// Package client provides the outbound HTTP client used by the relay and the size probe.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"useapi-go/internal/config"
	"useapi-go/internal/metrics"
)

// ErrResponseTooLarge is returned when an upstream body exceeds the configured limit.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ReadError reports a failure while reading an upstream response body
// after the status line and headers were received.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "read response body: " + e.Err.Error() }

func (e *ReadError) Unwrap() error { return e.Err }

// Options configures an UpstreamClient.
type Options struct {
	Timeout          time.Duration
	MaxResponseBytes int64
	// MaxRedirects caps redirect following. Zero keeps the net/http default.
	MaxRedirects int
}

// Response is an upstream response with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// UpstreamClient sends requests to arbitrary upstream hosts.
// Every call uses its own transport, so no connection outlives the call.
type UpstreamClient struct {
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an UpstreamClient. The metrics parameter is optional; pass nil
// to disable upstream metrics recording.
func New(opts Options, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return &UpstreamClient{
		opts:    opts,
		logger:  logger.With("component", "upstream_client"),
		metrics: m,
	}
}

// NewRelayClient creates the UpstreamClient used by the relay service.
func NewRelayClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	return New(Options{
		Timeout:          cfg.Relay.Timeout(),
		MaxResponseBytes: cfg.Relay.MaxResponseBytes,
	}, logger, m)
}

// Do executes req on a fresh transport and reads the whole response body.
// Upstream 4xx/5xx responses are returned as responses, not errors.
func (c *UpstreamClient) Do(req *http.Request) (*Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
		DialContext: (&net.Dialer{
			Timeout: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	defer transport.CloseIdleConnections()

	hc := &http.Client{
		Transport: transport,
		Timeout:   c.opts.Timeout,
	}
	if c.opts.MaxRedirects > 0 {
		limit := c.opts.MaxRedirects
		hc.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
			if len(via) >= limit {
				return fmt.Errorf("stopped after %d redirects", limit)
			}
			return nil
		}
	}

	start := time.Now()
	resp, err := hc.Do(req)
	method := metrics.NormalizeMethod(req.Method)
	if err != nil {
		c.observe(method, "", start)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := c.readBody(resp.Body)
	c.observe(method, strconv.Itoa(resp.StatusCode), start)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.opts.MaxResponseBytes <= 0 {
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, &ReadError{Err: err}
		}
		return body, nil
	}

	body, err := io.ReadAll(io.LimitReader(r, c.opts.MaxResponseBytes+1))
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	if int64(len(body)) > c.opts.MaxResponseBytes {
		return nil, &ReadError{Err: fmt.Errorf("%w (%d bytes)", ErrResponseTooLarge, c.opts.MaxResponseBytes)}
	}
	return body, nil
}

func (c *UpstreamClient) observe(method, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if status != "" {
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}
}
