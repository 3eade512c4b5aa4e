// Package service implements the relay and size probe logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"syscall"

	"useapi-go/internal/client"
	"useapi-go/internal/config"
	"useapi-go/internal/metrics"
	"useapi-go/internal/model"
	"useapi-go/internal/redact"
)

// MsgPayloadRequired is the envelope content for a POST descriptor without payload.
const MsgPayloadRequired = "Payload is required for POST requests"

// MsgTimedOut is the envelope content for an outbound call that exceeded its deadline.
const MsgTimedOut = "Request timed out"

// InputError marks a descriptor or request that could not be turned into an outbound call.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }

func (e *InputError) Unwrap() error { return e.Err }

// RelayService forwards caller-described requests and normalizes the responses.
type RelayService struct {
	client  *client.UpstreamClient
	logger  *slog.Logger
	metrics *metrics.Metrics
	allowed map[string]bool
}

// NewRelayService creates a RelayService. The metrics parameter is optional.
func NewRelayService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	var allowed map[string]bool
	if len(cfg.Relay.AllowedHosts) > 0 {
		allowed = make(map[string]bool, len(cfg.Relay.AllowedHosts))
		for _, h := range cfg.Relay.AllowedHosts {
			allowed[h] = true
		}
	}

	return &RelayService{
		client:  c,
		logger:  logger.With("component", "relay_service"),
		metrics: m,
		allowed: allowed,
	}
}

// Relay performs the outbound call described by d and returns its envelope.
// It never fails: every error is encoded as a synthetic status in the envelope.
func (s *RelayService) Relay(ctx context.Context, d *model.RequestDescriptor) model.ResponseEnvelope {
	s.logger.Info("received request",
		"host", d.Host,
		"port", d.Port,
		"route", redact.String(d.Route),
		"method", d.Method,
		"has_payload", d.Payload != nil,
	)

	if err := s.validate(d); err != nil {
		return s.fail(ctx, d, &InputError{Err: err})
	}

	if d.Method == model.MethodPost && d.Payload == nil {
		s.logger.Error("relay rejected", "reason", MsgPayloadRequired)
		s.outcome(metrics.OutcomeInvalid)
		return model.NewEnvelope(http.StatusBadRequest, MsgPayloadRequired)
	}

	req, err := s.buildRequest(ctx, d)
	if err != nil {
		return s.fail(ctx, d, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return s.fail(ctx, d, err)
	}

	content, ok := decodeContent(resp.Body)
	if !ok {
		s.logger.Warn("response is not JSON; returning text content",
			"url", redact.String(d.URL()),
			"status", resp.StatusCode,
		)
	}
	s.outcome(metrics.OutcomeUpstream)
	return model.NewEnvelope(resp.StatusCode, content)
}

func (s *RelayService) validate(d *model.RequestDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if s.allowed != nil && !s.allowed[d.Host] {
		return fmt.Errorf("host %q is not in the allowlist", d.Host)
	}
	return nil
}

func (s *RelayService) buildRequest(ctx context.Context, d *model.RequestDescriptor) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if d.Method == model.MethodPost {
		b, err := json.Marshal(d.Payload)
		if err != nil {
			return nil, &InputError{Err: fmt.Errorf("encode payload: %w", err)}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL(), body)
	if err != nil {
		return nil, &InputError{Err: err}
	}
	if d.Method == model.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// fail logs err and converts it into a synthetic envelope.
func (s *RelayService) fail(ctx context.Context, d *model.RequestDescriptor, err error) model.ResponseEnvelope {
	env, outcome := Classify(err)
	s.outcome(outcome)
	s.logger.ErrorContext(ctx, "relay failed",
		"outcome", outcome,
		"url", redact.String(d.URL()),
		"err", redact.Error(err),
	)
	return env
}

func (s *RelayService) outcome(name string) {
	if s.metrics != nil {
		s.metrics.RelayOutcomes.WithLabelValues(name).Inc()
	}
}

// Classify maps a relay failure to its synthetic envelope and outcome label.
// Timeouts take precedence over every other class.
func Classify(err error) (model.ResponseEnvelope, string) {
	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return model.NewEnvelope(http.StatusBadRequest, "Invalid input: "+inputErr.Error()), metrics.OutcomeInvalid
	}

	if isTimeout(err) {
		return model.NewEnvelope(http.StatusGatewayTimeout, MsgTimedOut), metrics.OutcomeTimeout
	}

	var readErr *client.ReadError
	if errors.As(err, &readErr) {
		return model.NewEnvelope(http.StatusInternalServerError, "I/O error: "+readErr.Err.Error()), metrics.OutcomeIOError
	}

	if detail, ok := connectFailure(err); ok {
		return model.NewEnvelope(http.StatusServiceUnavailable, "Service unavailable: "+detail), metrics.OutcomeUnavailable
	}

	return model.NewEnvelope(http.StatusInternalServerError, "Client error: "+clientDetail(err)), metrics.OutcomeClientError
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// connectFailure reports whether err happened before a connection was established.
func connectFailure(err error) (string, bool) {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Error(), true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return opErr.Error(), true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return clientDetail(err), true
	}
	return "", false
}

// clientDetail strips the method and URL prefix net/http adds to transport errors.
func clientDetail(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}

// decodeContent parses body as a single JSON value, keeping numbers exact.
// When body is not valid JSON it returns the raw text and false.
func decodeContent(body []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return string(body), false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return string(body), false
	}
	return v, true
}
