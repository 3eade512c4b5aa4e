// Package model defines the request and response types shared by the relay.
package model

import (
	"fmt"
	"net/http"
)

// Methods accepted by the relay. Matching is case-sensitive.
const (
	MethodGet  = http.MethodGet
	MethodPost = http.MethodPost
)

// RequestDescriptor describes a single outbound call the relay should make.
type RequestDescriptor struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Route  string `json:"route"`
	Method string `json:"method"`
	// Payload is nil when absent or JSON null.
	Payload map[string]any `json:"payload"`
}

// URL returns the outbound URL by plain concatenation of its parts.
func (d *RequestDescriptor) URL() string {
	return fmt.Sprintf("http://%s:%d%s", d.Host, d.Port, d.Route)
}

// Validate checks the descriptor fields that can be checked without a network call.
// A POST without payload is not reported here; the relay answers it separately.
func (d *RequestDescriptor) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("port must be 1-65535; got %d", d.Port)
	}
	switch d.Method {
	case MethodGet, MethodPost:
	default:
		return fmt.Errorf("method must be GET or POST; got %q", d.Method)
	}
	return nil
}

// ResponseEnvelope is the normalized result of a relay call.
// Content holds the decoded JSON body, or the raw text when the body is not JSON.
type ResponseEnvelope struct {
	Status  int `json:"status"`
	Content any `json:"content"`
}

// NewEnvelope builds an envelope with the given status and content.
func NewEnvelope(status int, content any) ResponseEnvelope {
	return ResponseEnvelope{Status: status, Content: content}
}
