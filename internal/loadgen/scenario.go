package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"useapi-go/internal/model"
)

// Scenario builds the request a simulated user sends and extracts the status to record.
type Scenario interface {
	Name() string
	NewRequest(ctx context.Context, baseURL string) (*http.Request, error)
	// Status reports the outcome of a completed response.
	Status(resp *http.Response, body []byte) int
}

// GetSizeScenario posts a URL to /getsize.
type GetSizeScenario struct {
	URL string
}

func (s GetSizeScenario) Name() string { return "getsize" }

func (s GetSizeScenario) NewRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	return postJSON(ctx, baseURL, "/getsize", model.SizeRequest{URL: s.URL})
}

func (s GetSizeScenario) Status(resp *http.Response, _ []byte) int {
	return resp.StatusCode
}

// UseAPIScenario posts a descriptor to /useapi.
// The relay always answers 200, so the envelope status is recorded instead.
type UseAPIScenario struct {
	Descriptor model.RequestDescriptor
}

func (s UseAPIScenario) Name() string { return "useapi" }

func (s UseAPIScenario) NewRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	return postJSON(ctx, baseURL, "/useapi", s.Descriptor)
}

func (s UseAPIScenario) Status(resp *http.Response, body []byte) int {
	var env model.ResponseEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Status == 0 {
		return resp.StatusCode
	}
	return env.Status
}

func postJSON(ctx context.Context, baseURL, path string, v any) (*http.Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
