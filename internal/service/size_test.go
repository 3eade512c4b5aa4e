package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"useapi-go/internal/config"
)

func newTestSize(cfg *config.Config) *SizeService {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.Size.TimeoutSeconds == 0 {
		cfg.Size.TimeoutSeconds = 10
	}
	return NewSizeService(cfg, discardLogger(), nil)
}

func TestMeasure_OK(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "probe/1.0" {
			t.Errorf("User-Agent = %q, want %q", ua, "probe/1.0")
		}
		_, _ = w.Write([]byte("héllo wörld"))
	}))
	defer upstream.Close()

	svc := newTestSize(&config.Config{Size: config.SizeConfig{UserAgent: "probe/1.0"}})

	res, err := svc.Measure(context.Background(), upstream.URL+"/page")
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}

	if res.URL != upstream.URL+"/page" {
		t.Errorf("URL = %q, want %q", res.URL, upstream.URL+"/page")
	}
	if res.Size != 11 {
		t.Errorf("Size = %d, want 11 characters", res.Size)
	}
	if res.TotalTime < 0 {
		t.Errorf("TotalTime = %v, want >= 0", res.TotalTime)
	}
	if res.RequestTimePercentage < 0 || res.RequestTimePercentage > 100 {
		t.Errorf("RequestTimePercentage = %v, want within [0, 100]", res.RequestTimePercentage)
	}
	if res.Timings.TTFB < 0 || res.Timings.Connect < 0 {
		t.Errorf("Timings = %+v, want non-negative", res.Timings)
	}
}

func TestMeasure_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	upstream := httptest.NewServer(mux)
	defer upstream.Close()

	svc := newTestSize(nil)

	res, err := svc.Measure(context.Background(), upstream.URL+"/old")
	if err != nil {
		t.Fatalf("Measure() error = %v", err)
	}
	if res.Size != len("moved") {
		t.Errorf("Size = %d, want %d", res.Size, len("moved"))
	}
}

func TestMeasure_UpstreamStatusError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer upstream.Close()

	svc := newTestSize(nil)

	_, err := svc.Measure(context.Background(), upstream.URL+"/missing")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Measure() error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("Code = %d, want %d", se.Code, http.StatusNotFound)
	}
	want := "Client error '404 Not Found' for url '" + upstream.URL + "/missing'"
	if se.Error() != want {
		t.Errorf("Error() = %q, want %q", se.Error(), want)
	}
}

func TestStatusError_ServerClass(t *testing.T) {
	err := &StatusError{Code: http.StatusBadGateway, URL: "http://x"}
	if !strings.HasPrefix(err.Error(), "Server error '502 Bad Gateway'") {
		t.Errorf("Error() = %q, want Server error prefix", err.Error())
	}
}

func TestMeasure_InvalidURL(t *testing.T) {
	svc := newTestSize(nil)

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "http://", "/relative/path"} {
		t.Run(raw, func(t *testing.T) {
			_, err := svc.Measure(context.Background(), raw)
			if !errors.Is(err, ErrInvalidURL) {
				t.Errorf("Measure(%q) error = %v, want ErrInvalidURL", raw, err)
			}
		})
	}
}

func TestMeasure_Unreachable(t *testing.T) {
	svc := newTestSize(nil)

	_, err := svc.Measure(context.Background(), "http://127.0.0.1:1/")
	if err == nil {
		t.Fatal("Measure() expected error for unreachable host, got nil")
	}
	var se *StatusError
	if errors.As(err, &se) {
		t.Errorf("error = %v, want transport error, not *StatusError", err)
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		v      float64
		places int
		want   float64
	}{
		{0.123456, 4, 0.1235},
		{97.4949, 2, 97.49},
		{50, 2, 50},
	}
	for _, tt := range tests {
		if got := round(tt.v, tt.places); got != tt.want {
			t.Errorf("round(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
		}
	}
}
