package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/labstack/echo/v4"

	"useapi-go/internal/metrics"
)

// findMetric returns the first sample of family name whose labels include all of want.
func findMetric(t *testing.T, m *metrics.Metrics, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			match := true
			for k, v := range want {
				if labels[k] != v {
					match = false
					break
				}
			}
			if match {
				return metric
			}
		}
	}
	return nil
}

func serve(e *echo.Echo, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.POST("/useapi", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	if rec := serve(e, http.MethodPost, "/useapi"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	metric := findMetric(t, m, "useapi_http_requests_total", map[string]string{
		"method": "POST", "status_code": "200", "path_prefix": "/useapi",
	})
	if metric == nil {
		t.Fatal("expected useapi_http_requests_total for POST /useapi")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/item/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve(e, http.MethodGet, "/api/item/7")

	metric := findMetric(t, m, "useapi_http_request_duration_seconds", map[string]string{"path_prefix": "/api/item"})
	if metric == nil || metric.GetHistogram().GetSampleCount() == 0 {
		t.Error("expected useapi_http_request_duration_seconds sample for /api/item")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/error", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "boom")
	})

	serve(e, http.MethodGet, "/api/error")

	if findMetric(t, m, "useapi_http_requests_total", map[string]string{"path_prefix": "/api/error", "status_code": "500"}) == nil {
		t.Error("expected useapi_http_requests_total with path_prefix=/api/error and status_code=500")
	}
}

func TestMetricsMiddleware_UnknownMethodNormalized(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.Any("/useapi", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve(e, "XYZZY", "/useapi")

	if findMetric(t, m, "useapi_http_requests_total", map[string]string{"path_prefix": "/useapi", "method": "other"}) == nil {
		t.Error("expected useapi_http_requests_total with method=other")
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(MetricsMiddleware(m))

	if rec := serve(e, http.MethodGet, "/nonexistent"); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	if findMetric(t, m, "useapi_http_requests_total", map[string]string{"path_prefix": "other", "method": "GET", "status_code": "404"}) == nil {
		t.Error("expected useapi_http_requests_total with path_prefix=other, method=GET, status_code=404")
	}
}

func TestMetricsMiddleware_InFlightReturnsToZero(t *testing.T) {
	m := metrics.New()
	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	serve(e, http.MethodGet, "/healthz")

	metric := findMetric(t, m, "useapi_http_requests_in_flight", nil)
	if metric == nil {
		t.Fatal("expected useapi_http_requests_in_flight gauge")
	}
	if v := metric.GetGauge().GetValue(); v != 0 {
		t.Errorf("in-flight = %v, want 0", v)
	}
}
