package mockapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// fixedRand returns the same values on every call.
type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(int) int     { return r.n }

func newTestEcho(rnd Random) *echo.Echo {
	e := echo.New()
	Register(e, NewServerWithRandom(rnd, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestReadItem(t *testing.T) {
	e := newTestEcho(fixedRand{f: 0.5})

	rec := do(e, http.MethodGet, "/api/item/5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var item Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Item{ItemID: 5, Name: "Item 5", Value: 50.5}
	if item != want {
		t.Errorf("item = %+v, want %+v", item, want)
	}
}

func TestReadItem_Bounds(t *testing.T) {
	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/item/0", http.StatusOK},
		{"/api/item/100", http.StatusOK},
		{"/api/item/101", http.StatusNotFound},
		{"/api/item/-1", http.StatusNotFound},
		{"/api/item/abc", http.StatusUnprocessableEntity},
	}

	e := newTestEcho(fixedRand{})
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(e, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestReadItem_NotFoundDetail(t *testing.T) {
	rec := do(newTestEcho(fixedRand{}), http.MethodGet, "/api/item/500", "")

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["detail"] != "Item not found" {
		t.Errorf("detail = %q, want %q", body["detail"], "Item not found")
	}
}

func TestCreateItem(t *testing.T) {
	e := newTestEcho(fixedRand{n: 41})

	rec := do(e, http.MethodPost, "/api/item", `{"name":"widget","value":9.75}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var item Item
	if err := json.Unmarshal(rec.Body.Bytes(), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Item{ItemID: 42, Name: "widget", Value: 9.75}
	if item != want {
		t.Errorf("item = %+v, want %+v", item, want)
	}
}

func TestCreateItem_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `name=widget`},
		{"missing name", `{"value":1}`},
		{"missing value", `{"name":"widget"}`},
		{"value wrong type", `{"name":"widget","value":"high"}`},
	}

	e := newTestEcho(fixedRand{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/item", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
			}
		})
	}
}

func TestSimulateError(t *testing.T) {
	tests := []struct {
		name       string
		n          int
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{"failure", 0, http.StatusInternalServerError, "detail", ErrorDetail},
		{"success", 1, http.StatusOK, "message", "No error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestEcho(fixedRand{n: tt.n}), http.MethodGet, "/api/error", "")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body[tt.wantKey] != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantKey, body[tt.wantKey], tt.wantValue)
			}
		})
	}
}

func TestSeeded_Deterministic(t *testing.T) {
	a, b := Seeded(7), Seeded(7)
	for range 5 {
		if x, y := a.IntN(1000), b.IntN(1000); x != y {
			t.Fatalf("seeded sources diverged: %d != %d", x, y)
		}
	}
}

func TestLocked_ConcurrentUse(t *testing.T) {
	r := Seeded(1)
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if v := r.Float64(); v < 0 || v >= 1 {
					t.Errorf("Float64() = %v, want [0, 1)", v)
					return
				}
			}
		}()
	}
	wg.Wait()
}
