package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"price-agent/metrics"
	"price-agent/models"
	"price-agent/scraper/mock"
	"price-agent/services"
	"price-agent/storage"
	"price-agent/utils"
)

func testLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard, utils.LogOptions{}) }

type fakeSearcher struct {
	err error
}

func (f fakeSearcher) Search(context.Context, string) (*models.Recommendation, error) {
	return nil, f.err
}

func (f fakeSearcher) Platforms() []string { return []string{"amazon"} }

func newEngineServer(t *testing.T, exporter storage.ListingExporter) (*Server, *metrics.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	day := func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) }
	providers := []services.SourceProvider{
		mock.New(models.PlatformAmazon, 3, day),
		mock.New(models.PlatformFlipkart, 3, day),
		mock.New(models.PlatformMeesho, 3, day),
	}
	reg := metrics.NewRegistry()
	engine := services.NewEngine(services.EngineConfig{Clock: day}, providers, storage.NewMemoryStore(), nil, reg, testLogger())
	return NewServer(engine, exporter, reg, testLogger()), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestSearchEndpointReturnsRecommendation(t *testing.T) {
	dir := t.TempDir()
	csvw, err := storage.NewCSVWriter(filepath.Join(dir, "listings.csv"))
	if err != nil {
		t.Fatalf("csv writer: %v", err)
	}
	defer csvw.Close()
	s, _ := newEngineServer(t, csvw)

	w := do(t, s.Handler(), http.MethodPost, "/api/search", `{"query":"wireless earbuds"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (%s)", w.Code, w.Body.String())
	}

	var rec models.Recommendation
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.BestProduct == nil || len(rec.AllProducts) != 9 {
		t.Errorf("expected best product and 9 listings, got %d", len(rec.AllProducts))
	}
	if rec.Summary == "" || rec.TimingAdvice == "" {
		t.Errorf("narrative missing: %+v", rec)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	s, _ := newEngineServer(t, nil)

	for _, body := range []string{`{}`, `{"query":"   "}`, `not json`} {
		w := do(t, s.Handler(), http.MethodPost, "/api/search", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %s: got %d, want 400", body, w.Code)
		}
	}
}

func TestFailureStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no matches", &models.SearchError{Kind: models.FailureNoResults, Err: models.ErrNoResults}, http.StatusNotFound},
		{"all providers down", &models.SearchError{Kind: models.FailureNoResults, Retryable: true, Unavailable: []string{"amazon"}}, http.StatusServiceUnavailable},
		{"store down", &models.SearchError{Kind: models.FailurePersistence, Retryable: true, Err: models.ErrPersistence}, http.StatusServiceUnavailable},
		{"validation", &models.SearchError{Kind: models.FailureValidation, Err: models.ErrValidation}, http.StatusBadRequest},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(fakeSearcher{err: tt.err}, nil, nil, testLogger())
			w := do(t, s.Handler(), http.MethodPost, "/api/search", `{"query":"tv"}`)
			if w.Code != tt.want {
				t.Errorf("status: got %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestStatsAreKeptPerServer(t *testing.T) {
	s, _ := newEngineServer(t, nil)
	do(t, s.Handler(), http.MethodPost, "/api/search", `{"query":"kettle"}`)
	do(t, s.Handler(), http.MethodPost, "/api/search", `{"query":"  "}`)

	other, _ := newEngineServer(t, nil)

	var got stats
	w := do(t, s.Handler(), http.MethodGet, "/api/stats", "")
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Searches != 2 || got.Succeeded != 1 || got.ByFailure["validation"] != 1 {
		t.Errorf("stats: got %+v", got)
	}

	w = do(t, other.Handler(), http.MethodGet, "/api/stats", "")
	if !strings.Contains(w.Body.String(), `"searches":0`) {
		t.Errorf("fresh server should start at zero: %s", w.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newEngineServer(t, nil)

	w := do(t, s.Handler(), http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "meesho") {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	do(t, s.Handler(), http.MethodPost, "/api/search", `{"query":"mixer"}`)
	w = do(t, s.Handler(), http.MethodGet, "/metrics", "")
	body := w.Body.String()
	for _, want := range []string{"priceagent_searches_total", fmt.Sprintf("priceagent_provider_fetches_total{outcome=%q,platform=%q}", "ok", "amazon")} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
