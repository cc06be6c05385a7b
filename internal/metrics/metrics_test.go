package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveLoad(t *testing.T) {
	m := New()
	m.ObserveLoad("fato_saldo_receita", 10, 2, 1, time.Second)
	m.ObserveLoad("fato_saldo_receita", 5, 0, 0, time.Second)

	out := scrape(t, m.Handler())
	assert.Contains(t, out, `orcamento_load_rows_total{table="fato_saldo_receita"} 15`)
	assert.Contains(t, out, `orcamento_load_failed_rows_total{table="fato_saldo_receita"} 2`)
	assert.Contains(t, out, `orcamento_load_failed_chunks_total{table="fato_saldo_receita"} 1`)
	assert.Contains(t, out, `orcamento_load_duration_seconds_count{table="fato_saldo_receita"} 2`)
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/reports/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/rreo-anexo1", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	m.ObserveCache("rreo-anexo1", true)
	m.ObserveReportBuild("rreo-anexo1", time.Millisecond)

	out := scrape(t, m.Handler())
	assert.Contains(t, out, `orcamento_http_requests_total{code="418",route="/v1/reports/{name}"} 1`)
	assert.Contains(t, out, `orcamento_report_cache_total{report="rreo-anexo1",result="hit"} 1`)
	assert.Contains(t, out, `orcamento_report_build_duration_seconds_count{report="rreo-anexo1"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLoad("t", 1, 0, 0, time.Second)
	m.ObserveCache("r", false)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
