package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func routeSamples(t *testing.T, method, route string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	observer := httpRequestDurationSeconds.WithLabelValues(method, route)
	require.NoError(t, observer.(prometheus.Metric).Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestMiddlewareLabelsAPIRoutes(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/articles", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.Get("/sub-categories", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	okBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	badBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "400"))
	downBefore := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "503"))
	articlesBefore := routeSamples(t, "GET", "/v1/articles")
	subsBefore := routeSamples(t, "GET", "/v1/sub-categories")
	healthBefore := routeSamples(t, "GET", "/healthz")

	for _, target := range []string{
		"/v1/articles?page=2&limit=5",
		"/v1/articles?category=Tech",
		"/v1/sub-categories",
		"/healthz",
	} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	require.Equal(t, okBefore+2, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, badBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "400")))
	require.Equal(t, downBefore+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "503")))

	// Routes are labeled by pattern, so query strings never create new series.
	require.Equal(t, articlesBefore+2, routeSamples(t, "GET", "/v1/articles"))
	require.Equal(t, subsBefore+1, routeSamples(t, "GET", "/v1/sub-categories"))
	require.Equal(t, healthBefore+1, routeSamples(t, "GET", "/healthz"))
}
