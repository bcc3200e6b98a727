package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics)
	r.Delete("/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodDelete, "/session/{id}", "204")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/session/"+id, nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	}

	assert.Equal(t, before+3, testutil.ToFloat64(counter))
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight))
}

func TestPrometheusMetrics_OutsideRouter(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "unknown", "200")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	PrometheusMetrics(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
