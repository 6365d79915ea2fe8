package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2beens/healthpulse/internal/telemetry/metrics"
)

func TestRequestMetrics(t *testing.T) {
	metricsManager, reg := metrics.NewTestManagerAndRegistry()

	r := mux.NewRouter()
	r.HandleFunc("/api/user/profile/{username}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Use(RequestMetrics(metricsManager))

	for _, username := range []string{"ana", "bo"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/user/profile/"+username, nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(metricsManager.CounterRequests.WithLabelValues("GET", "404")))

	// one series for both usernames
	count, err := testutil.GatherAndCount(reg, "healthpulse_test_server_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
