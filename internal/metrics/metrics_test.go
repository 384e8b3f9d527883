package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boki-faas/boki/internal/metrics"
)

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := counter.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = c.(prometheus.Metric).Write(m)
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	_ = gauge.(prometheus.Metric).Write(m)
	return m.GetGauge().GetValue()
}

func getHistogramCount(t *testing.T, hist *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	o, err := hist.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	_ = o.(prometheus.Metric).Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestParseProcedure(t *testing.T) {
	tests := []struct {
		procedure string
		wantSvc   string
		wantMeth  string
	}{
		{"/boki.v1.FooService/BarMethod", "FooService", "BarMethod"},
		{"/boki.v1.EngineService/InvokeFunc", "EngineService", "InvokeFunc"},
		{"/simple.Service/Method", "Service", "Method"},
		{"invalid", "unknown", "unknown"},
		{"", "unknown", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.procedure, func(t *testing.T) {
			svc, method := metrics.ParseProcedure(tt.procedure)
			assert.Equal(t, tt.wantSvc, svc)
			assert.Equal(t, tt.wantMeth, method)
		})
	}
}

func TestHTTPMiddleware_RecordsRequestMetrics(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	beforeCount := getCounterValue(t, metrics.HTTPRequestsTotal, "POST", "/function", "200")
	beforeHistCount := getHistogramCount(t, metrics.HTTPRequestDuration, "POST", "/function")

	resp, err := http.Post(server.URL+"/function/echo", "application/octet-stream", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()

	afterCount := getCounterValue(t, metrics.HTTPRequestsTotal, "POST", "/function", "200")
	afterHistCount := getHistogramCount(t, metrics.HTTPRequestDuration, "POST", "/function")

	assert.Equal(t, float64(1), afterCount-beforeCount)
	assert.Equal(t, uint64(1), afterHistCount-beforeHistCount)
}

func TestHTTPMiddleware_NormalizesFunctionPaths(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	before := getCounterValue(t, metrics.HTTPRequestsTotal, "POST", "/function", "200")
	for _, name := range []string{"echo", "uppercase"} {
		resp, err := http.Post(server.URL+"/function/"+name, "application/octet-stream", nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	after := getCounterValue(t, metrics.HTTPRequestsTotal, "POST", "/function", "200")
	assert.Equal(t, float64(2), after-before, "distinct func names must collapse to one label")
}

func TestHTTPMiddleware_KeepsMetricsPathAsIs(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	before := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/metrics", "200")
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	after := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/metrics", "200")
	assert.Equal(t, float64(1), after-before)
}

func TestHTTPMiddleware_Records404(t *testing.T) {
	handler := metrics.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	server := httptest.NewServer(handler)
	defer server.Close()

	beforeCount := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/function", "404")

	resp, err := http.Get(server.URL + "/function/nonexistent")
	require.NoError(t, err)
	_ = resp.Body.Close()

	afterCount := getCounterValue(t, metrics.HTTPRequestsTotal, "GET", "/function", "404")
	assert.Equal(t, float64(1), afterCount-beforeCount)
}

func TestActiveEngineNodesGauge(t *testing.T) {
	before := getGaugeValue(t, metrics.ActiveEngineNodes)
	metrics.ActiveEngineNodes.Inc()
	after := getGaugeValue(t, metrics.ActiveEngineNodes)
	assert.Equal(t, float64(1), after-before)

	metrics.ActiveEngineNodes.Dec()
	afterDec := getGaugeValue(t, metrics.ActiveEngineNodes)
	assert.Equal(t, before, afterDec)
}

func TestActiveLogSpacesGauge(t *testing.T) {
	before := getGaugeValue(t, metrics.ActiveLogSpaces)
	metrics.ActiveLogSpaces.Inc()
	after := getGaugeValue(t, metrics.ActiveLogSpaces)
	assert.Equal(t, float64(1), after-before)

	metrics.ActiveLogSpaces.Dec()
	afterDec := getGaugeValue(t, metrics.ActiveLogSpaces)
	assert.Equal(t, before, afterDec)
}

func TestMetricsRegistered(t *testing.T) {
	count, err := testutil.GatherAndCount(prometheus.DefaultGatherer)
	require.NoError(t, err)
	assert.Greater(t, count, 0, "should have registered metrics")
}
