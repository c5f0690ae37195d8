package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// scrape renders the provider's registry the way Prometheus would see it.
func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

// manualMeter returns a meter provider whose data is collected on demand.
func manualMeter() (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)), reader
}

// collect indexes the collected metrics by name.
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

// sumOf adds the data points of an int64 counter whose attributes include every attrs pair.
func sumOf(t *testing.T, m metricdata.Metrics, attrs map[string]string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for k, v := range attrs {
			got, found := dp.Attributes.Value(attribute.Key(k))
			if !found || got.AsString() != v {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestNewProvider(t *testing.T) {
	t.Run("Success_RuntimeCollectorsRegistered", func(t *testing.T) {
		provider, err := NewProvider("keyvault")
		require.NoError(t, err)
		defer func() { assert.NoError(t, provider.Shutdown(context.Background())) }()

		out := scrape(t, provider)
		assert.Contains(t, out, "go_goroutines")
		assert.Contains(t, out, "keyvault_process_")
	})

	t.Run("Success_DurationHistogramsUseLatencyBuckets", func(t *testing.T) {
		provider, err := NewProvider("keyvault")
		require.NoError(t, err)
		defer func() { assert.NoError(t, provider.Shutdown(context.Background())) }()

		bm, err := NewBusinessMetrics(provider.MeterProvider(), "keyvault")
		require.NoError(t, err)
		bm.RecordDuration(context.Background(), "kms", "unwrap_key", 7*time.Millisecond, "success")

		out := scrape(t, provider)
		assert.Regexp(t, `keyvault_operation_duration_seconds_bucket\{[^}]*le="0\.01"[^}]*\} 1`, out)
		assert.Regexp(t, `keyvault_operation_duration_seconds_bucket\{[^}]*le="30"[^}]*\} 1`, out)
	})
}

func TestProvider_Shutdown(t *testing.T) {
	t.Run("Success_ShutdownProvider", func(t *testing.T) {
		provider, err := NewProvider("keyvault")
		require.NoError(t, err)

		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	t.Run("Success_ShutdownNilProvider", func(t *testing.T) {
		provider := &Provider{}

		assert.NoError(t, provider.Shutdown(context.Background()))
	})
}
