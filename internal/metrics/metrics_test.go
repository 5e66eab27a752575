package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/cache"
)

func newTestRecorder(t *testing.T) (Recorder, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r, err := New(provider, "skap")
	require.NoError(t, err)
	return r, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func counterValue(t *testing.T, data metricdata.Aggregation, domain, operation, status string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	require.True(t, ok, "expected Sum[int64], got %T", data)

	want := attribute.NewSet(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNew(t *testing.T) {
	t.Run("Success_WithProvider", func(t *testing.T) {
		r, _ := newTestRecorder(t)
		assert.NotNil(t, r)
	})

	t.Run("Success_NilProviderFallsBackToNoop", func(t *testing.T) {
		r, err := New(nil, "skap")
		require.NoError(t, err)
		r.RecordOperation(context.Background(), DomainAuth, "authenticate", StatusSuccess)
	})
}

func TestRecorder_RecordOperation(t *testing.T) {
	r, reader := newTestRecorder(t)
	ctx := context.Background()

	r.RecordOperation(ctx, DomainAuth, "authenticate", StatusSuccess)
	r.RecordOperation(ctx, DomainAuth, "authenticate", StatusSuccess)
	r.RecordOperation(ctx, DomainAuth, "authenticate", StatusError)

	data := collect(t, reader)
	counter := data["skap_operations_total"]
	require.NotNil(t, counter)
	assert.Equal(t, int64(2), counterValue(t, counter, DomainAuth, "authenticate", StatusSuccess))
	assert.Equal(t, int64(1), counterValue(t, counter, DomainAuth, "authenticate", StatusError))
}

func TestObserve(t *testing.T) {
	r, reader := newTestRecorder(t)

	Observe(context.Background(), r, DomainCredentials, "fetch_all", time.Now(), errors.New("boom"))

	data := collect(t, reader)
	assert.Equal(t, int64(1), counterValue(t, data["skap_operations_total"], DomainCredentials, "fetch_all", StatusError))

	histo, ok := data["skap_operation_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histo.DataPoints, 1)
	assert.Equal(t, uint64(1), histo.DataPoints[0].Count)
}

func TestAPIObserver(t *testing.T) {
	r, reader := newTestRecorder(t)
	obs := APIObserver(r)

	obs("challenge", 200, 5*time.Millisecond)
	obs("challenge", 0, time.Millisecond)

	data := collect(t, reader)
	counter := data["skap_operations_total"]
	assert.Equal(t, int64(1), counterValue(t, counter, DomainHTTP, "challenge", "200"))
	assert.Equal(t, int64(1), counterValue(t, counter, DomainHTTP, "challenge", "network_error"))
}

func TestCacheObserver(t *testing.T) {
	r, reader := newTestRecorder(t)
	obs := CacheObserver(r)

	obs(cache.EventHit)
	obs(cache.EventHit)
	obs(cache.EventHeal)

	data := collect(t, reader)
	counter := data["skap_operations_total"]
	assert.Equal(t, int64(2), counterValue(t, counter, DomainCache, cache.EventHit, StatusSuccess))
	assert.Equal(t, int64(1), counterValue(t, counter, DomainCache, cache.EventHeal, StatusSuccess))
}

func TestNoOp(t *testing.T) {
	var r Recorder = NoOp{}
	r.RecordOperation(context.Background(), DomainAuth, "x", StatusSuccess)
	r.RecordDuration(context.Background(), DomainAuth, "x", time.Second, StatusSuccess)
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusSuccess, Status(nil))
	assert.Equal(t, StatusError, Status(errors.New("x")))
}
