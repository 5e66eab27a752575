// Package metrics records client operation counts and latencies on the
// OpenTelemetry metric API. Without a meter provider every call is a no-op.
package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/lucannez64/skapauto-firefox-sub000/internal/api"
	"github.com/lucannez64/skapauto-firefox-sub000/internal/cache"
)

// Domains used as the "domain" attribute.
const (
	DomainAuth        = "auth"
	DomainCredentials = "credentials"
	DomainCache       = "cache"
	DomainHTTP        = "http"
)

// Status values used as the "status" attribute.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder records client metrics.
type Recorder interface {
	// RecordOperation counts one operation with its outcome.
	RecordOperation(ctx context.Context, domain, operation, status string)

	// RecordDuration records how long an operation took, in seconds.
	RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string)
}

type recorder struct {
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
}

// New creates a Recorder on mp. namespace prefixes every metric name.
func New(mp metric.MeterProvider, namespace string) (Recorder, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of client operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of client operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &recorder{
		operationCounter: operationCounter,
		durationHisto:    durationHisto,
	}, nil
}

func attrs(domain, operation, status string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("domain", domain),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)
}

func (r *recorder) RecordOperation(ctx context.Context, domain, operation, status string) {
	r.operationCounter.Add(ctx, 1, attrs(domain, operation, status))
}

func (r *recorder) RecordDuration(ctx context.Context, domain, operation string, duration time.Duration, status string) {
	r.durationHisto.Record(ctx, duration.Seconds(), attrs(domain, operation, status))
}

// NoOp discards everything.
type NoOp struct{}

func (NoOp) RecordOperation(context.Context, string, string, string) {}

func (NoOp) RecordDuration(context.Context, string, string, time.Duration, string) {}

// Status maps an error to a status attribute value.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// Observe records both the count and the duration of an operation that
// started at start.
func Observe(ctx context.Context, r Recorder, domain, operation string, start time.Time, err error) {
	status := Status(err)
	r.RecordOperation(ctx, domain, operation, status)
	r.RecordDuration(ctx, domain, operation, time.Since(start), status)
}

// APIObserver adapts r to the HTTP client's per-attempt hook. The status
// attribute is the HTTP status code, or "network_error" when no response
// arrived.
func APIObserver(r Recorder) api.Observer {
	return func(route string, status int, elapsed time.Duration) {
		s := "network_error"
		if status != 0 {
			s = strconv.Itoa(status)
		}
		ctx := context.Background()
		r.RecordOperation(ctx, DomainHTTP, route, s)
		r.RecordDuration(ctx, DomainHTTP, route, elapsed, s)
	}
}

// CacheObserver adapts r to the local cache's event hook.
func CacheObserver(r Recorder) cache.Observer {
	return func(event string) {
		r.RecordOperation(context.Background(), DomainCache, event, StatusSuccess)
	}
}
