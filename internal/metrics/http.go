package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// UnmatchedRoute labels requests that matched no route.
const UnmatchedRoute = "unmatched"

type httpInstruments struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
	rejected metric.Int64Counter
}

func newHTTPInstruments(meter metric.Meter, namespace string) (*httpInstruments, error) {
	requests, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("HTTP requests by route template and status class"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("HTTP request latency by route template"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(LatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}
	inflight, err := meter.Int64UpDownCounter(
		fmt.Sprintf("%s_http_requests_in_flight", namespace),
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	rejected, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_rejections_total", namespace),
		metric.WithDescription("Requests refused by authentication, policy, zero-trust or rate limiting"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, duration: duration, inflight: inflight, rejected: rejected}, nil
}

// HTTPMetricsMiddleware records request metrics labelled by route template, so every
// secret path shares the /v1/secrets/*path series. Instrument errors disable recording.
func HTTPMetricsMiddleware(meterProvider metric.MeterProvider, namespace string) gin.HandlerFunc {
	inst, err := newHTTPInstruments(meterProvider.Meter(namespace), namespace)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		route := RouteLabel(c.FullPath())
		routeAttrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
		)

		inst.inflight.Add(ctx, 1, routeAttrs)
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		inst.inflight.Add(ctx, -1, routeAttrs)

		status := c.Writer.Status()
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.String("status_class", StatusClass(status)),
		)
		inst.requests.Add(ctx, 1, attrs)
		inst.duration.Record(ctx, elapsed.Seconds(), attrs)

		if reason := rejectionReason(status); reason != "" {
			inst.rejected.Add(ctx, 1, metric.WithAttributes(
				attribute.String("route", route),
				attribute.String("reason", reason),
			))
		}
	}
}

// RouteLabel returns the gin route template, or UnmatchedRoute.
func RouteLabel(fullPath string) string {
	if fullPath == "" {
		return UnmatchedRoute
	}
	return fullPath
}

// StatusClass maps 404 to "4xx".
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}

func rejectionReason(code int) string {
	switch code {
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	return ""
}
