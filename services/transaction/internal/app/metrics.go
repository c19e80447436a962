package app

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// transactionMetricsRecorder пишет длительность вызовов PayConnect и исходы webhook в OTLP
type transactionMetricsRecorder struct {
	gatewayDuration metric.Float64Histogram
	webhooks        metric.Int64Counter
}

func newTransactionMetricsRecorder() (*transactionMetricsRecorder, error) {
	meter := otel.Meter("transaction")

	hist, err := meter.Float64Histogram("payconnect_request_duration_ms",
		metric.WithDescription("PayConnect QR generation request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	counter, err := meter.Int64Counter("webhook_deliveries_total",
		metric.WithDescription("PayConnect webhook deliveries by outcome"),
	)
	if err != nil {
		return nil, err
	}

	return &transactionMetricsRecorder{gatewayDuration: hist, webhooks: counter}, nil
}

func (r *transactionMetricsRecorder) RecordGatewayCall(d time.Duration, result string) {
	r.gatewayDuration.Record(context.Background(), float64(d.Microseconds())/1000,
		metric.WithAttributes(attribute.String("result", result)))
}

func (r *transactionMetricsRecorder) RecordWebhook(outcome string) {
	r.webhooks.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
