package observability

import "time"

// Config конфигурация OpenTelemetry для одного сервиса
type Config struct {
	Enabled bool
	// OTLPEndpoint host:port OTLP gRPC collector, общий для traces и metrics
	OTLPEndpoint string
	// SamplingRatio 0..1; для входящих запросов с родительским span решение родителя сохраняется
	SamplingRatio float64

	ServiceName           string
	ServiceVersion        string
	DeploymentEnvironment string

	// MetricInterval период выгрузки метрик; 0 означает значение по умолчанию
	MetricInterval time.Duration
}
