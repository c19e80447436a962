package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=GatewayClient --dir=. --output=./mocks --outpkg=mocks

// GatewayClient определяет интерфейс платёжного шлюза, выдающего QR строку
// Service не знает про HTTP и формат запросов PayConnect
type GatewayClient interface {
	// RequestPaymentQR возвращает сырую QR строку для оплаты транзакции transactionID на сумму amount
	RequestPaymentQR(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=MetricsRecorder --dir=. --output=./mocks --outpkg=mocks

// MetricsRecorder записывает метрики сервиса; nil означает, что метрики отключены
type MetricsRecorder interface {
	// RecordGatewayCall длительность вызова шлюза и результат ("ok"/"error")
	RecordGatewayCall(d time.Duration, result string)
	// RecordWebhook исход обработки webhook (unmatched/settled/already_settled/failed)
	RecordWebhook(outcome string)
}
