package repository

import (
	"context"
	"time"
)

// Исход обработки одной доставки webhook
const (
	WebhookOutcomeUnmatched      = "unmatched"
	WebhookOutcomeSettled        = "settled"
	WebhookOutcomeAlreadySettled = "already_settled"
	WebhookOutcomeFailed         = "failed"
)

// WebhookEvent запись аудита: что прислал шлюз и чем закончилась обработка
type WebhookEvent struct {
	ID                 string
	ChargeReference    string
	RetrievalReference string
	Result             string
	Amount             string
	PaymentType        string
	Outcome            string
	Payload            []byte
	ReceivedAt         time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=WebhookLogRepository --dir=. --output=./mocks --outpkg=mocks

// WebhookLogRepository журнал входящих webhook
type WebhookLogRepository interface {
	RecordWebhookEvent(ctx context.Context, event WebhookEvent) error
}
