package repository

import (
	"context"
	"errors"
	"time"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"
)

// ErrOutboxEventNotFound события с таким event_id нет в outbox
var ErrOutboxEventNotFound = errors.New("outbox event not found")

// OutboxEvent событие, ожидающее публикации в Kafka
type OutboxEvent struct {
	EventID     string
	AggregateID string // transaction_id, используется как key сообщения
	Topic       string
	EventType   string
	Payload     []byte
	Status      string
	Attempts    int
	LastError   string
	CreatedAt   time.Time
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OutboxRepository --dir=. --output=./mocks --outpkg=mocks

// OutboxRepository работа с outbox таблицей для dispatcher.
// Mark/Reset для неизвестного event_id возвращают ErrOutboxEventNotFound.
type OutboxRepository interface {
	// GetPendingOutboxEvents возвращает до limit pending событий в порядке создания
	GetPendingOutboxEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	// MarkOutboxEventSent помечает событие отправленным
	MarkOutboxEventSent(ctx context.Context, eventID string) error
	// MarkOutboxEventFailed сохраняет ошибку и увеличивает attempts
	MarkOutboxEventFailed(ctx context.Context, eventID string, errString string) error
	// ResetOutboxEventPending возвращает событие в pending для следующего цикла
	ResetOutboxEventPending(ctx context.Context, eventID string) error
}
