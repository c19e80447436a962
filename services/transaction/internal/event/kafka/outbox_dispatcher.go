package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

// MessageWriter часть *kafka.Writer, нужная dispatcher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DispatcherConfig параметры цикла публикации
type DispatcherConfig struct {
	BatchSize  int
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// OutboxDispatcher публикует события об оплате из outbox в Kafka.
// Транзакции не трогает: читает только outbox и меняет статус событий.
type OutboxDispatcher struct {
	logger *zap.Logger
	repo   repository.OutboxRepository
	writer MessageWriter
	cfg    DispatcherConfig
}

// NewOutboxDispatcher создаёт новый outbox dispatcher
func NewOutboxDispatcher(logger *zap.Logger, repo repository.OutboxRepository, writer MessageWriter, cfg DispatcherConfig) *OutboxDispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &OutboxDispatcher{
		logger: logger,
		repo:   repo,
		writer: writer,
		cfg:    cfg,
	}
}

// Run крутит цикл публикации до отмены ctx
func (d *OutboxDispatcher) Run(ctx context.Context) {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("interval", d.cfg.Interval),
		zap.Int("max_retries", d.cfg.MaxRetries),
	)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox batch failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher stopped")
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce обрабатывает один батч pending событий и возвращает число опубликованных.
// Ошибка одного события не прерывает батч.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	events, err := d.repo.GetPendingOutboxEvents(ctx, d.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending outbox events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	d.logger.Debug("processing outbox batch", zap.Int("count", len(events)))

	published := 0
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		if err := d.dispatch(ctx, event); err != nil {
			if ctx.Err() != nil {
				return published, ctx.Err()
			}
			d.logger.Error("outbox event not published",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
			)
			continue
		}
		published++
	}

	return published, nil
}

// dispatch публикует событие с повторами; после исчерпания попыток фиксирует ошибку и возвращает событие в pending
func (d *OutboxDispatcher) dispatch(ctx context.Context, event repository.OutboxEvent) error {
	msg := kafka.Message{
		Topic: event.Topic,
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID)},
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxRetries; attempt++ {
		lastErr = d.writer.WriteMessages(ctx, msg)
		if lastErr == nil {
			if err := d.repo.MarkOutboxEventSent(ctx, event.EventID); err != nil {
				return fmt.Errorf("mark outbox event sent: %w", err)
			}
			d.logger.Info("outbox event published",
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.String("transaction_id", event.AggregateID),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		d.logger.Warn("failed to publish outbox event",
			zap.Error(lastErr),
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
		)

		if attempt < d.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	reason := fmt.Sprintf("failed after %d attempts: %v", d.cfg.MaxRetries, lastErr)
	if err := d.repo.MarkOutboxEventFailed(ctx, event.EventID, reason); err != nil {
		return errors.Join(lastErr, fmt.Errorf("mark outbox event failed: %w", err))
	}
	// следующий тик подберёт событие снова
	if err := d.repo.ResetOutboxEventPending(ctx, event.EventID); err != nil {
		d.logger.Error("failed to reset outbox event to pending",
			zap.Error(err),
			zap.String("event_id", event.EventID),
		)
	}

	return fmt.Errorf("publish outbox event: %w", lastErr)
}

// Close закрывает Kafka writer
func (d *OutboxDispatcher) Close() error {
	d.logger.Info("closing outbox dispatcher")
	return d.writer.Close()
}
