package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

// MemoryRepository реализует TransactionRepository, OutboxRepository и WebhookLogRepository в памяти.
// Используется для локальной разработки без PostgreSQL (STORAGE_DRIVER=memory) и в тестах.
// Все операции под одним мьютексом, поэтому settlement + outbox атомарны так же, как в БД.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string]repository.Transaction
	outbox       []repository.OutboxEvent
	webhooks     []repository.WebhookEvent
	now          func() time.Time
}

// NewMemoryRepository создаёт новый in-memory репозиторий
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[string]repository.Transaction),
		now:          time.Now,
	}
}

// Insert сохраняет новую транзакцию
func (r *MemoryRepository) Insert(ctx context.Context, tx repository.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.TransactionID]; exists {
		return &repository.ConflictError{TransactionID: tx.TransactionID}
	}

	now := r.now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}

	r.transactions[tx.TransactionID] = tx
	return nil
}

// FindByCorrelationKey ищет транзакцию по transaction_id
func (r *MemoryRepository) FindByCorrelationKey(ctx context.Context, key string) (repository.Transaction, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.transactions[key]
	return tx, exists, nil
}

// UpdateOnSettlement применяет settlement только к pending транзакции
func (r *MemoryRepository) UpdateOnSettlement(ctx context.Context, s repository.Settlement) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, exists := r.transactions[s.TransactionID]
	if !exists || tx.Status != repository.StatusPending {
		return false, nil
	}

	settledAt := s.SettledAt
	if settledAt.IsZero() {
		settledAt = r.now().UTC()
	}

	tx.Status = s.Status
	tx.ChargeReference = s.ChargeReference
	tx.RetrievalReference = s.RetrievalReference
	tx.RetrievalTimestamp = s.RetrievalTimestamp
	tx.UpdatedAt = settledAt
	r.transactions[s.TransactionID] = tx

	if s.Event != nil {
		event := *s.Event
		event.Status = repository.OutboxStatusPending
		if event.CreatedAt.IsZero() {
			event.CreatedAt = settledAt
		}
		r.outbox = append(r.outbox, event)
	}

	return true, nil
}

// List фильтрует транзакции так же, как postgres реализация
func (r *MemoryRepository) List(ctx context.Context, f repository.ListFilter) ([]repository.Transaction, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]repository.Transaction, 0)
	for _, tx := range r.transactions {
		if matchesFilter(tx, f) {
			matched = append(matched, tx)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].TransactionID < matched[j].TransactionID
	})

	total := len(matched)
	offset := f.Offset()
	if offset >= total {
		return []repository.Transaction{}, total, nil
	}
	end := total
	if f.Limit > 0 && offset+f.Limit < total {
		end = offset + f.Limit
	}

	return matched[offset:end], total, nil
}

func matchesFilter(tx repository.Transaction, f repository.ListFilter) bool {
	if f.ID != "" && tx.TransactionID != f.ID {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	if f.UserID != "" && tx.UserID != f.UserID {
		return false
	}
	if f.Search == "" {
		return true
	}

	search := strings.ToLower(f.Search)
	for _, field := range []string{tx.PaymentMethod, tx.Status, tx.Type, tx.ChargeReference} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	// сумма сравнивается целиком, как amount::text ILIKE в postgres
	return strings.EqualFold(tx.Amount.StringFixed(2), f.Search)
}

// GetPendingOutboxEvents возвращает pending события в порядке добавления
func (r *MemoryRepository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	events := make([]repository.OutboxEvent, 0)
	for _, e := range r.outbox {
		if e.Status != repository.OutboxStatusPending {
			continue
		}
		events = append(events, e)
		if limit > 0 && len(events) == limit {
			break
		}
	}
	return events, nil
}

// MarkOutboxEventSent помечает событие отправленным
func (r *MemoryRepository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return r.updateOutbox(eventID, func(e *repository.OutboxEvent) {
		e.Status = repository.OutboxStatusSent
	})
}

// MarkOutboxEventFailed сохраняет ошибку публикации
func (r *MemoryRepository) MarkOutboxEventFailed(ctx context.Context, eventID string, errString string) error {
	return r.updateOutbox(eventID, func(e *repository.OutboxEvent) {
		e.Status = repository.OutboxStatusFailed
		e.Attempts++
		e.LastError = errString
	})
}

// ResetOutboxEventPending возвращает событие в pending
func (r *MemoryRepository) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	return r.updateOutbox(eventID, func(e *repository.OutboxEvent) {
		e.Status = repository.OutboxStatusPending
	})
}

func (r *MemoryRepository) updateOutbox(eventID string, fn func(e *repository.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.outbox {
		if r.outbox[i].EventID == eventID {
			fn(&r.outbox[i])
			return nil
		}
	}
	return fmt.Errorf("%w: %s", repository.ErrOutboxEventNotFound, eventID)
}

// OutboxEvents возвращает копию всех событий outbox (для тестов и отладки)
func (r *MemoryRepository) OutboxEvents() []repository.OutboxEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.OutboxEvent, len(r.outbox))
	copy(out, r.outbox)
	return out
}

// RecordWebhookEvent добавляет запись в журнал webhook
func (r *MemoryRepository) RecordWebhookEvent(ctx context.Context, event repository.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = r.now().UTC()
	}
	r.webhooks = append(r.webhooks, event)
	return nil
}

// WebhookEvents возвращает копию журнала webhook
func (r *MemoryRepository) WebhookEvents() []repository.WebhookEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.WebhookEvent, len(r.webhooks))
	copy(out, r.webhooks)
	return out
}

// Count возвращает количество транзакций
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transactions)
}
