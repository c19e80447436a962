package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

// pgUniqueViolation SQLSTATE unique_violation
const pgUniqueViolation = "23505"

const transactionColumns = `transaction_id, user_id, type, status, payment_method, amount::text,
	qr_code_string, COALESCE(charge_reference, ''), COALESCE(retrieval_reference, ''),
	COALESCE(retrieval_timestamp, ''), created_at, updated_at`

// Repository реализует TransactionRepository, OutboxRepository и WebhookLogRepository на PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
	// psql builder с плейсхолдерами $1, $2, ... (по умолчанию squirrel ставит "?")
	psql sq.StatementBuilderType
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Insert сохраняет новую транзакцию; дубликат transaction_id -> *ConflictError
func (r *Repository) Insert(ctx context.Context, tx repository.Transaction) error {
	now := time.Now().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = tx.CreatedAt
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO transactions (transaction_id, user_id, type, status, payment_method, amount, qr_code_string, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.TransactionID, tx.UserID, tx.Type, tx.Status, tx.PaymentMethod, tx.Amount.String(), tx.QRCodeString, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return &repository.ConflictError{TransactionID: tx.TransactionID}
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// FindByCorrelationKey ищет транзакцию по transaction_id; pgx.ErrNoRows -> found=false
func (r *Repository) FindByCorrelationKey(ctx context.Context, key string) (repository.Transaction, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, key)

	tx, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Transaction{}, false, nil
		}
		return repository.Transaction{}, false, fmt.Errorf("find transaction: %w", err)
	}
	return tx, true, nil
}

// UpdateOnSettlement выполняет условный UPDATE ... WHERE status = 'pending'.
// Конкурентные webhook для одной строки сериализуются row lock'ом: применится ровно один,
// остальные увидят 0 affected rows. Outbox событие пишется в той же транзакции.
func (r *Repository) UpdateOnSettlement(ctx context.Context, s repository.Settlement) (bool, error) {
	settledAt := s.SettledAt
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}

	dbTx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin settlement: %w", err)
	}
	defer dbTx.Rollback(ctx)

	tag, err := dbTx.Exec(ctx,
		`UPDATE transactions
		 SET status = $2, charge_reference = $3, retrieval_reference = $4, retrieval_timestamp = $5, updated_at = $6
		 WHERE transaction_id = $1 AND status = $7`,
		s.TransactionID, s.Status, s.ChargeReference, s.RetrievalReference, s.RetrievalTimestamp, settledAt, repository.StatusPending)
	if err != nil {
		return false, fmt.Errorf("update settlement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if s.Event != nil {
		_, err = dbTx.Exec(ctx,
			`INSERT INTO outbox_events (event_id, aggregate_id, topic, event_type, payload, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.Event.EventID, s.Event.AggregateID, s.Event.Topic, s.Event.EventType, s.Event.Payload, repository.OutboxStatusPending, settledAt)
		if err != nil {
			return false, fmt.Errorf("insert outbox event: %w", err)
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit settlement: %w", err)
	}
	return true, nil
}

// List строит запрос через squirrel: фильтры опциональны, поэтому SQL собирается динамически
func (r *Repository) List(ctx context.Context, f repository.ListFilter) ([]repository.Transaction, int, error) {
	where := sq.And{}
	if f.ID != "" {
		where = append(where, sq.Eq{"transaction_id": f.ID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"status": f.Status})
	}
	if f.UserID != "" {
		where = append(where, sq.Eq{"user_id": f.UserID})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		where = append(where, sq.Or{
			sq.ILike{"payment_method": pattern},
			sq.ILike{"status": pattern},
			sq.ILike{"type": pattern},
			sq.ILike{"charge_reference": pattern},
			sq.Expr("amount::text ILIKE ?", f.Search),
		})
	}

	countSQL, countArgs, err := r.psql.Select("COUNT(*)").From("transactions").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	query := r.psql.Select(transactionColumns).
		From("transactions").
		Where(where).
		OrderBy("updated_at DESC", "transaction_id ASC")
	if f.Limit > 0 {
		query = query.Limit(uint64(f.Limit)).Offset(uint64(f.Offset()))
	}
	listSQL, listArgs, err := query.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	// пустой slice, а не nil: в JSON уйдёт [] вместо null
	result := make([]repository.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}

	return result, total, nil
}

// GetPendingOutboxEvents возвращает pending события в порядке создания
func (r *Repository) GetPendingOutboxEvents(ctx context.Context, limit int) ([]repository.OutboxEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT event_id, aggregate_id, topic, event_type, payload, status, attempts, COALESCE(last_error, ''), created_at
		 FROM outbox_events
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		repository.OutboxStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]repository.OutboxEvent, 0)
	for rows.Next() {
		var e repository.OutboxEvent
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.Topic, &e.EventType, &e.Payload, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return events, nil
}

// MarkOutboxEventSent помечает событие отправленным
func (r *Repository) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = $2, sent_at = now() WHERE event_id = $1`,
		eventID, repository.OutboxStatusSent)
	return outboxUpdated(tag, err, eventID)
}

// MarkOutboxEventFailed сохраняет last_error и увеличивает attempts
func (r *Repository) MarkOutboxEventFailed(ctx context.Context, eventID string, errString string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = $2, attempts = attempts + 1, last_error = $3 WHERE event_id = $1`,
		eventID, repository.OutboxStatusFailed, errString)
	return outboxUpdated(tag, err, eventID)
}

// ResetOutboxEventPending возвращает событие в pending
func (r *Repository) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET status = $2 WHERE event_id = $1`,
		eventID, repository.OutboxStatusPending)
	return outboxUpdated(tag, err, eventID)
}

// outboxUpdated превращает 0 affected rows в ErrOutboxEventNotFound
func outboxUpdated(tag pgconn.CommandTag, err error, eventID string) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", repository.ErrOutboxEventNotFound, eventID)
	}
	return nil
}

// RecordWebhookEvent пишет доставку webhook в журнал
func (r *Repository) RecordWebhookEvent(ctx context.Context, e repository.WebhookEvent) error {
	receivedAt := e.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhook_events (id, charge_reference, retrieval_reference, result, amount, payment_type, outcome, payload, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ChargeReference, e.RetrievalReference, e.Result, e.Amount, e.PaymentType, e.Outcome, payload, receivedAt)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// scanTransaction читает строку в порядке transactionColumns; amount приходит текстом
func scanTransaction(row pgx.Row) (repository.Transaction, error) {
	var tx repository.Transaction
	var amount string
	err := row.Scan(
		&tx.TransactionID, &tx.UserID, &tx.Type, &tx.Status, &tx.PaymentMethod, &amount,
		&tx.QRCodeString, &tx.ChargeReference, &tx.RetrievalReference,
		&tx.RetrievalTimestamp, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return repository.Transaction{}, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return repository.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return tx, nil
}
