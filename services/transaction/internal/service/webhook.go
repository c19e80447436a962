package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/infracdo/backoffice/platform/observability"
	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

// EventTypePaymentCompleted тип события об успешной оплате транзакции
const EventTypePaymentCompleted = "transaction.payment.completed"

// WebhookPayload callback PayConnect об оплате.
// ChargeReference == transaction_id, отправленный в шлюз как merchantReferenceNumber.
// Signature принимается, но не проверяется: схема подписи шлюза не задокументирована.
type WebhookPayload struct {
	Result             string
	RetrievalReference string
	Amount             string
	AuthCode           string
	PaymentCode        string
	Signature          string
	ChargeReference    string
	Timestamp          string
	PaymentType        string
	// Raw исходное тело запроса для журнала
	Raw []byte
}

// AckResponse ответ шлюзу; шлюз повторяет доставку, пока не получит успешный ack
type AckResponse struct {
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

// SuccessAck единственный успешный ack, одинаковый для совпавших и несовпавших webhook
var SuccessAck = AckResponse{ErrorCode: "0000", ErrorDescription: "success"}

// SettlementEvent payload события transaction.payment.completed
type SettlementEvent struct {
	EventID            string `json:"event_id"`
	EventType          string `json:"event_type"`
	EventVersion       int    `json:"event_version"`
	OccurredAt         string `json:"occurred_at"`
	TransactionID      string `json:"transaction_id"`
	UserID             string `json:"user_id"`
	Amount             string `json:"amount"`
	PaymentMethod      string `json:"payment_method"`
	ChargeReference    string `json:"charge_reference"`
	RetrievalReference string `json:"retrieval_reference"`
}

// ReconcileWebhook сопоставляет webhook с транзакцией и переводит её в paid.
//   - нет транзакции: успешный ack, ничего не создаётся
//   - транзакция уже paid: успешный ack, состояние не меняется
//   - сбой хранилища: *PersistenceError, шлюз должен получить неуспешный ack и повторить
//
// Сумма из webhook никогда не переписывает сохранённую.
func (s *TransactionService) ReconcileWebhook(ctx context.Context, payload WebhookPayload) (AckResponse, error) {
	logger := platformobservability.FromContext(ctx, s.logger).With(
		zap.String("charge_reference", payload.ChargeReference),
		zap.String("retrieval_reference", payload.RetrievalReference),
	)
	logger.Info("payment webhook received",
		zap.String("result", payload.Result),
		zap.String("amount", payload.Amount),
		zap.String("payment_type", payload.PaymentType),
	)

	if payload.ChargeReference == "" {
		logger.Warn("webhook without charge reference, acknowledging")
		s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeUnmatched)
		return SuccessAck, nil
	}

	findCtx, cancelFind := s.opContext(ctx)
	tx, found, err := s.repo.FindByCorrelationKey(findCtx, payload.ChargeReference)
	cancelFind()
	if err != nil {
		logger.Error("failed to look up transaction for webhook", zap.Error(err))
		s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeFailed)
		return AckResponse{}, &PersistenceError{Op: "find", Err: err}
	}
	if !found {
		logger.Warn("webhook does not match any transaction, acknowledging")
		s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeUnmatched)
		return SuccessAck, nil
	}

	logger = logger.With(zap.String("transaction_id", tx.TransactionID))
	s.checkReportedAmount(logger, tx, payload.Amount)

	settlement := repository.Settlement{
		TransactionID:      tx.TransactionID,
		Status:             repository.StatusPaid,
		ChargeReference:    payload.ChargeReference,
		RetrievalReference: payload.RetrievalReference,
		RetrievalTimestamp: payload.Timestamp,
		SettledAt:          s.now().UTC(),
	}
	if s.cfg.SettlementTopic != "" {
		event, err := s.settlementEvent(tx, settlement)
		if err != nil {
			logger.Error("failed to build settlement event", zap.Error(err))
			s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeFailed)
			return AckResponse{}, fmt.Errorf("build settlement event: %w", err)
		}
		settlement.Event = event
	}

	updateCtx, cancelUpdate := s.opContext(ctx)
	applied, err := s.repo.UpdateOnSettlement(updateCtx, settlement)
	cancelUpdate()
	if err != nil {
		logger.Error("failed to settle transaction", zap.Error(err))
		s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeFailed)
		return AckResponse{}, &PersistenceError{Op: "update", Err: err}
	}

	if !applied {
		logger.Info("transaction already settled, skipping", zap.String("status", tx.Status))
		s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeAlreadySettled)
		return SuccessAck, nil
	}

	logger.Info("transaction settled",
		zap.String("amount", tx.Amount.StringFixed(2)),
		zap.String("retrieval_timestamp", payload.Timestamp),
	)
	s.finishWebhook(ctx, logger, payload, repository.WebhookOutcomeSettled)
	return SuccessAck, nil
}

// checkReportedAmount только логирует расхождение; сохранённая сумма остаётся источником истины
func (s *TransactionService) checkReportedAmount(logger *zap.Logger, tx repository.Transaction, reported string) {
	if reported == "" {
		return
	}
	amount, err := decimal.NewFromString(reported)
	if err != nil {
		logger.Warn("webhook amount is not a number", zap.String("reported_amount", reported))
		return
	}
	if !amount.Equal(tx.Amount) {
		logger.Warn("webhook amount differs from recorded amount, keeping recorded",
			zap.String("recorded_amount", tx.Amount.StringFixed(2)),
			zap.String("reported_amount", reported),
		)
	}
}

func (s *TransactionService) settlementEvent(tx repository.Transaction, st repository.Settlement) (*repository.OutboxEvent, error) {
	eventID := s.newID()
	payload, err := json.Marshal(SettlementEvent{
		EventID:            eventID,
		EventType:          EventTypePaymentCompleted,
		EventVersion:       1,
		OccurredAt:         st.SettledAt.Format(time.RFC3339),
		TransactionID:      tx.TransactionID,
		UserID:             tx.UserID,
		Amount:             tx.Amount.StringFixed(2),
		PaymentMethod:      tx.PaymentMethod,
		ChargeReference:    st.ChargeReference,
		RetrievalReference: st.RetrievalReference,
	})
	if err != nil {
		return nil, err
	}

	return &repository.OutboxEvent{
		EventID:     eventID,
		AggregateID: tx.TransactionID,
		Topic:       s.cfg.SettlementTopic,
		EventType:   EventTypePaymentCompleted,
		Payload:     payload,
		CreatedAt:   st.SettledAt,
	}, nil
}

// finishWebhook пишет метрику и журнал; ошибка журнала не влияет на ack
func (s *TransactionService) finishWebhook(ctx context.Context, logger *zap.Logger, payload WebhookPayload, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWebhook(outcome)
	}
	if s.webhookLog == nil {
		return
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	err := s.webhookLog.RecordWebhookEvent(opCtx, repository.WebhookEvent{
		ID:                 s.newID(),
		ChargeReference:    payload.ChargeReference,
		RetrievalReference: payload.RetrievalReference,
		Result:             payload.Result,
		Amount:             payload.Amount,
		PaymentType:        payload.PaymentType,
		Outcome:            outcome,
		Payload:            payload.Raw,
		ReceivedAt:         s.now().UTC(),
	})
	if err != nil {
		logger.Warn("failed to record webhook event", zap.Error(err), zap.String("outcome", outcome))
	}
}
