package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/infracdo/backoffice/platform/observability"
	"github.com/infracdo/backoffice/services/transaction/internal/authctx"
	"github.com/infracdo/backoffice/services/transaction/internal/repository"
	"github.com/infracdo/backoffice/services/transaction/internal/service"
)

const maxWebhookBodyBytes = 1 << 20

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=TransactionService --dir=. --output=./mocks --outpkg=mocks

// TransactionService операции, которые HTTP слой вызывает у service
type TransactionService interface {
	CreateTransaction(ctx context.Context, input service.CreateTransactionInput) (*service.CreateTransactionOutput, error)
	ListTransactions(ctx context.Context, input service.ListTransactionsInput) (*service.ListTransactionsOutput, error)
	ReconcileWebhook(ctx context.Context, payload service.WebhookPayload) (service.AckResponse, error)
}

// Handler содержит HTTP-обработчики Transaction Service
type Handler struct {
	svc    TransactionService
	logger *zap.Logger
}

// NewHandler создаёт новый HTTP handler
func NewHandler(svc TransactionService, logger *zap.Logger) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger,
	}
}

// PostResponse конверт ответа на создание
type PostResponse struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Data       any    `json:"data,omitempty"`
}

// GetResponse конверт ответа на список
type GetResponse struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Detail     string `json:"detail,omitempty"`
	Data       any    `json:"data"`
	TotalRows  int    `json:"total_rows"`
}

// TransactionResponse транзакция в HTTP ответе
type TransactionResponse struct {
	TransactionID      string    `json:"transaction_id"`
	UserID             string    `json:"user_id"`
	Type               string    `json:"type"`
	Status             string    `json:"status"`
	PaymentMethod      string    `json:"payment_method"`
	Amount             string    `json:"amount"`
	QRCodeString       string    `json:"qr_code_string"`
	ChargeReference    string    `json:"charge_reference"`
	RetrievalReference string    `json:"retrieval_reference"`
	RetrievalTimestamp string    `json:"retrieval_timestamp"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// CreatePaymentData data ответа на создание
type CreatePaymentData struct {
	Transaction  TransactionResponse `json:"transaction"`
	QRCodeString string              `json:"qr_code_string"`
}

// CreatePaymentRequest тело POST /payment; amount принимается числом или строкой
type CreatePaymentRequest struct {
	Amount        json.Number `json:"amount"`
	PaymentMethod string      `json:"payment_method"`
}

// WebhookRequest тело callback PayConnect
type WebhookRequest struct {
	Result             string        `json:"result"`
	RetrievalReference string        `json:"retrievalReference"`
	Amount             webhookAmount `json:"amount"`
	AuthCode           string        `json:"authCode"`
	PaymentCode        string        `json:"paymentCode"`
	Signature          string        `json:"signature"`
	ChargeReference    string        `json:"chargeReference"`
	Timestamp          string        `json:"timestamp"`
	PaymentType        string        `json:"paymentType"`
}

// webhookAmount шлюз присылает сумму то строкой, то числом
type webhookAmount string

func (a *webhookAmount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = webhookAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = webhookAmount(n.String())
	return nil
}

// PostPayment обрабатывает POST /payment - создание транзакции и выдача QR
func (h *Handler) PostPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := platformobservability.FromContext(ctx, h.logger)

	requester, ok := authctx.RequesterFromContext(ctx)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Token missing")
		return
	}

	var req CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Debug("create payment: decode failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, PostResponse{
			Status:     "error",
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid payload",
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, PostResponse{
			Status:     "error",
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid payload: amount is required",
		})
		return
	}

	result, err := h.svc.CreateTransaction(ctx, service.CreateTransactionInput{
		UserID:        requester.UserID,
		Amount:        amount,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrUserIDRequired):
			writeJSON(w, http.StatusBadRequest, PostResponse{
				Status:     "error",
				StatusCode: http.StatusBadRequest,
				Message:    "Invalid payload",
				Detail:     err.Error(),
			})
		default:
			// причина уже залогирована в service, наружу не отдаём
			writeJSON(w, http.StatusInternalServerError, PostResponse{
				Status:     "error",
				StatusCode: http.StatusInternalServerError,
				Message:    "Failed to generate QR",
				Detail:     "Failed to generate QR",
			})
		}
		return
	}

	writeJSON(w, http.StatusOK, PostResponse{
		Status:     "ok",
		StatusCode: http.StatusOK,
		Message:    "Payment transaction created successfully.",
		Data: CreatePaymentData{
			Transaction:  toTransactionResponse(result.Transaction),
			QRCodeString: result.QRCodeString,
		},
	})
}

// PostWebhook обрабатывает POST /payment/webhook - callback PayConnect.
// Ошибка хранилища отдаётся 5xx, чтобы шлюз повторил доставку.
func (h *Handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := platformobservability.FromContext(ctx, h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		logger.Warn("webhook: read body failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, service.AckResponse{ErrorCode: "0001", ErrorDescription: "invalid payload"})
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Warn("webhook: decode failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, service.AckResponse{ErrorCode: "0001", ErrorDescription: "invalid payload"})
		return
	}

	ack, err := h.svc.ReconcileWebhook(ctx, service.WebhookPayload{
		Result:             req.Result,
		RetrievalReference: req.RetrievalReference,
		Amount:             string(req.Amount),
		AuthCode:           req.AuthCode,
		PaymentCode:        req.PaymentCode,
		Signature:          req.Signature,
		ChargeReference:    req.ChargeReference,
		Timestamp:          req.Timestamp,
		PaymentType:        req.PaymentType,
		Raw:                body,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, service.AckResponse{ErrorCode: "9999", ErrorDescription: "temporary failure, retry"})
		return
	}

	writeJSON(w, http.StatusOK, ack)
}

// GetList обрабатывает GET /list - список транзакций с фильтрами и пагинацией
func (h *Handler) GetList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := platformobservability.FromContext(ctx, h.logger)

	requester, ok := authctx.RequesterFromContext(ctx)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Token missing")
		return
	}

	q := r.URL.Query()
	limit, err := parseOptionalInt(q.Get("limit"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, GetResponse{Status: "error", StatusCode: http.StatusBadRequest, Detail: "limit must be an integer", Data: []TransactionResponse{}})
		return
	}
	page, err := parseOptionalInt(q.Get("page"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, GetResponse{Status: "error", StatusCode: http.StatusBadRequest, Detail: "page must be an integer", Data: []TransactionResponse{}})
		return
	}

	result, err := h.svc.ListTransactions(ctx, service.ListTransactionsInput{
		Requester: requester,
		ID:        q.Get("id"),
		Search:    q.Get("search"),
		Status:    q.Get("status"),
		Limit:     limit,
		Page:      page,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidPagination) || errors.Is(err, service.ErrUserIDRequired) {
			writeJSON(w, http.StatusBadRequest, GetResponse{Status: "error", StatusCode: http.StatusBadRequest, Detail: err.Error(), Data: []TransactionResponse{}})
			return
		}
		logger.Error("list transactions failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, GetResponse{Status: "error", StatusCode: http.StatusInternalServerError, Detail: "failed to list transactions", Data: []TransactionResponse{}})
		return
	}

	data := make([]TransactionResponse, 0, len(result.Transactions))
	for _, tx := range result.Transactions {
		data = append(data, toTransactionResponse(tx))
	}

	writeJSON(w, http.StatusOK, GetResponse{
		Status:     "ok",
		StatusCode: http.StatusOK,
		Data:       data,
		TotalRows:  result.TotalRows,
	})
}

func toTransactionResponse(tx repository.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:      tx.TransactionID,
		UserID:             tx.UserID,
		Type:               tx.Type,
		Status:             tx.Status,
		PaymentMethod:      tx.PaymentMethod,
		Amount:             tx.Amount.StringFixed(2),
		QRCodeString:       tx.QRCodeString,
		ChargeReference:    tx.ChargeReference,
		RetrievalReference: tx.RetrievalReference,
		RetrievalTimestamp: tx.RetrievalTimestamp,
		CreatedAt:          tx.CreatedAt,
		UpdatedAt:          tx.UpdatedAt,
	}
}

func parseOptionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
