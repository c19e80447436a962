package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	platformobservability "github.com/infracdo/backoffice/platform/observability"
	"github.com/infracdo/backoffice/services/transaction/internal/authctx"
	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

// DefaultPaymentMethod метод оплаты, если клиент его не указал
const DefaultPaymentMethod = "QRPH"

// MaxAmount максимальная сумма, которую вмещает колонка amount NUMERIC(14,2)
var MaxAmount = decimal.RequireFromString("999999999999.99")

// Config параметры service слоя
type Config struct {
	// OperationTimeout ограничение на каждый запрос к хранилищу
	OperationTimeout time.Duration
	// SettlementTopic топик события об оплате; при пустом событие в outbox не пишется
	SettlementTopic string
}

// TransactionService бизнес-логика платёжных транзакций: создание через шлюз и сверка webhook
type TransactionService struct {
	logger     *zap.Logger
	gateway    GatewayClient
	repo       repository.TransactionRepository
	webhookLog repository.WebhookLogRepository
	metrics    MetricsRecorder
	cfg        Config

	newID func() string
	now   func() time.Time
}

// NewTransactionService создаёт новый экземпляр TransactionService
// metrics может быть nil
func NewTransactionService(
	logger *zap.Logger,
	gateway GatewayClient,
	repo repository.TransactionRepository,
	webhookLog repository.WebhookLogRepository,
	metrics MetricsRecorder,
	cfg Config,
) *TransactionService {
	return &TransactionService{
		logger:     logger,
		gateway:    gateway,
		repo:       repo,
		webhookLog: webhookLog,
		metrics:    metrics,
		cfg:        cfg,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// CreateTransactionInput входные данные для создания транзакции
type CreateTransactionInput struct {
	UserID        string
	Amount        decimal.Decimal
	PaymentMethod string
}

// CreateTransactionOutput сохранённая транзакция и QR строка для отображения клиенту
type CreateTransactionOutput struct {
	Transaction  repository.Transaction
	QRCodeString string
}

// billableAmount сумма уходит в шлюз и в хранилище без округления и помещается в колонку amount
func billableAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() &&
		amount.Equal(amount.Round(2)) &&
		amount.LessThanOrEqual(MaxAmount)
}

// CreateTransaction запрашивает QR у шлюза и сохраняет pending транзакцию.
// transaction_id генерируется до вызова шлюза. Если шлюз вернул ошибку, ничего не сохраняется.
// Любая ошибка шлюза или хранилища отдаётся как ErrCreateFailed, причина остаётся в цепочке и в логах.
func (s *TransactionService) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*CreateTransactionOutput, error) {
	if input.UserID == "" {
		return nil, ErrUserIDRequired
	}
	if !billableAmount(input.Amount) {
		return nil, ErrInvalidAmount
	}
	paymentMethod := input.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}

	transactionID := s.newID()
	logger := platformobservability.FromContext(ctx, s.logger).With(
		zap.String("transaction_id", transactionID),
		zap.String("user_id", input.UserID),
	)

	start := time.Now()
	qr, err := s.gateway.RequestPaymentQR(ctx, transactionID, input.Amount)
	if err != nil {
		s.recordGatewayCall(time.Since(start), "error")
		logger.Error("payment gateway QR generation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	s.recordGatewayCall(time.Since(start), "ok")

	now := s.now().UTC()
	tx := repository.Transaction{
		TransactionID: transactionID,
		UserID:        input.UserID,
		Type:          repository.TypePayment,
		Status:        repository.StatusPending,
		PaymentMethod: paymentMethod,
		Amount:        input.Amount,
		QRCodeString:  qr,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.repo.Insert(opCtx, tx); err != nil {
		// QR у шлюза уже выдан, локальной записи нет: webhook по нему придёт как unmatched
		logger.Error("failed to persist transaction after QR generation", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrCreateFailed, &PersistenceError{Op: "insert", Err: err})
	}

	logger.Info("payment transaction created",
		zap.String("amount", input.Amount.StringFixed(2)),
		zap.String("payment_method", paymentMethod),
	)

	return &CreateTransactionOutput{
		Transaction:  tx,
		QRCodeString: qr,
	}, nil
}

// ListTransactionsInput фильтры списка; Requester определяет видимость
type ListTransactionsInput struct {
	Requester authctx.Requester
	ID        string
	Search    string
	Status    string
	Limit     int
	Page      int
}

// ListTransactionsOutput страница транзакций и общее количество по фильтру
type ListTransactionsOutput struct {
	Transactions []repository.Transaction
	TotalRows    int
}

// ListTransactions возвращает транзакции; не admin/support видят только свои
func (s *TransactionService) ListTransactions(ctx context.Context, input ListTransactionsInput) (*ListTransactionsOutput, error) {
	if input.Limit < 0 || input.Page < 0 {
		return nil, ErrInvalidPagination
	}

	filter := repository.ListFilter{
		ID:     input.ID,
		Search: input.Search,
		Status: input.Status,
		Limit:  input.Limit,
		Page:   input.Page,
	}
	if !input.Requester.CanSeeAllTransactions() {
		if input.Requester.UserID == "" {
			return nil, ErrUserIDRequired
		}
		filter.UserID = input.Requester.UserID
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	transactions, total, err := s.repo.List(opCtx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", &PersistenceError{Op: "list", Err: err})
	}

	return &ListTransactionsOutput{
		Transactions: transactions,
		TotalRows:    total,
	}, nil
}

func (s *TransactionService) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *TransactionService) recordGatewayCall(d time.Duration, result string) {
	if s.metrics != nil {
		s.metrics.RecordGatewayCall(d, result)
	}
}
