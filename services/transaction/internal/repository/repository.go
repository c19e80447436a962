package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TypePayment тип транзакции оплаты через QR
	TypePayment = "PAYMENT"

	// StatusPending транзакция создана, QR выдан, webhook ещё не пришёл
	StatusPending = "pending"
	// StatusPaid шлюз подтвердил оплату; из этого статуса переходов нет
	StatusPaid = "paid"
)

// Transaction представляет доменную модель платёжной транзакции.
// TransactionID генерируется локально и уходит в шлюз как merchantReferenceNumber;
// шлюз возвращает его в webhook как chargeReference.
type Transaction struct {
	TransactionID      string
	UserID             string
	Type               string
	Status             string
	PaymentMethod      string
	Amount             decimal.Decimal
	QRCodeString       string
	ChargeReference    string
	RetrievalReference string
	RetrievalTimestamp string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Settlement набор полей, которые webhook выставляет ровно один раз.
// Amount здесь нет: сумма из webhook не переписывает сохранённую.
type Settlement struct {
	TransactionID      string
	Status             string
	ChargeReference    string
	RetrievalReference string
	RetrievalTimestamp string
	SettledAt          time.Time
	// Event если не nil, сохраняется в outbox в той же транзакции БД, что и update
	Event *OutboxEvent
}

// ListFilter фильтры и пагинация для списка транзакций.
// Пустые строки означают "без фильтра"; Limit == 0 без ограничения.
type ListFilter struct {
	ID     string
	Search string
	Status string
	UserID string
	Limit  int
	Page   int
}

// Offset считает смещение для страницы (страницы нумеруются с 1)
func (f ListFilter) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=TransactionRepository --dir=. --output=./mocks --outpkg=mocks

// TransactionRepository определяет интерфейс хранилища транзакций
type TransactionRepository interface {
	// Insert сохраняет новую транзакцию; *ConflictError если transaction_id уже есть
	Insert(ctx context.Context, tx Transaction) error

	// FindByCorrelationKey ищет транзакцию по transaction_id (== chargeReference из webhook).
	// Отсутствие строки не ошибка: возвращается found=false, err=nil.
	FindByCorrelationKey(ctx context.Context, key string) (tx Transaction, found bool, err error)

	// UpdateOnSettlement атомарно переводит pending транзакцию в settled состояние.
	// Повторный вызов для уже оплаченной транзакции возвращает applied=false без ошибки.
	UpdateOnSettlement(ctx context.Context, s Settlement) (applied bool, err error)

	// List возвращает страницу транзакций (updated_at DESC) и общее число строк по фильтру
	List(ctx context.Context, f ListFilter) ([]Transaction, int, error)
}

// ErrConflict возвращается (через ConflictError), когда transaction_id уже существует
var ErrConflict = errors.New("transaction already exists")

// ConflictError попытка вставить транзакцию с существующим transaction_id
type ConflictError struct {
	TransactionID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction %s already exists", e.TransactionID)
}

// Is позволяет проверять errors.Is(err, ErrConflict)
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
