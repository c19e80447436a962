//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib" // драйвер pgx для goose

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

func setupRepository(t *testing.T) *Repository {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("transactions"),
		tcpostgres.WithUsername("transaction_user"),
		tcpostgres.WithPassword("transaction_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	defer db.Close()

	// контейнер может принять TCP раньше, чем postgres готов
	var pingErr error
	for i := 0; i < 10; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, pingErr, "Failed to ping database after retries")

	// internal/repository/postgres -> services/transaction/migrations
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok)
	serviceDir := filepath.Dir(filepath.Dir(filepath.Dir(filepath.Dir(filename))))
	require.NoError(t, goose.UpContext(ctx, db, filepath.Join(serviceDir, "migrations")))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewRepository(pool)
}

func pendingTransaction(id, userID, amount string) repository.Transaction {
	return repository.Transaction{
		TransactionID: id,
		UserID:        userID,
		Type:          repository.TypePayment,
		Status:        repository.StatusPending,
		PaymentMethod: "QRPH",
		Amount:        decimal.RequireFromString(amount),
		QRCodeString:  "QR-" + id,
	}
}

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()
	repo := setupRepository(t)

	t.Run("Insert and FindByCorrelationKey", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, pendingTransaction("tx-1", "user-1", "100.00")))

		got, found, err := repo.FindByCorrelationKey(ctx, "tx-1")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "user-1", got.UserID)
		require.Equal(t, repository.StatusPending, got.Status)
		require.Equal(t, "QR-tx-1", got.QRCodeString)
		require.Empty(t, got.ChargeReference)
		require.True(t, decimal.RequireFromString("100.00").Equal(got.Amount))
	})

	t.Run("Insert duplicate returns ConflictError", func(t *testing.T) {
		err := repo.Insert(ctx, pendingTransaction("tx-1", "user-1", "100.00"))
		require.Error(t, err)
		require.True(t, errors.Is(err, repository.ErrConflict), "Expected ErrConflict, got: %v", err)
	})

	t.Run("FindByCorrelationKey not found", func(t *testing.T) {
		_, found, err := repo.FindByCorrelationKey(ctx, "does-not-exist")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("UpdateOnSettlement is idempotent and writes outbox once", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, pendingTransaction("tx-2", "user-1", "250.00")))

		settlement := repository.Settlement{
			TransactionID:      "tx-2",
			Status:             repository.StatusPaid,
			ChargeReference:    "tx-2",
			RetrievalReference: "RR1",
			RetrievalTimestamp: "2024-01-01T00:00:00Z",
			Event: &repository.OutboxEvent{
				EventID:     "evt-tx-2",
				AggregateID: "tx-2",
				Topic:       "transaction.payment.completed",
				EventType:   "transaction.payment.completed",
				Payload:     []byte(`{"transaction_id":"tx-2"}`),
			},
		}

		applied, err := repo.UpdateOnSettlement(ctx, settlement)
		require.NoError(t, err)
		require.True(t, applied)

		applied, err = repo.UpdateOnSettlement(ctx, settlement)
		require.NoError(t, err)
		require.False(t, applied)

		got, _, err := repo.FindByCorrelationKey(ctx, "tx-2")
		require.NoError(t, err)
		require.Equal(t, repository.StatusPaid, got.Status)
		require.Equal(t, "tx-2", got.ChargeReference)
		require.Equal(t, "RR1", got.RetrievalReference)
		require.True(t, decimal.RequireFromString("250.00").Equal(got.Amount))

		events, err := repo.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, "evt-tx-2", events[0].EventID)
		require.JSONEq(t, `{"transaction_id":"tx-2"}`, string(events[0].Payload))

		require.NoError(t, repo.MarkOutboxEventSent(ctx, "evt-tx-2"))
		events, err = repo.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, events)
	})

	t.Run("outbox update of unknown event is reported", func(t *testing.T) {
		require.ErrorIs(t, repo.MarkOutboxEventSent(ctx, "evt-missing"), repository.ErrOutboxEventNotFound)
		require.ErrorIs(t, repo.MarkOutboxEventFailed(ctx, "evt-missing", "boom"), repository.ErrOutboxEventNotFound)
		require.ErrorIs(t, repo.ResetOutboxEventPending(ctx, "evt-missing"), repository.ErrOutboxEventNotFound)
	})

	t.Run("concurrent settlement applies once", func(t *testing.T) {
		require.NoError(t, repo.Insert(ctx, pendingTransaction("tx-3", "user-2", "75.50")))

		var appliedCount int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				applied, err := repo.UpdateOnSettlement(ctx, repository.Settlement{
					TransactionID:   "tx-3",
					Status:          repository.StatusPaid,
					ChargeReference: "tx-3",
				})
				require.NoError(t, err)
				if applied {
					atomic.AddInt32(&appliedCount, 1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), appliedCount)
	})

	t.Run("List filters and paginates", func(t *testing.T) {
		all, total, err := repo.List(ctx, repository.ListFilter{})
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Len(t, all, 3)

		own, total, err := repo.List(ctx, repository.ListFilter{UserID: "user-2"})
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Equal(t, "tx-3", own[0].TransactionID)

		paid, total, err := repo.List(ctx, repository.ListFilter{Search: "PAI"})
		require.NoError(t, err)
		require.Equal(t, 2, total)
		require.Len(t, paid, 2)

		byAmount, total, err := repo.List(ctx, repository.ListFilter{Search: "75.50"})
		require.NoError(t, err)
		require.Equal(t, 1, total)
		require.Equal(t, "tx-3", byAmount[0].TransactionID)

		page, total, err := repo.List(ctx, repository.ListFilter{Limit: 2, Page: 2})
		require.NoError(t, err)
		require.Equal(t, 3, total)
		require.Len(t, page, 1)
	})

	t.Run("RecordWebhookEvent", func(t *testing.T) {
		err := repo.RecordWebhookEvent(ctx, repository.WebhookEvent{
			ID:              "wh-1",
			ChargeReference: "does-not-exist",
			Amount:          "999.00",
			Outcome:         repository.WebhookOutcomeUnmatched,
			Payload:         []byte(`{"chargeReference":"does-not-exist"}`),
		})
		require.NoError(t, err)
	})
}
