package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
	"github.com/infracdo/backoffice/services/transaction/internal/repository/memory"
	repoMocks "github.com/infracdo/backoffice/services/transaction/internal/repository/mocks"
)

type stubWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	messages []kafka.Message
	closed   bool
}

func (w *stubWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("broker not available")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *stubWriter) Close() error {
	w.closed = true
	return nil
}

func seedSettled(t *testing.T, repo *memory.MemoryRepository, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, repository.Transaction{
		TransactionID: id,
		UserID:        "user-1",
		Status:        repository.StatusPending,
		Amount:        decimal.NewFromInt(100),
	}))
	applied, err := repo.UpdateOnSettlement(ctx, repository.Settlement{
		TransactionID: id,
		Status:        repository.StatusPaid,
		Event: &repository.OutboxEvent{
			EventID:     "evt-" + id,
			AggregateID: id,
			Topic:       "transaction.payment.completed",
			EventType:   "transaction.payment.completed",
			Payload:     []byte(`{"transaction_id":"` + id + `"}`),
		},
	})
	require.NoError(t, err)
	require.True(t, applied)
}

func TestOutboxDispatcher_DispatchOnce(t *testing.T) {
	tests := []struct {
		name           string
		failures       int
		maxRetries     int
		expectedSent   int
		expectedStatus string
		expectedCalls  int
	}{
		{
			name:           "published on first attempt",
			maxRetries:     3,
			expectedSent:   1,
			expectedStatus: repository.OutboxStatusSent,
			expectedCalls:  1,
		},
		{
			name:           "published after retry",
			failures:       2,
			maxRetries:     3,
			expectedSent:   1,
			expectedStatus: repository.OutboxStatusSent,
			expectedCalls:  3,
		},
		{
			name:           "retries exhausted, back to pending",
			failures:       5,
			maxRetries:     2,
			expectedSent:   0,
			expectedStatus: repository.OutboxStatusPending,
			expectedCalls:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memory.NewMemoryRepository()
			seedSettled(t, repo, "tx-1")
			writer := &stubWriter{failures: tt.failures}
			d := NewOutboxDispatcher(zap.NewNop(), repo, writer, DispatcherConfig{
				BatchSize:  10,
				Interval:   time.Second,
				MaxRetries: tt.maxRetries,
				Backoff:    time.Millisecond,
			})

			sent, err := d.DispatchOnce(context.Background())

			require.NoError(t, err)
			require.Equal(t, tt.expectedSent, sent)
			require.Equal(t, tt.expectedCalls, writer.calls)

			events := repo.OutboxEvents()
			require.Len(t, events, 1)
			require.Equal(t, tt.expectedStatus, events[0].Status)
			if tt.expectedSent == 0 {
				require.Equal(t, 1, events[0].Attempts)
				require.Contains(t, events[0].LastError, "broker not available")
				return
			}

			require.Len(t, writer.messages, 1)
			msg := writer.messages[0]
			require.Equal(t, "transaction.payment.completed", msg.Topic)
			require.Equal(t, []byte("tx-1"), msg.Key)
			require.JSONEq(t, `{"transaction_id":"tx-1"}`, string(msg.Value))
		})
	}
}

func TestOutboxDispatcher_SentEventsNotRepublished(t *testing.T) {
	repo := memory.NewMemoryRepository()
	seedSettled(t, repo, "tx-1")
	seedSettled(t, repo, "tx-2")
	writer := &stubWriter{}
	d := NewOutboxDispatcher(zap.NewNop(), repo, writer, DispatcherConfig{BatchSize: 10, MaxRetries: 1})

	sent, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sent)

	sent, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sent)
	require.Len(t, writer.messages, 2)
}

func TestOutboxDispatcher_RepositoryFailure(t *testing.T) {
	repo := repoMocks.NewOutboxRepository(t)
	repo.On("GetPendingOutboxEvents", mock.Anything, 10).Return(nil, errors.New("connection refused")).Once()
	d := NewOutboxDispatcher(zap.NewNop(), repo, &stubWriter{}, DispatcherConfig{BatchSize: 10, MaxRetries: 1})

	sent, err := d.DispatchOnce(context.Background())

	require.Error(t, err)
	require.Zero(t, sent)
}

func TestOutboxDispatcher_MarkSentFailure(t *testing.T) {
	repo := repoMocks.NewOutboxRepository(t)
	event := repository.OutboxEvent{EventID: "evt-1", AggregateID: "tx-1", Topic: "t", Payload: []byte(`{}`)}
	repo.On("GetPendingOutboxEvents", mock.Anything, 10).Return([]repository.OutboxEvent{event}, nil).Once()
	repo.On("MarkOutboxEventSent", mock.Anything, "evt-1").Return(errors.New("tx aborted")).Once()
	d := NewOutboxDispatcher(zap.NewNop(), repo, &stubWriter{}, DispatcherConfig{BatchSize: 10, MaxRetries: 1})

	sent, err := d.DispatchOnce(context.Background())

	require.NoError(t, err)
	require.Zero(t, sent)
}

func TestOutboxDispatcher_RunStopsOnCancel(t *testing.T) {
	repo := memory.NewMemoryRepository()
	seedSettled(t, repo, "tx-1")
	writer := &stubWriter{}
	d := NewOutboxDispatcher(zap.NewNop(), repo, writer, DispatcherConfig{BatchSize: 10, Interval: 10 * time.Millisecond, MaxRetries: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return repo.OutboxEvents()[0].Status == repository.OutboxStatusSent
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}

	require.NoError(t, d.Close())
	require.True(t, writer.closed)
}
