package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

const (
	hashFieldUserID   = "user_id"
	hashFieldUserType = "user_type"
)

// SessionRepository читает сессии из Redis hash session:<id>, которые пишет сервис авторизации.
// Ключ принадлежит сервису авторизации, Get его не изменяет.
type SessionRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewSessionRepository создаёт новый Redis session repository
func NewSessionRepository(client *redis.Client, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client: client,
		logger: logger,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// Get возвращает сессию; отсутствующий ключ или пустой user_id -> ErrSessionNotFound
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (repository.Session, error) {
	key := sessionKey(sessionID)

	values, err := r.client.HMGet(ctx, key, hashFieldUserID, hashFieldUserType).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return repository.Session{}, repository.ErrSessionNotFound
		}
		r.logger.Error("failed to get session hash from redis",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
		return repository.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	// HMGET на несуществующий ключ возвращает nil для каждого поля
	userID, _ := values[0].(string)
	if userID == "" {
		r.logger.Debug("session hash not found", zap.String("session_id", sessionID))
		return repository.Session{}, repository.ErrSessionNotFound
	}
	userType, _ := values[1].(string)

	return repository.Session{UserID: userID, UserType: userType}, nil
}

// Save записывает сессию с TTL (используется сервисом авторизации и тестами)
func (r *SessionRepository) Save(ctx context.Context, sessionID string, s repository.Session, ttl time.Duration) error {
	key := sessionKey(sessionID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, hashFieldUserID, s.UserID, hashFieldUserType, s.UserType)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
