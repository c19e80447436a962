//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/infracdo/backoffice/services/transaction/internal/repository"
)

func TestSessionRepository_Integration(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, container.Terminate(ctx))
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	repo := NewSessionRepository(client, zap.NewNop())

	t.Run("Save and Get", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "sid-1", repository.Session{UserID: "user-1", UserType: "admin"}, time.Minute))

		s, err := repo.Get(ctx, "sid-1")
		require.NoError(t, err)
		require.Equal(t, "user-1", s.UserID)
		require.Equal(t, "admin", s.UserType)

		fields, err := client.HGetAll(ctx, "session:sid-1").Result()
		require.NoError(t, err)
		require.Equal(t, map[string]string{hashFieldUserID: "user-1", hashFieldUserType: "admin"}, fields)

		ttl, err := client.TTL(ctx, "session:sid-1").Result()
		require.NoError(t, err)
		require.Greater(t, ttl, time.Duration(0))
	})

	t.Run("Get of expired session does not recreate the key", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, "sid-2", repository.Session{UserID: "user-2", UserType: "subscriber"}, time.Minute))
		require.NoError(t, client.Del(ctx, "session:sid-2").Err())

		_, err := repo.Get(ctx, "sid-2")
		require.ErrorIs(t, err, repository.ErrSessionNotFound)

		exists, err := client.Exists(ctx, "session:sid-2").Result()
		require.NoError(t, err)
		require.Zero(t, exists)
	})

	t.Run("Get missing session", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		require.ErrorIs(t, err, repository.ErrSessionNotFound)
	})
}
