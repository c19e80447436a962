package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// setRequired выставляет обязательные переменные; ENV_FILE указывает на несуществующий файл
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYCONNECT_BASEURL", "https://payconnect.example.com")
}

func TestLoad_LocalDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "local")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, EnvLocal, cfg.AppEnv)
	require.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	require.Equal(t, StorageDriverPostgres, cfg.StorageDriver)
	require.Contains(t, cfg.PostgresDSN, "127.0.0.1:15432")
	require.Equal(t, "HS256", cfg.JWTAlgo)
	require.Equal(t, 5*time.Second, cfg.OperationTimeout)
	require.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 15*time.Second, cfg.PayConnect.Timeout)
	require.Equal(t, "QRPH-RBG", cfg.PayConnect.ProcessorCode)
	require.Equal(t, "static", cfg.PayConnect.InitMethod)
	require.Equal(t, "PHP", cfg.PayConnect.Currency)
	require.False(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"localhost:19092"}, cfg.Kafka.Brokers)
	require.Equal(t, "transaction.payment.completed", cfg.KafkaTransactionPaidTopic)
	require.Equal(t, 100, cfg.Outbox.BatchSize)
	require.Equal(t, 3, cfg.Outbox.MaxRetries)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, 1.0, cfg.OTelSamplingRatio)
}

func TestLoad_DockerDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "docker")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, EnvDocker, cfg.AppEnv)
	require.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr)
	require.Contains(t, cfg.PostgresDSN, "postgres:5432")
	require.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "otel-collector:4317", cfg.OTelEndpoint)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "docker")
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("OPERATION_TIMEOUT", "2s")
	t.Setenv("PAYCONNECT_TIMEOUT", "3s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_BACKOFF", "1s")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.HTTPAddr)
	require.Equal(t, StorageDriverMemory, cfg.StorageDriver)
	require.Equal(t, "redis:6379", cfg.RedisAddr)
	require.Equal(t, 2, cfg.RedisDB)
	require.Equal(t, 2*time.Second, cfg.OperationTimeout)
	require.Equal(t, 3*time.Second, cfg.PayConnect.Timeout)
	require.True(t, cfg.Kafka.Enabled)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, time.Second, cfg.Outbox.Backoff)
	require.Equal(t, 0.25, cfg.OTelSamplingRatio)
}

func TestLoad_DotEnvInLocal(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("JWT_SECRET=from-file\nPAYCONNECT_BASEURL=https://file.example.com\nHTTP_ADDR=127.0.0.1:7000\n"), 0o600))

	t.Setenv("APP_ENV", "local")
	t.Setenv("ENV_FILE", envFile)
	// godotenv не перетирает уже выставленные переменные
	t.Setenv("HTTP_ADDR", "127.0.0.1:7100")
	// переменные из файла попадают в окружение процесса; очищаем после теста
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PAYCONNECT_BASEURL", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))
	require.NoError(t, os.Unsetenv("PAYCONNECT_BASEURL"))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "from-file", cfg.JWTSecret)
	require.Equal(t, "https://file.example.com", cfg.PayConnect.BaseURL)
	require.Equal(t, "127.0.0.1:7100", cfg.HTTPAddr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		errorContains string
	}{
		{
			name:          "invalid APP_ENV",
			env:           map[string]string{"APP_ENV": "prod"},
			errorContains: "invalid APP_ENV",
		},
		{
			name:          "missing JWT secret",
			env:           map[string]string{"JWT_SECRET": ""},
			errorContains: "JWT_SECRET is required",
		},
		{
			name:          "missing gateway base url",
			env:           map[string]string{"PAYCONNECT_BASEURL": ""},
			errorContains: "PAYCONNECT_BASEURL is required",
		},
		{
			name:          "unsupported JWT algorithm",
			env:           map[string]string{"JWT_ALGO": "RS256"},
			errorContains: "unsupported JWT_ALGO",
		},
		{
			name:          "unknown storage driver",
			env:           map[string]string{"STORAGE_DRIVER": "sqlite"},
			errorContains: "invalid STORAGE_DRIVER",
		},
		{
			name:          "bad duration",
			env:           map[string]string{"OPERATION_TIMEOUT": "soon"},
			errorContains: "invalid OPERATION_TIMEOUT",
		},
		{
			name:          "bad integer",
			env:           map[string]string{"REDIS_DB": "one"},
			errorContains: "invalid REDIS_DB",
		},
		{
			name:          "sampling ratio out of range",
			env:           map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"},
			errorContains: "OTEL_TRACES_SAMPLER_ARG",
		},
		{
			name:          "kafka enabled with empty outbox batch",
			env:           map[string]string{"KAFKA_ENABLED": "true", "OUTBOX_BATCH_SIZE": "0"},
			errorContains: "OUTBOX_BATCH_SIZE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("APP_ENV", "docker")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()

			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestMaskDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "password masked",
			dsn:  "postgres://user:secret@db:5432/transactions?sslmode=disable",
			want: "postgres://user:***@db:5432/transactions?sslmode=disable",
		},
		{
			name: "no password",
			dsn:  "postgres://user@db:5432/transactions",
			want: "postgres://user@db:5432/transactions",
		},
		{
			name: "empty",
			dsn:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, maskDSN(tt.dsn))
		})
	}
}
