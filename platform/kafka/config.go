package kafka

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/segmentio/kafka-go"
)

// Config содержит конфигурацию подключения к Kafka.
// Брокеры зависят от среды: go run на хосте localhost:19092, в Docker kafka:9092.
type Config struct {
	// Enabled включает публикацию событий; при false outbox не заполняется
	Enabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Brokers список брокеров через запятую: "broker1:9092,broker2:9092"
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	// WriteTimeout таймаут записи батча
	WriteTimeout time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"10s"`
}

// DefaultConfig возвращает конфигурацию для локальной разработки.
func DefaultConfig() Config {
	return Config{
		Brokers:      []string{"localhost:19092"},
		WriteTimeout: 10 * time.Second,
	}
}

// LoadEnv загружает конфигурацию из переменных окружения (caarlos0/env/v10)
func LoadEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse kafka env: %w", err)
	}
	return nil
}

// NewWriter создаёт kafka.Writer без фиксированного топика: топик задаётся в каждом сообщении.
func NewWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{}, // одинаковый key (transaction_id) -> одна партиция
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
