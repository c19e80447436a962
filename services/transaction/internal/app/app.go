package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	platformhealth "github.com/infracdo/backoffice/platform/health/http"
	platformkafka "github.com/infracdo/backoffice/platform/kafka"
	platformlogging "github.com/infracdo/backoffice/platform/logging"
	platformobservability "github.com/infracdo/backoffice/platform/observability"
	platformshutdown "github.com/infracdo/backoffice/platform/shutdown"
	httpapi "github.com/infracdo/backoffice/services/transaction/internal/api/http"
	"github.com/infracdo/backoffice/services/transaction/internal/api/http/middleware"
	"github.com/infracdo/backoffice/services/transaction/internal/client/payconnect"
	"github.com/infracdo/backoffice/services/transaction/internal/config"
	eventkafka "github.com/infracdo/backoffice/services/transaction/internal/event/kafka"
	"github.com/infracdo/backoffice/services/transaction/internal/repository"
	"github.com/infracdo/backoffice/services/transaction/internal/repository/memory"
	"github.com/infracdo/backoffice/services/transaction/internal/repository/postgres"
	redisrepo "github.com/infracdo/backoffice/services/transaction/internal/repository/redis"
	"github.com/infracdo/backoffice/services/transaction/internal/service"
)

// store всё, что нужно сервису и dispatcher от хранилища
type store interface {
	repository.TransactionRepository
	repository.OutboxRepository
	repository.WebhookLogRepository
}

// App содержит все зависимости для запуска и корректного shutdown Transaction Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	shutdownMgr *platformshutdown.Manager
	dispatcher  *eventkafka.OutboxDispatcher
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Transaction Service
func Build(cfg config.Config) (*App, error) {
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "transaction",
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Building Transaction service", zap.String("http_addr", cfg.HTTPAddr))
	cfg.Log(logger)

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	// при ошибке сборки закрываем всё, что уже успели открыть
	fail := func(err error) (*App, error) {
		shutdownMgr.Shutdown()
		platformlogging.Sync(logger)
		return nil, err
	}

	// OpenTelemetry: traces + metrics (noop если OTEL_ENABLED=false)
	otelShutdown, err := platformobservability.Init(context.Background(), platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           "transaction",
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return fail(fmt.Errorf("init otel: %w", err))
	}
	shutdownMgr.Add("otel", otelShutdown)

	var metrics service.MetricsRecorder
	if cfg.OTelEnabled {
		recorder, err := newTransactionMetricsRecorder()
		if err != nil {
			return fail(fmt.Errorf("init metrics: %w", err))
		}
		metrics = recorder
	}

	var (
		txStore store
		checks  []platformhealth.Check
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		txStore = memory.NewMemoryRepository()
	default:
		pool, err := connectPostgres(cfg, logger)
		if err != nil {
			return fail(err)
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
		txStore = postgres.NewRepository(pool)
		checks = append(checks, platformhealth.Check{Name: "postgres", Fn: pool.Ping})
	}

	// Redis опционален: без него вход только по JWT
	var sessions repository.SessionRepository
	if cfg.RedisAddr != "" {
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		shutdownMgr.Add("redis", platformshutdown.Close(redisClient))

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		logger.Info("Redis connection established")

		sessions = redisrepo.NewSessionRepository(redisClient, logger)
		checks = append(checks, platformhealth.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}

	gateway := payconnect.NewClient(logger, cfg.PayConnect)

	svcCfg := service.Config{OperationTimeout: cfg.OperationTimeout}
	if cfg.Kafka.Enabled {
		svcCfg.SettlementTopic = cfg.KafkaTransactionPaidTopic
	}
	transactionService := service.NewTransactionService(logger, gateway, txStore, txStore, metrics, svcCfg)

	handler := httpapi.NewHandler(transactionService, logger)
	auth := middleware.Auth(middleware.AuthConfig{Secret: cfg.JWTSecret, Algorithm: cfg.JWTAlgo}, sessions, logger)
	router := httpapi.NewRouter(handler, auth, platformhealth.Handler(2*time.Second, checks...), logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// запрос к шлюзу может занять PAYCONNECT_TIMEOUT
		WriteTimeout: cfg.PayConnect.Timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a := &App{
		logger:      logger,
		httpServer:  httpServer,
		shutdownMgr: shutdownMgr,
	}

	if cfg.Kafka.Enabled {
		logger.Info("Kafka publishing enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.KafkaTransactionPaidTopic),
		)
		a.dispatcher = eventkafka.NewOutboxDispatcher(logger, txStore, platformkafka.NewWriter(cfg.Kafka), eventkafka.DispatcherConfig{
			BatchSize:  cfg.Outbox.BatchSize,
			Interval:   cfg.Outbox.Interval,
			MaxRetries: cfg.Outbox.MaxRetries,
			Backoff:    cfg.Outbox.Backoff,
		})
	}

	return a, nil
}

// connectPostgres открывает pool, проверяет соединение и применяет миграции goose
func connectPostgres(cfg config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connection established")

	logger.Info("Applying database migrations", zap.String("dir", cfg.MigrationsDir))
	db, err := goose.OpenDBWithDriver("pgx", cfg.PostgresDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open migrations db: %w", err)
	}
	defer db.Close()

	if err := goose.UpContext(ctx, db, cfg.MigrationsDir); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	return pool, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown.
// Если HTTP сервер не смог стартовать или упал, Run возвращает его ошибку после shutdown.
func (a *App) Run() error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting Transaction service", zap.String("addr", a.httpServer.Addr))
	a.logger.Info("Health check available", zap.String("url", "http://"+a.httpServer.Addr+"/health"))

	if a.dispatcher != nil {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			a.dispatcher.Run(ctx)
		}()
		// dispatcher останавливается после HTTP сервера: shutdown идёт в обратном порядке
		a.shutdownMgr.Add("kafka_writer", func(context.Context) error { return a.dispatcher.Close() })
		a.shutdownMgr.Add("outbox_dispatcher", platformshutdown.StopWorker(cancel, done))
	}

	serverErr := make(chan error, 1)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			serverErr <- err
		}
	}()
	a.shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))

	// Ожидаем сигнал или падение сервера и выполняем shutdown
	ctx, cancel := context.WithCancel(context.Background())
	var runErr error
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case err := <-serverErr:
			runErr = fmt.Errorf("http server: %w", err)
			cancel()
		case <-ctx.Done():
		}
	}()
	a.shutdownMgr.Wait(ctx)
	cancel()
	<-watchDone

	a.wg.Wait()
	a.logger.Info("Transaction service stopped")
	return runErr
}
