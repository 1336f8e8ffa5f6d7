package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.ozon.dev/qwestard/atabuy/internal/audit"
	"gitlab.ozon.dev/qwestard/atabuy/internal/cache"
	"gitlab.ozon.dev/qwestard/atabuy/internal/config"
	"gitlab.ozon.dev/qwestard/atabuy/internal/db"
	"gitlab.ozon.dev/qwestard/atabuy/internal/kafka"
	taskprocessor "gitlab.ozon.dev/qwestard/atabuy/internal/processor"
	"gitlab.ozon.dev/qwestard/atabuy/internal/repository"
	"gitlab.ozon.dev/qwestard/atabuy/internal/server"
	"gitlab.ozon.dev/qwestard/atabuy/internal/service"
	"gitlab.ozon.dev/qwestard/atabuy/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

func run() error {
	cfg := config.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	processors := []audit.AuditLogProcessor{&audit.StdoutProcessor{Filter: cfg.FilterWord}}

	var repo repository.Repository
	var outbox service.Outbox
	var producer *kafka.SaramaProducer
	var sqlDB *sql.DB
	if cfg.KafkaEnabled {
		var err error
		producer, err = kafka.NewSaramaProducer(cfg.KafkaBrokers)
		if err != nil {
			return err
		}
		defer producer.Close()
	}

	if cfg.UsePostgres() {
		database, err := db.NewDB(ctx, cfg.DSN, cfg.MigrationsDir)
		if err != nil {
			return err
		}
		defer database.Close()
		sqlDB = database

		repo = repository.NewOrderRepository(database)
		processors = append(processors, audit.NewDBProcessor(database))

		if producer != nil {
			tasks := repository.NewPostgresTaskRepository(database)
			outbox = tasks
			relay := taskprocessor.NewTaskProcessor(tasks, producer, taskprocessor.Config{
				Topic:        cfg.KafkaTopic,
				PollInterval: cfg.OutboxPollInterval,
				BatchSize:    cfg.OutboxBatchSize,
				MaxAttempts:  cfg.OutboxMaxAttempts,
				RetryDelay:   cfg.OutboxRetryDelay,
			})
			go relay.Start(ctx)
		}
	} else {
		log.Printf("[server] APP_DSN not set, keeping orders in %s", cfg.DataFile)
		st, err := storage.New(cfg.DataFile)
		if err != nil {
			return err
		}
		repo = st
		if producer != nil {
			outbox = service.DirectOutbox{Publisher: producer, Topic: cfg.KafkaTopic}
		}
	}

	auditCtx, auditCancel := context.WithCancel(context.Background())
	pool := audit.NewAuditWorkerPool(audit.AuditPoolConfig{
		BatchSize:   cfg.AuditBatchSize,
		Timeout:     cfg.AuditTimeout,
		ChannelSize: cfg.AuditChannelSize,
	}, processors...)
	pool.Start(auditCtx, cfg.AuditWorkers)
	defer pool.Shutdown(auditCancel)

	activeCache := cache.NewActiveOrdersCache()
	svc := service.NewOrderService(repo, activeCache, outbox, pool, service.Options{
		AppendHistoryOnUpdate: cfg.AppendHistoryOnUpdate,
	})
	if err := svc.RefreshActiveOrders(ctx); err != nil {
		log.Printf("[cache] initial refresh: %v", err)
	}
	go activeCache.StartAutoRefresh(ctx, repo, cfg.CacheRefreshInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return err
	}
	health := server.NewHealth()
	if sqlDB != nil {
		go health.Watch(ctx, 10*time.Second, sqlDB.PingContext)
	}
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			log.Printf("[health] %v", err)
		}
	}()

	srv := server.NewServer(svc, pool, cfg)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("[server] stopped")
	return nil
}
