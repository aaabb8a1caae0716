package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/safar/go-stock-ledger/internal/api"
	"github.com/safar/go-stock-ledger/internal/audit"
	"github.com/safar/go-stock-ledger/internal/cart"
	"github.com/safar/go-stock-ledger/internal/catalog"
	"github.com/safar/go-stock-ledger/internal/config"
	"github.com/safar/go-stock-ledger/internal/database"
	"github.com/safar/go-stock-ledger/internal/ledger"
	"github.com/safar/go-stock-ledger/internal/purchase"
	"github.com/safar/go-stock-ledger/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	carts, closeCarts, err := newCartStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCarts()

	var auditOpts []audit.Option
	if cfg.Kafka.Broker != "" {
		producer := queue.NewProducer(cfg.Kafka.Broker, cfg.Kafka.AuditTopic, cfg.Kafka.Username, cfg.Kafka.Password)
		defer producer.Close()
		auditOpts = append(auditOpts, audit.WithPublisher(producer))
		logger.Info("mirroring activity to kafka", "broker", cfg.Kafka.Broker, "topic", cfg.Kafka.AuditTopic)
	}

	activity := audit.New(db, logger, auditOpts...)
	stock := ledger.New(db, activity, logger, ledger.WithMaxRetries(cfg.Ledger.MaxRetries))
	categories := catalog.New(db, activity, logger)
	orchestrator := purchase.New(stock, logger)

	srv := api.NewServer(stock, orchestrator, categories, activity, carts, api.Config{
		LowStockThreshold: cfg.Ledger.LowStockThreshold,
		CookieSecure:      cfg.Session.CookieSecure,
	}, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "session_store", cfg.Session.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newCartStore(ctx context.Context, cfg *config.Config) (cart.Store, func(), error) {
	if cfg.Session.Store == config.SessionStoreMemory {
		return cart.NewMemoryStore(cfg.Session.IdleTimeout), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}

	return cart.NewRedisStore(rdb, cfg.Session.IdleTimeout), func() { rdb.Close() }, nil
}
