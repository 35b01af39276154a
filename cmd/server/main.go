package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reepay-bridge/internal/auth"
	"reepay-bridge/internal/config"
	"reepay-bridge/internal/currency"
	"reepay-bridge/internal/db"
	"reepay-bridge/internal/handler"
	"reepay-bridge/internal/lock"
	"reepay-bridge/internal/logger"
	"reepay-bridge/internal/middleware"
	"reepay-bridge/internal/order"
	"reepay-bridge/internal/payment"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

var (
	initDBFunc      = db.InitDB
	startServerFunc = startServer
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	if err := cfg.GatewayConfig().Validate(); err != nil {
		// Checkout and operations will fail until this is fixed.
		logger.L().Warn("Reepay gateway is not fully configured", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database := initDBFunc(cfg)
	defer database.Close()

	router := newServer(ctx, cfg, database)

	logger.L().Info("Reepay bridge listening", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
	return startServerFunc(ctx, ":"+cfg.AppPort, router)
}

// newServer wires the order service and its payment dependencies.
func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) http.Handler {
	orderRepo := order.NewRepository(database)
	deliveries := payment.NewDeliveryLog(database)

	gatewayCfg := cfg.GatewayConfig()
	gateway := payment.NewReepayGateway(gatewayCfg)
	controller := payment.NewController(gatewayCfg, gateway, orderRepo, currency.NewTable())

	orderSvc := order.NewService(orderRepo, deliveries, controller, newLocker(cfg), cfg.ReepayWebhookSecret)

	limiter := middleware.NewRateLimiter()
	go limiter.Run(ctx)

	h := handler.NewHandler(
		orderSvc,
		auth.Credentials{Username: cfg.OperatorUsername, PasswordHash: cfg.OperatorPasswordHash},
		[]byte(cfg.JWTSecret),
		cfg.OperatorTokenTTL,
	)
	return handler.NewRouter(h, limiter)
}

// newLocker shares order locks through Redis when configured so several
// instances can run side by side.
func newLocker(cfg *config.Config) lock.Locker {
	if cfg.RedisAddr == "" {
		logger.L().Info("Using in-process order locks")
		return lock.NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ttl := lockTTL(cfg)
	logger.L().Info("Using Redis order locks",
		zap.String("addr", cfg.RedisAddr),
		zap.Duration("ttl", ttl),
	)
	return lock.NewRedisLocker(client, ttl)
}

// lockTTL outlives an operation's two gateway calls at full timeout.
func lockTTL(cfg *config.Config) time.Duration {
	if cfg.ReepayTimeout <= 0 {
		return lock.DefaultTTL
	}
	return 2*cfg.ReepayTimeout + 10*time.Second
}

func startServer(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L().Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
