package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	invAlert "github.com/fekuna/omnipos-stock-service/internal/inventory/alert"
	invListenerPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/listener"
	invRepoPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/sweeper"
	invUCPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/broker"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/database"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/resilience"
)

const serviceName = "omnipos.stock.v1.StockService"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	appMetrics := metrics.New("omnipos_stock")

	// 3. Connect to Database
	db, err := database.NewPostgres(&database.Config{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		DBName:          cfg.Postgres.DBName,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
		ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Could not connect to database", zap.Error(err))
	}
	defer db.Close()
	appLogger.Info("Database connected successfully")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := invRepoPkg.Migrate(migrateCtx, db); err != nil {
		migrateCancel()
		appLogger.Fatal("Could not migrate schema", zap.Error(err))
	}
	migrateCancel()

	// 4. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cache.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		appLogger.Warn("Could not connect to Redis, continuing with a degraded cache", zap.Error(err))
	} else {
		appLogger.Info("Redis connected successfully")
	}
	defer redisClient.Close()

	// 5. Initialize Kafka
	var alertSink inventory.AlertSink = invAlert.NopSink{}
	var alertPublisher *invAlert.KafkaPublisher
	if cfg.Alert.Enabled {
		alertWriter := broker.NewWriter(broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.AlertTopic,
		})
		breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
			Name:             "stock-alerts",
			Timeout:          cfg.Alert.BreakerTimeout,
			FailureThreshold: cfg.Alert.BreakerMaxFailures,
		}, appLogger, appMetrics)
		alertPublisher = invAlert.NewKafkaPublisher(alertWriter, breaker)
		alertSink = alertPublisher
	}

	orderConsumer := broker.NewReader(broker.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.OrderTopic,
		GroupID: cfg.Kafka.GroupID,
	})

	// 6. Initialize Layers
	invRepo := invRepoPkg.NewPGRepository(db)
	opts := invUCPkg.Options{
		ReservationTTL:     time.Duration(cfg.Inventory.ReservationTTLMinutes) * time.Minute,
		MaxConflictRetries: cfg.Inventory.ConflictMaxRetries,
		ProductCacheTTL:    cfg.Inventory.ProductCacheTTL,
		ListCacheTTL:       cfg.Inventory.ListCacheTTL,
		AlertTimeout:       cfg.Alert.PublishTimeout,
	}

	ledgerUC := invUCPkg.NewLedgerUseCase(invRepo, redisClient, alertSink, appMetrics, appLogger, opts)
	reservationUC := invUCPkg.NewReservationUseCase(invRepo, redisClient, alertSink, appMetrics, appLogger, opts)
	invUC := invUCPkg.NewInventoryUseCase(invRepo, ledgerUC, redisClient, alertSink, appMetrics, appLogger, opts)

	// 6.5 Initialize Listeners and Sweeper
	invListener := invListenerPkg.NewInventoryListener(orderConsumer, ledgerUC, reservationUC, invUC, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listenerDone := make(chan struct{})
	go func() {
		invListener.Start(ctx)
		close(listenerDone)
	}()

	reservationSweeper := sweeper.New(reservationUC, appLogger, appMetrics, sweeper.Config{
		Interval:  cfg.Sweeper.Interval,
		BatchSize: cfg.Sweeper.BatchSize,
	})
	if cfg.Sweeper.Enabled {
		if err := reservationSweeper.Start(ctx); err != nil {
			appLogger.Fatal("Could not start reservation sweeper", zap.Error(err))
		}
	}

	// 7. Start gRPC Server
	port := cfg.Server.GRPCPort
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	lis, err := net.Listen("tcp", port)
	if err != nil {
		appLogger.Fatal("Failed to listen", zap.Error(err))
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(auth.ContextInterceptor()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	go func() {
		appLogger.Info("Stock Service gRPC server started", zap.String("port", port))
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("Failed to serve", zap.Error(err))
		}
	}()

	// 8. Start Metrics Server
	metricsPort := cfg.Server.MetricsPort
	if !strings.HasPrefix(metricsPort, ":") {
		metricsPort = ":" + metricsPort
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", appMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              metricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		appLogger.Info("Metrics server started", zap.String("port", metricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Metrics server stopped", zap.Error(err))
		}
	}()

	// 9. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	healthServer.Shutdown()

	if cfg.Sweeper.Enabled {
		if err := reservationSweeper.Stop(); err != nil {
			appLogger.Warn("Reservation sweeper stop failed", zap.Error(err))
		}
	}

	cancel()
	if err := orderConsumer.Close(); err != nil {
		appLogger.Warn("Order consumer close failed", zap.Error(err))
	}
	<-listenerDone

	grpcServer.GracefulStop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Metrics server shutdown failed", zap.Error(err))
	}

	if alertPublisher != nil {
		if err := alertPublisher.Close(); err != nil {
			appLogger.Warn("Alert publisher close failed", zap.Error(err))
		}
	}

	appLogger.Info("Server exited")
}
