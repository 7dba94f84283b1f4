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

	"github.com/fekuna/omnipos-catalog-sync/config"
	"github.com/fekuna/omnipos-catalog-sync/internal/broker"
	"github.com/fekuna/omnipos-catalog-sync/internal/cache"
	"github.com/fekuna/omnipos-catalog-sync/internal/database/migration"
	"github.com/fekuna/omnipos-catalog-sync/internal/database/postgres"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/fekuna/omnipos-catalog-sync/internal/search"

	bootClientPkg "github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/client"
	bootH "github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/handler"
	bootListenerPkg "github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/listener"
	bootSchedulerPkg "github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/scheduler"
	bootUCPkg "github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/usecase"

	catH "github.com/fekuna/omnipos-catalog-sync/internal/category/handler"
	catRepoPkg "github.com/fekuna/omnipos-catalog-sync/internal/category/repository"
	catUCPkg "github.com/fekuna/omnipos-catalog-sync/internal/category/usecase"

	prodH "github.com/fekuna/omnipos-catalog-sync/internal/product/handler"
	prodRepoPkg "github.com/fekuna/omnipos-catalog-sync/internal/product/repository"
	prodUCPkg "github.com/fekuna/omnipos-catalog-sync/internal/product/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	lockAttempts = 3
	lockBackoff  = 100 * time.Millisecond
)

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	appLogger := logger.NewZapLogger(newLoggerConfig(cfg))
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect to Database
	db, err := postgres.NewPostgres(&postgres.Config{
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
	appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))

	if err := migration.NewMigrator(db, appLogger).Up(ctx, migration.Catalog(cfg.Bootstrap.ManualIDFloor)); err != nil {
		appLogger.Fatal("Could not apply migrations", zap.Error(err))
	}

	// 4. Initialize Repositories
	catRepo := catRepoPkg.NewPGRepository(db)
	prodRepo := prodRepoPkg.NewPGRepository(db, cfg.Bootstrap.ManualIDFloor)

	// 5. Initialize Redis
	var locker cache.Locker = cache.NewLocalLocker(lockAttempts, lockBackoff)
	var listCache prodUCPkg.ListCache
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		locker = cache.NewRedisLocker(redisClient.Client, lockAttempts, lockBackoff)
		listCache = redisClient
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		appLogger.Warn("Redis disabled, catalog write lock is process local")
	}

	// 5.5 Initialize Elasticsearch
	var searchIndex prodUCPkg.SearchIndex
	if cfg.Elastic.Enabled {
		esClient, err := search.NewClient(&search.Config{
			Addresses: cfg.Elastic.Addresses,
			Username:  cfg.Elastic.Username,
			Password:  cfg.Elastic.Password,
		})
		if err != nil {
			// Search falls back to Postgres.
			appLogger.Warn("Could not connect to Elasticsearch (Search features might be limited)", zap.Error(err))
		} else {
			productIndex := search.NewProductIndex(esClient, cfg.Elastic.Index)
			if err := productIndex.EnsureIndex(ctx); err != nil {
				appLogger.Warn("Could not create product index", zap.String("index", cfg.Elastic.Index), zap.Error(err))
			}
			searchIndex = productIndex
			appLogger.Info("Connected to Elasticsearch", zap.Strings("addresses", cfg.Elastic.Addresses))
		}
	}

	// 6. Initialize UseCases
	healthServer := health.NewServer()

	catUC := catUCPkg.NewCategoryUseCase(catRepo, appLogger)
	prodUC := prodUCPkg.NewProductUseCase(prodRepo, locker, listCache, searchIndex, appLogger)
	if searchIndex != nil {
		// On failure the first title search retries the rebuild.
		if err := prodUC.ReindexSearch(ctx); err != nil {
			appLogger.Warn("Could not rebuild product index", zap.Error(err))
		}
	}

	sourceClient, err := bootClientPkg.NewClient(bootClientPkg.Config{
		URL:            cfg.Bootstrap.SourceURL,
		PageSize:       cfg.Bootstrap.PageSize,
		Timeout:        cfg.Bootstrap.FetchTimeout,
		RequestsPerSec: cfg.Bootstrap.RequestsPerSec,
		UserAgent:      cfg.Bootstrap.UserAgent,
	})
	if err != nil {
		appLogger.Fatal("Invalid bootstrap source", zap.Error(err))
	}

	bootOpts := []bootUCPkg.Option{bootUCPkg.WithHealthReporter(healthServer)}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.EventsTopic,
		})
		defer producer.Close()
		bootOpts = append(bootOpts, bootUCPkg.WithEventPublisher(producer))
		appLogger.Info("Kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.EventsTopic))
	}
	bootUC := bootUCPkg.NewBootstrapUseCase(sourceClient, prodUC, cfg.Bootstrap.MaxProducts, appLogger, bootOpts...)

	// 6.5 Initialize Scheduler and Listeners
	if cfg.Bootstrap.Enabled {
		scheduler := bootSchedulerPkg.NewScheduler(bootUC, cfg.Bootstrap.Interval, appLogger)
		go scheduler.Start(ctx)
	} else {
		appLogger.Info("Bootstrap disabled")
	}

	if cfg.Kafka.Enabled && cfg.Bootstrap.TriggerEnabled {
		consumer := broker.NewConsumer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.TriggerTopic,
			GroupID: cfg.Kafka.GroupID,
		})
		defer consumer.Close()
		resyncListener := bootListenerPkg.NewResyncListener(consumer, bootUC, appLogger)
		go resyncListener.Start(ctx)
	}

	// 7. Initialize Handlers
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	prodH.NewProductHandler(prodUC, appLogger).Routes(router)
	catH.NewCategoryHandler(catUC, appLogger).Routes(router)
	bootH.NewBootstrapHandler(bootUC, appLogger).Routes(router)

	httpServer := &http.Server{
		Addr:              normalizePort(cfg.Server.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 8. Start gRPC Server
	port := normalizePort(cfg.Server.GRPCPort)
	lis, err := net.Listen("tcp", port)
	if err != nil {
		appLogger.Fatal("failed to listen", zap.String("port", port), zap.Error(err))
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// Register Reflection
	reflection.Register(grpcServer)

	appLogger.Info("Starting gRPC server", zap.String("port", port))
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve grpc", zap.Error(err))
		}
	}()

	appLogger.Info("Starting HTTP server", zap.String("port", httpServer.Addr))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("failed to serve http", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}

func newLoggerConfig(cfg *config.Config) *logger.ZapLoggerConfig {
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     cfg.Server.AppEnv == config.EnvDevelopment,
		Encoding:          cfg.Logger.Encoding,
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}
	if logConfig.IsDevelopment {
		logConfig.Level = "debug"
	}
	return logConfig
}

func normalizePort(port string) string {
	if !strings.HasPrefix(port, ":") && !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
