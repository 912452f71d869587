package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-orders/config"
	"storefront-orders/internal/api"
	"storefront-orders/internal/broker"
	"storefront-orders/internal/mongostore"
	"storefront-orders/internal/redisclient"
	"storefront-orders/internal/service"
	"storefront-orders/internal/store"
	"storefront-orders/internal/util"
	"storefront-orders/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backend is what either database offers to the services.
type backend interface {
	service.Catalog
	service.LedgerBackend
	service.StockMirror
	service.SequenceBackend
	service.OrderRepository
	service.IntentRepository
	service.EventStore
	api.Pinger
}

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting storefront orders service")

	tp, err := util.InitTracer("storefront-orders", cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	db, closeDB, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.String("backend", cfg.Backends.Store), zap.Error(err))
	}
	defer closeDB()
	logger.Info("Database connected", zap.String("backend", cfg.Backends.Store))

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer producer.Close()
	eventPublisher := broker.NewEventPublisher(producer)
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrder))

	var inventoryClient *service.InventoryClient
	if cfg.Backends.Stock == config.BackendRedis {
		inventoryClient = service.NewInventoryClient(db, redisClient).WithMirror(db)
		if err := inventoryClient.SyncInventoryToRedis(ctx, redisClient); err != nil {
			logger.Fatal("Failed to sync inventory to Redis", zap.Error(err))
		}
	} else {
		inventoryClient = service.NewInventoryClient(db, db)
	}

	var sequenceBackend service.SequenceBackend = db
	if cfg.Backends.Sequence == config.BackendRedis {
		if err := seedRedisSequence(ctx, db, redisClient); err != nil {
			logger.Fatal("Failed to seed order number sequence", zap.Error(err))
		}
		sequenceBackend = redisClient
	}

	reserver := service.NewStockReserver(inventoryClient, db)
	orderService := service.NewOrderService(
		db,
		inventoryClient,
		reserver,
		service.NewSequenceGenerator(sequenceBackend, cfg.Business.OrderNumberWidth),
		eventPublisher,
		redisClient,
		redisClient,
		service.OrderServiceConfig{
			StrictTransitions:  cfg.Business.StrictTransitions,
			AllowGuestCheckout: cfg.Business.AllowGuestCheckout,
			DefaultCountryCode: cfg.Business.DefaultCountryCode,
			Pricing: service.Pricing{
				ShippingFee:           cfg.Business.ShippingFee,
				FreeShippingThreshold: cfg.Business.FreeShippingThreshold,
			},
		},
	)
	paymentService := service.NewPaymentService(db, db, orderService)
	recoveryService := service.NewRecoveryService(db, db, inventoryClient, redisClient, cfg.Business.IntentTTL)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	paymentConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup)
	paymentWorker := worker.NewPaymentWorker(paymentConsumer, paymentService)
	go func() {
		if err := paymentWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Payment worker error", zap.Error(err))
		}
	}()

	recoveryWorker := worker.NewRecoveryWorker(recoveryService, cfg.Business.RecoveryInterval)
	go func() {
		if err := recoveryWorker.Start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Recovery worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(orderService, paymentService, cfg.Server.PaymentWebhookSecret, map[string]api.Pinger{
		cfg.Backends.Store: db,
		"redis":            redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := paymentWorker.Stop(); err != nil {
		logger.Error("Error stopping payment worker", zap.Error(err))
	}

	logger.Info("Server exited")
}

// openBackend connects to the configured database and prepares its schema.
func openBackend(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch cfg.Backends.Store {
	case config.BackendMongo:
		db, err := mongostore.NewStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return db, func() { _ = db.Close(context.Background()) }, nil
	default:
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	}
}

// seedRedisSequence makes the Redis counter continue from the database
// counter. One database number is consumed in the process.
func seedRedisSequence(ctx context.Context, db service.SequenceBackend, rdb *redisclient.Client) error {
	last, err := db.NextSequence(ctx, service.OrderNumberSequence)
	if err != nil {
		return err
	}
	return rdb.SeedSequence(ctx, service.OrderNumberSequence, last)
}
