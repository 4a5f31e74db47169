package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shopfront/checkout/internal/auth"
	"github.com/shopfront/checkout/internal/cart"
	"github.com/shopfront/checkout/internal/checkout"
	"github.com/shopfront/checkout/internal/httpapi"
	"github.com/shopfront/checkout/internal/notify"
	"github.com/shopfront/checkout/internal/repository"
	"github.com/shopfront/checkout/internal/session"
	"github.com/shopfront/checkout/internal/shipping"
	"github.com/shopfront/checkout/pkg/metrics"

	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	MongoURI    string
	MongoDBName string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers string

	BankAccountHolder string
	BankIBAN          string
	BankBIC           string

	CardPaymentURL    string
	PayPalPaymentURL  string
	RevolutPaymentURL string
}

func loadConfig() *Config {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		log.Fatalf("Invalid DB_PORT: %v", err)
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         dbPort,
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "storefront"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),

		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGO_DB_NAME", "cartdb"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),

		BankAccountHolder: getEnv("BANK_ACCOUNT_HOLDER", ""),
		BankIBAN:          getEnv("BANK_IBAN", ""),
		BankBIC:           getEnv("BANK_BIC", ""),

		CardPaymentURL:    getEnv("CARD_PAYMENT_URL", ""),
		PayPalPaymentURL:  getEnv("PAYPAL_PAYMENT_URL", ""),
		RevolutPaymentURL: getEnv("REVOLUT_PAYMENT_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	log.Println("checkout service starting...")
	cfg := loadConfig()
	ctx := context.Background()
	var wg sync.WaitGroup

	// Postgres: orders, invoices, coupons, settings
	creds := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
	}
	repo, err := repository.NewRepository(creds)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// MongoDB: cart storage
	mongoDB, err := cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	log.Printf("Connected to MongoDB at %s", cfg.MongoURI)

	// Redis: cart cache and the pending-order bridge
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Redis connection failed:", err)
	}
	log.Printf("Redis ping succeeded")

	cartSvc := cart.NewService(
		cart.NewMongoRepository(mongoDB.Collection("carts")),
		cart.NewRedisCache(redisClient),
	)
	bridge := session.NewRedisBridge(redisClient)

	checkoutMetrics := metrics.NewCheckoutMetrics()

	// Kafka: best-effort order notifications, Noop without brokers
	var notifier notify.Dispatcher = notify.Noop{}
	var kafkaDispatcher *notify.KafkaDispatcher
	if cfg.KafkaBrokers != "" {
		kafkaDispatcher = notify.NewKafkaDispatcher(checkoutMetrics, strings.Split(cfg.KafkaBrokers, ",")...)
		notifier = kafkaDispatcher
		log.Printf("Kafka notifications enabled via %s", cfg.KafkaBrokers)
	}

	finalizer := checkout.NewFinalizer(repo, bridge, cartSvc, notifier, auth.ContextProvider{}, checkoutMetrics)
	coordinator := checkout.NewCoordinator(&checkout.SelectorDeps{
		Cart:      cartSvc,
		Store:     repo,
		Bridge:    bridge,
		Shipping:  shipping.NewTableCalculator(defaultShippingRates(), defaultShippingFallback()),
		Finalizer: finalizer,
		Links: checkout.PaymentLinks{
			Card:    cfg.CardPaymentURL,
			PayPal:  cfg.PayPalPaymentURL,
			Revolut: cfg.RevolutPaymentURL,
		},
		Bank: checkout.BankDetails{
			AccountHolder: cfg.BankAccountHolder,
			IBAN:          cfg.BankIBAN,
			BIC:           cfg.BankBIC,
		},
	})

	// Background sweep for orders whose items failed to persist
	sweeper := checkout.NewRepairSweeper(repo, notifier, 10*time.Minute)
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(sweepCtx)
	}()

	// Abandoned checkout sessions are cancelled on the same 30-minute clock
	// the pending-order TTL runs on
	wg.Add(1)
	go func() {
		defer wg.Done()
		coordinator.Run(sweepCtx, 5*time.Minute, 30*time.Minute)
	}()

	router := httpapi.NewRouter(
		httpapi.NewCartHandler(cartSvc, repo),
		httpapi.NewCheckoutHandler(coordinator, repo),
		checkoutMetrics,
		cfg.RequestTimeout,
	)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Checkout service listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down checkout service...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}

	sweepCancel()
	wg.Wait()

	if kafkaDispatcher != nil {
		kafkaDispatcher.Close()
	}
	if err := mongoDB.Client().Disconnect(shutdownCtx); err != nil {
		log.Printf("mongo disconnect error: %v", err)
	}
	log.Println("Checkout service stopped")
}

func defaultShippingRates() map[string]shipping.Rate {
	free := decimal.NewFromInt(100)
	return map[string]shipping.Rate{
		"NL": {Base: decimal.NewFromFloat(4.95), FreeOver: free},
		"BE": {Base: decimal.NewFromFloat(5.95), FreeOver: free},
		"DE": {Base: decimal.NewFromFloat(6.95), FreeOver: free},
	}
}

func defaultShippingFallback() shipping.Rate {
	return shipping.Rate{Base: decimal.NewFromFloat(19.95)}
}
