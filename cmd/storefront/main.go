package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/audit"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/cache"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/catalog"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/config"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/consumer"
	h "github.com/M-a-K-s-1-M/neshopify-sub000/internal/http"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/payment"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/publisher"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/repository"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/logger"
	"github.com/M-a-K-s-1-M/neshopify-sub000/pkg/metrics"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const serviceName = "storefront"

func main() {
	// .env is optional; real deployments pass the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(serviceName, cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		fatal(log, "invalid configuration", err)
	}
	log.Info("storefront starting", "http_port", cfg.HTTPPort, "grpc_port", cfg.GRPCPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Order store
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
		fatal(log, "failed to connect to database", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(creds); err != nil {
		fatal(log, "failed to run migrations", err)
	}
	log.Info("database migrations completed")

	// Catalog
	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		fatal(log, "failed to open catalog", err)
	}
	defer products.Close()

	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		fatal(log, "failed to run catalog migrations", err)
	}

	// Cart cache. Redis being down at startup is not fatal: the cart service reads through.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, carts will be served from the database", "addr", cfg.RedisAddr, "error", err)
	}
	cartCache := cache.NewRedisCache(redisClient, cfg.CartCacheTTL)

	// Payment callback audit log
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.MongoURI != "" {
		db, err := audit.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			fatal(log, "failed to connect to mongodb", err)
		}
		defer func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				log.Warn("error disconnecting from mongodb", "error", err)
			}
		}()
		mongoRecorder := audit.NewMongoRecorder(db)
		if err := mongoRecorder.CreateIndexes(ctx); err != nil {
			log.Warn("failed to create audit indexes", "error", err)
		}
		recorder = mongoRecorder
	} else {
		log.Info("MONGO_URI not set, payment callback audit log disabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// A nil provider disables hosted checkout.
	var provider payment.HostedProvider
	if cfg.HostedPayments() {
		provider = payment.NewStripeClient(payment.StripeConfig{
			Name:    cfg.PaymentProvider,
			BaseURL: cfg.PaymentProviderURL,
			APIKey:  cfg.PaymentProviderAPIKey,
			Timeout: cfg.PaymentProviderTimeout,
		}, log)
	} else {
		log.Warn("PAYMENT_PROVIDER_API_KEY not set, hosted checkout disabled")
	}

	carts := service.NewCartService(repo, cartCache, products, log)
	checkout := service.NewCheckoutService(repo, repo, cartCache, cartCache, provider, m, log)
	orders := service.NewOrderService(repo, recorder, log)
	reconciler := service.NewReconciler(repo, m, log)

	router := h.NewRouter(h.Handlers{
		Cart:     h.NewCartHandler(carts, log, cfg.MaxBodyBytes),
		Checkout: h.NewCheckoutHandler(checkout, log, cfg.MaxBodyBytes),
		Orders:   h.NewOrdersHandler(orders, log, cfg.MaxBodyBytes),
		Webhooks: h.NewWebhookHandler(reconciler, recorder, m, h.WebhookConfig{
			HostedProvider: cfg.PaymentProvider,
			Verifier:       payment.NewSignatureVerifier(cfg.PaymentWebhookSecret, cfg.WebhookTolerance),
			NativeToken:    cfg.NativeWebhookToken,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		}, log),
		Health: healthHandler(repo),
	}, m, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC health for orchestrators; serving status follows the database.
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		fatal(log, "failed to listen", err)
	}

	poller := publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.OrderEventsTopic, cfg.KafkaBrokers...), m, log)
	payments := consumer.NewPaymentConsumer(reconciler,
		consumer.NewKafkaReader(cfg.PaymentEventsTopic, cfg.PaymentGroupID, cfg.KafkaBrokers...), log)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		payments.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		watchDatabase(ctx, repo, healthServer, log)
	}()
	go func() {
		defer wg.Done()
		log.Info("grpc health server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("grpc server error", "error", err)
		}
	}()

	go func() {
		log.Info("http server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down storefront")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server forced to shutdown", "error", err)
	}
	healthServer.Shutdown()
	grpcServer.GracefulStop()

	wg.Wait()
	if err := poller.Close(); err != nil {
		log.Warn("error closing kafka writer", "error", err)
	}
	payments.Close()

	log.Info("storefront stopped")
}

type pinger interface {
	Ping(ctx context.Context) error
}

func healthHandler(db pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}
}

func watchDatabase(ctx context.Context, db pinger, hs *health.Server, log *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	serving := healthpb.HealthCheckResponse_SERVING
	hs.SetServingStatus("", serving)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := db.Ping(pingCtx)
			cancel()

			next := healthpb.HealthCheckResponse_SERVING
			if err != nil {
				next = healthpb.HealthCheckResponse_NOT_SERVING
			}
			if next != serving {
				log.Warn("database health changed", "status", next.String(), "error", err)
				serving = next
				hs.SetServingStatus("", serving)
			}
		}
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
