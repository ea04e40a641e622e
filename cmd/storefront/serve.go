package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront/internal/access"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	catalogrepo "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	storegrpc "github.com/fjod/storefront/internal/grpc"
	storehttp "github.com/fjod/storefront/internal/http"
	ordersrepo "github.com/fjod/storefront/internal/orders/repository"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the ops gRPC port and the background workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	// Catalog
	catalogDB, err := catalogrepo.NewRepository(cfg.Catalog.DBPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer catalogDB.Close()
	if err := catalogDB.RunMigrations(); err != nil {
		return fmt.Errorf("catalog migrations: %w", err)
	}

	// Orders
	ordersDB, err := ordersrepo.NewRepository(postgresCredentials())
	if err != nil {
		return fmt.Errorf("connect to orders database: %w", err)
	}
	defer ordersDB.Close()
	if err := ordersDB.RunMigrations(); err != nil {
		return fmt.Errorf("orders migrations: %w", err)
	}
	log.Info("database migrations completed")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	mongoDB, err := access.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("connect to mongodb: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoDB.Client().Disconnect(disconnectCtx)
	}()
	profiles := access.NewMongoProfileStore(mongoDB)
	if err := profiles.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create profile indexes: %w", err)
	}

	var cache catalog.Cache = catalog.NewMemoryCache(cfg.Catalog.CacheTTL)
	if cfg.Catalog.Cache == "redis" {
		cache = catalog.NewRedisCache(redisClient, cfg.Catalog.CacheTTL)
	}
	products := catalog.NewAccessor(catalogDB, cache, cfg.Catalog.Timeout, log.Named("catalog"))

	carts := cart.NewRegistry(
		cart.NewRedisSnapshotStore(redisClient, cfg.Cart.SnapshotTTL),
		products,
		cfg.Cart.Debounce,
		log.Named("cart"))
	defer carts.Close()

	processor, err := payment.NewClient(
		cfg.Payment.BaseURL,
		cfg.Payment.KeyID,
		cfg.Payment.KeySecret,
		&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		log.Named("processor"))
	if err != nil {
		return err
	}
	bridge := payment.NewBridge(processor, ordersDB, payment.Config{
		KeyID:        cfg.Payment.KeyID,
		KeySecret:    cfg.Payment.KeySecret,
		MerchantName: cfg.Payment.MerchantName,
		Timeout:      cfg.Payment.Timeout,
	}, log.Named("payment"))

	checkouts := checkout.NewOrchestrator(carts, bridge, pricingFrom(cfg.Pricing), log.Named("checkout"))

	sessions := access.NewSessions()
	unsubscribe := sessions.Subscribe(func(ev access.Event) {
		log.Debug("session event", zap.Stringer("type", ev.Type), zap.String("user_id", ev.User.ID))
		if ev.Type == access.SignedOut && ev.LastSession {
			carts.Evict(ev.User.ID)
		}
	})
	defer unsubscribe()
	gate := access.NewGate(cfg.Auth.Admins, profiles, log.Named("access"))

	poller := publisher.NewOutboxPoller(ordersDB, cfg.Kafka.Topic, log.Named("outbox"), cfg.Kafka.Brokers...)
	defer poller.Close()
	consumer := cart.NewConsumer(carts, cfg.Kafka.Topic, cfg.Kafka.GroupID, log.Named("cart-consumer"), cfg.Kafka.Brokers...)
	defer consumer.Close()

	checks := map[string]storehttp.HealthCheck{
		"catalog":  catalogDB.Ping,
		"postgres": ordersDB.Ping,
		"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		"mongodb":  profiles.Ping,
		"kafka":    kafkaCheck(cfg.Kafka.Brokers),
	}

	router := storehttp.NewRouter(storehttp.RouterConfig{
		Catalog:      products,
		CatalogAdmin: catalogDB,
		Carts:        carts,
		Checkouts:    checkouts,
		Payments:     bridge,
		Gate:         gate,
		Sessions:     sessions,
		JWTSecret:    []byte(cfg.Auth.JWTSecret),
		Timeout:      cfg.HTTP.RequestTimeout,
		Health:       checks,
		Log:          log.Named("http"),
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcChecks := make(map[string]storegrpc.Check, len(checks))
	for name, check := range checks {
		grpcChecks[name] = storegrpc.Check(check)
	}
	health := storegrpc.NewHealthServer(grpcChecks, cfg.GRPC.HealthCheck, log.Named("grpc"))
	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("listen on grpc port: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("port", cfg.HTTP.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("gRPC health listening", zap.String("port", cfg.GRPC.Port))
		return health.Serve(lis)
	})
	g.Go(func() error {
		health.Run(gctx)
		return nil
	})
	g.Go(func() error {
		poller.Run(gctx)
		return nil
	})
	g.Go(func() error {
		consumer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		health.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	log.Info("server exited")
	return err
}

func pricingFrom(p config.PricingConfig) checkout.Pricing {
	coupons := make(map[string]checkout.Coupon, len(p.Coupons))
	for code, c := range p.Coupons {
		coupons[checkout.NormalizeCoupon(code)] = checkout.Coupon{Percent: c.Percent, Flat: c.Flat}
	}
	return checkout.Pricing{
		Currency:              p.Currency,
		TaxRate:               p.TaxRate,
		FreeShippingThreshold: p.FreeShippingThreshold,
		FlatShippingFee:       p.FlatShippingFee,
		ExpressShippingFee:    p.ExpressShippingFee,
		Coupons:               coupons,
	}
}

// kafkaCheck succeeds when any broker accepts a connection.
func kafkaCheck(brokers []string) storehttp.HealthCheck {
	return func(ctx context.Context) error {
		var errs []error
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			_ = conn.Close()
			return nil
		}
		return fmt.Errorf("no kafka broker reachable: %w", errors.Join(errs...))
	}
}
