package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-hold-service/internal/broadcast"
	"github.com/iliyamo/seat-hold-service/internal/config"
	"github.com/iliyamo/seat-hold-service/internal/database"
	"github.com/iliyamo/seat-hold-service/internal/handler"
	"github.com/iliyamo/seat-hold-service/internal/hold"
	"github.com/iliyamo/seat-hold-service/internal/logger"
	"github.com/iliyamo/seat-hold-service/internal/middleware"
	"github.com/iliyamo/seat-hold-service/internal/queue"
	"github.com/iliyamo/seat-hold-service/internal/repository"
	"github.com/iliyamo/seat-hold-service/internal/router"
	"github.com/iliyamo/seat-hold-service/internal/service"
	"github.com/iliyamo/seat-hold-service/internal/sweeper"
	"github.com/iliyamo/seat-hold-service/internal/venue"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	lg, logFile, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := venue.LoadFile(cfg.VenueFile)
	if err != nil {
		return err
	}
	lg.Info("venue loaded", "file", cfg.VenueFile, "seats", reg.Len())

	policy, err := hold.ParsePolicy(cfg.ReacquirePolicy)
	if err != nil {
		return err
	}

	// Redis is mandatory for the redis store and optional for cache and
	// rate limiting.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		if cfg.StoreBackend == "redis" {
			return err
		}
		lg.Warn("redis unavailable, cache and rate limiting disabled", "err", err)
	} else {
		defer rdb.Close()
	}

	store, err := openStore(ctx, cfg, rdb, reg.IDs())
	if err != nil {
		return err
	}
	orders, closeLedger, err := openLedger(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer closeLedger()

	hub := broadcast.NewHub(cfg.ObserverBuffer, lg)
	defer hub.Close()

	sinks := []hold.OrderSink{service.NewLedgerSink(orders)}
	if cfg.AMQPEnabled {
		pub := service.NewPurchasePublisher(cfg.AMQPURL, lg)
		defer pub.Close()
		broker := service.NewBrokerSink(pub, 5*time.Second, lg)
		defer broker.Wait()
		sinks = append(sinks, broker)

		consumer := queue.NewConsumer(cfg.AMQPURL, "logs", lg)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("purchase consumer stopped", "err", err)
			}
		}()
	}

	holds, err := hold.NewManager(ctx, store, reg, hub, cfg.HoldTTL,
		hold.WithPolicy(policy),
		hold.WithLogger(lg),
		hold.WithOrderSinks(sinks...),
	)
	if err != nil {
		return err
	}
	go sweeper.New(holds, cfg.SweepInterval, lg).Run(ctx)

	e := newEcho(cfg, lg)
	router.RegisterRoutes(e)
	router.RegisterSeats(e, handler.NewSeatHandler(holds, reg, orders, lg), router.SeatMiddleware{
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb, lg),
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg),
		Admin:     middleware.AdminGuard(cfg.AdminJWTSecret),
	})
	router.RegisterPush(e, handler.NewPushHandler(hub, originChecker(cfg.CORSOrigins), lg))

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreBackend, "ledger", cfg.LedgerDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	lg.Info("shutting down")
	// Closing the hub ends every websocket write loop.
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newEcho(cfg config.Config, lg *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		Skipper:    func(c echo.Context) bool { return c.Path() == "/ws" },
		LogValuesFunc: func(_ echo.Context, v echomw.RequestLoggerValues) error {
			lg.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "err", v.Error)
			return nil
		},
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "X-User-ID"},
	}))
	return e
}

func openStore(ctx context.Context, cfg config.Config, rdb *redis.Client, ids []string) (repository.SeatStore, error) {
	if cfg.StoreBackend != "redis" {
		return repository.NewMemorySeatStore(ids), nil
	}
	s := repository.NewRedisSeatStore(rdb, cfg.RedisPrefix, ids)
	if err := s.Init(ctx); err != nil {
		return nil, fmt.Errorf("init redis seat store: %w", err)
	}
	return s, nil
}

func openLedger(ctx context.Context, cfg config.Config, lg *slog.Logger) (repository.OrderRepo, func(), error) {
	switch cfg.LedgerDriver {
	case "mysql":
		db, err := database.OpenMySQL(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewMySQLOrderRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil
	case "postgres":
		pool, err := database.OpenPostgres(ctx, cfg.PostgresURL, lg)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPgOrderRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repo, pool.Close, nil
	default:
		return repository.NewMemoryOrderRepo(), func() {}, nil
	}
}

// originChecker mirrors the CORS origin list for websocket upgrades.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
