package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salonbook/internal/api"
	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/export"
	"salonbook/internal/hold"
	"salonbook/internal/lock"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"
	"salonbook/internal/notify"
	"salonbook/internal/ocr"
	"salonbook/internal/service"
	"salonbook/internal/slots"
	"salonbook/internal/store"
	"salonbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer func() { _ = closer.Close() }()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	slotStore := initStore(cfg, redisClient, &logger)

	hours := slots.BusinessHours{
		OpenHour:       cfg.Hours.OpenHour,
		CloseHour:      cfg.Hours.CloseHour,
		LunchStartHour: cfg.Hours.LunchStartHour,
		LunchEndHour:   cfg.Hours.LunchEndHour,
		SlotMinutes:    cfg.Hours.SlotMinutes,
	}

	ttl := time.Duration(cfg.Holds.TTLSeconds) * time.Second
	skew := time.Duration(cfg.Holds.SkewMs) * time.Millisecond

	holds := hold.NewManager(slotStore, ttl, skew, &logger)
	locks := lock.NewConfirmer(slotStore, &logger)
	calc := availability.NewCalculator(hours, db, db, db, holds, skew, &logger)

	eventBus := events.NewEventBus()
	extractor := ocr.NewTesseractClient(cfg.OCR.Command, cfg.OCR.Languages, &logger)

	booking := service.NewBookingService(
		db, hours, calc, holds, locks, eventBus, extractor,
		cfg.Providers, service.Settings{
			DepositPerHour: cfg.Booking.DepositPerHour,
			AmountSalt:     cfg.Booking.AmountSalt,
			MaxHours:       cfg.Booking.MaxHours,
			ReviewTTL:      time.Duration(cfg.Holds.ReviewTTLSeconds) * time.Second,
			RenewInterval:  time.Duration(cfg.Holds.RenewIntervalSeconds) * time.Second,
		}, &logger,
	)

	exporter := export.NewAuditExporter(db, cfg.Exports.Path, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startNotifications(ctx, cfg, eventBus, redisClient, &logger)
	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, booking, exporter, &logger)
	return startServer(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "server-main")

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStore picks the slot-state backend. Without redis the holds and
// locks live in process memory, which is only safe for a single instance.
func initStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) store.Store {
	if redisClient == nil {
		logger.Warn().Msg("using in-memory slot store; holds will not survive restarts")
		return store.NewMemory()
	}
	return store.NewRedis(redisClient, cfg.Holds.CASMaxRetries, logger)
}

func startNotifications(ctx context.Context, cfg *config.Config, eventBus *events.EventBus, redisClient *redis.Client, logger *zerolog.Logger) {
	if !cfg.Notify.Enabled {
		return
	}

	var notifier notify.Notifier
	telegramNotifier, err := notify.NewTelegramNotifier(cfg.Notify.TelegramToken, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, notifications disabled")
		notifier = notify.NopNotifier{}
	} else {
		notifier = telegramNotifier
	}

	notifyWorker := worker.NewNotifyWorker(notifier, redisClient, worker.Backoff{}, logger)
	go notifyWorker.Start(ctx)

	dispatcher := notify.NewDispatcher(notifyWorker, cfg.Notify.OperatorChats, logger)
	dispatcher.Bind(eventBus)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
