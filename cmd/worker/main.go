package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/config"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/email"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository/postgres"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/service/notifier"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/worker"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/logger"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/metrics"
)

// workerEnv overrides sweep tuning without touching the shared config file.
type workerEnv struct {
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	var env workerEnv
	if err := envconfig.Process("notifier", &env); err != nil {
		log.Fatal().Err(err).Msg("failed to read environment overrides")
	}
	if env.SweepInterval > 0 {
		cfg.Notifier.SweepInterval = env.SweepInterval
	}
	if env.SweepBatchSize > 0 {
		cfg.Notifier.SweepBatchSize = env.SweepBatchSize
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	m := metrics.NewMetrics("notifications", "worker")

	base := postgres.NewBaseRepository(db, m)
	notificationRepo := postgres.NewNotificationRepository(base)
	deliveryRepo := postgres.NewDeliveryRepository(base)
	preferenceRepo := postgres.NewPreferenceRepository(base)
	directoryRepo := postgres.NewDirectoryRepository(base)

	emailSvc := email.NewSMTPService(cfg.SMTP)

	// The worker only drains deliveries; no broker, no opportunistic trigger.
	notifierSvc := notifier.NewService(
		notificationRepo,
		deliveryRepo,
		preferenceRepo,
		directoryRepo,
		emailSvc,
		nil,
		m,
		appLogger,
		notifier.Config{
			DedupeWindow:     time.Duration(cfg.Notifier.DedupeWindowMinutes) * time.Minute,
			TriggerBatchSize: cfg.Notifier.TriggerBatchSize,
		},
	)

	sweeper := worker.NewDeliverySweeper(notifierSvc, worker.DeliverySweeperConfig{
		PollInterval: cfg.Notifier.SweepInterval,
		BatchSize:    cfg.Notifier.SweepBatchSize,
	}, appLogger, m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down worker")
	cancel()
}
