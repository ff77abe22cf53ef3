package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/config"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/email"
	notificationHandler "github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler/notification"
	preferenceHandler "github.com/Bruno7kp/gestor-de-obras-sub001/internal/handler/preference"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/middleware"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository/postgres"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/router"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/service/notifier"
	preferenceService "github.com/Bruno7kp/gestor-de-obras-sub001/internal/service/preference"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/logger"
	redisbroker "github.com/Bruno7kp/gestor-de-obras-sub001/pkg/messaging/redis"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, appLogger.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("notifications", "api")

	base := postgres.NewBaseRepository(db, m)
	notificationRepo := postgres.NewNotificationRepository(base)
	deliveryRepo := postgres.NewDeliveryRepository(base)
	preferenceRepo := postgres.NewPreferenceRepository(base)
	directoryRepo := postgres.NewDirectoryRepository(base)

	emailSvc := email.NewSMTPService(cfg.SMTP)

	notifierSvc := notifier.NewService(
		notificationRepo,
		deliveryRepo,
		preferenceRepo,
		directoryRepo,
		emailSvc,
		broker,
		m,
		appLogger,
		notifier.Config{
			DedupeWindow:     time.Duration(cfg.Notifier.DedupeWindowMinutes) * time.Minute,
			TriggerBatchSize: cfg.Notifier.TriggerBatchSize,
		},
	)
	preferenceSvc := preferenceService.NewService(preferenceRepo)

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT)

	r := router.NewRouter(
		authMiddleware,
		notificationHandler.NewHandler(notifierSvc),
		preferenceHandler.NewHandler(preferenceSvc),
		db,
		appLogger.Zerolog(),
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
}
