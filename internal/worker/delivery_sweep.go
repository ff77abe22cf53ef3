package worker

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/service/notifier"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/logger"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/metrics"
)

// DeliverySweeperConfig tunes the periodic delivery sweep.
type DeliverySweeperConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DeliverySweeper is the external periodic caller of the delivery processor.
// It drains whatever the opportunistic post-emit trigger left behind and
// recovers claims abandoned by crashed senders.
type DeliverySweeper struct {
	service *notifier.Service
	config  DeliverySweeperConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDeliverySweeper(
	service *notifier.Service,
	config DeliverySweeperConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *DeliverySweeper {
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}

	return &DeliverySweeper{
		service: service,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *DeliverySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.logger.Info("Starting delivery sweeper")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Shutting down delivery sweeper")
			return
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				s.logger.Error(err, "Failed to process deliveries")
			}
		}
	}
}

func (s *DeliverySweeper) sweep(ctx context.Context) error {
	timer := prometheus.NewTimer(s.metrics.DeliveryLatency)
	defer timer.ObserveDuration()

	reclaimed, err := s.service.ReclaimStaleDeliveries(ctx)
	if err != nil {
		s.logger.Error(err, "Failed to reclaim stale deliveries")
	} else if reclaimed > 0 {
		s.logger.Warn("Reclaimed stale delivery claims", "count", reclaimed)
	}

	result, err := s.service.ProcessPendingDeliveries(ctx, s.config.BatchSize)
	if err != nil {
		return err
	}
	if result.Processed > 0 {
		s.logger.Info("Processed deliveries",
			"processed", result.Processed, "sent", result.Sent, "failed", result.Failed)
	}
	return nil
}
