package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
)

type deliveryRepository struct {
	BaseRepository
}

func NewDeliveryRepository(base BaseRepository) repository.DeliveryRepository {
	return &deliveryRepository{base}
}

func (r *deliveryRepository) BulkInsert(ctx context.Context, deliveries []*model.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	query := `
		INSERT INTO notification_deliveries (
			id, notification_id, user_id, channel, status, attempts,
			payload, created_at, updated_at
		) VALUES (:id, :notification_id, :user_id, :channel, :status, :attempts,
		          :payload, :created_at, :updated_at)
		ON CONFLICT (notification_id, user_id, channel) DO NOTHING
	`
	now := time.Now()
	for _, d := range deliveries {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		d.CreatedAt = now
		d.UpdatedAt = now
	}

	_, err := r.db.NamedExecContext(ctx, query, deliveries)
	r.track("deliveries.bulk_insert", err)
	if err != nil {
		return fmt.Errorf("failed to insert deliveries: %w", err)
	}
	return nil
}

// ClaimPendingEmail moves due pending rows to processing inside one statement,
// so a racing sweep and post-emit trigger can never pick up the same row.
func (r *deliveryRepository) ClaimPendingEmail(ctx context.Context, limit int, now time.Time) ([]*model.EmailDelivery, error) {
	query := `
		WITH claimed AS (
			SELECT id
			FROM notification_deliveries
			WHERE channel = $1
			  AND status = $2
			  AND (next_attempt_at IS NULL OR next_attempt_at <= $3)
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_deliveries d
		SET status = $5, claimed_at = $3, updated_at = $3
		FROM claimed
		JOIN notification_deliveries cd ON cd.id = claimed.id
		JOIN notifications n ON n.id = cd.notification_id
		JOIN users u ON u.id = cd.user_id
		LEFT JOIN projects p ON p.id = n.project_id
		WHERE d.id = claimed.id
		RETURNING d.id, d.notification_id, d.user_id, d.channel, d.status,
		          d.attempts, d.next_attempt_at, d.last_error, d.sent_at,
		          d.payload, d.claimed_at, d.created_at, d.updated_at,
		          n.tenant_id, n.project_id, p.name AS project_name,
		          n.category, n.priority, n.title, n.body, u.email
	`
	var rows []*model.EmailDelivery
	err := r.db.SelectContext(ctx, &rows, query,
		model.ChannelEmail, model.DeliveryStatusPending, now,
		limit, model.DeliveryStatusProcessing)
	r.track("deliveries.claim", err)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending deliveries: %w", err)
	}
	return rows, nil
}

func (r *deliveryRepository) MarkSent(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1, attempts = $2, sent_at = $3, last_error = NULL,
		    next_attempt_at = NULL, claimed_at = NULL, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, model.DeliveryStatusSent, attempts, at, id)
	r.track("deliveries.mark_sent", err)
	if err != nil {
		return fmt.Errorf("failed to mark delivery sent: %w", err)
	}
	return nil
}

func (r *deliveryRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt *time.Time, lastError string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1, attempts = $2, next_attempt_at = $3, last_error = $4,
		    claimed_at = NULL, updated_at = NOW()
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, model.DeliveryStatusPending, attempts, nextAttemptAt, lastError, id)
	r.track("deliveries.mark_retry", err)
	if err != nil {
		return fmt.Errorf("failed to schedule delivery retry: %w", err)
	}
	return nil
}

func (r *deliveryRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error {
	query := `
		UPDATE notification_deliveries
		SET status = $1, attempts = $2, next_attempt_at = NULL, last_error = $3,
		    claimed_at = NULL, updated_at = NOW()
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, model.DeliveryStatusFailed, attempts, lastError, id)
	r.track("deliveries.mark_failed", err)
	if err != nil {
		return fmt.Errorf("failed to mark delivery failed: %w", err)
	}
	return nil
}

func (r *deliveryRepository) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE notification_deliveries
		SET status = $1, claimed_at = NULL, updated_at = NOW()
		WHERE status = $2 AND claimed_at < $3
	`
	result, err := r.db.ExecContext(ctx, query,
		model.DeliveryStatusPending, model.DeliveryStatusProcessing, cutoff)
	r.track("deliveries.reclaim_stale", err)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale deliveries: %w", err)
	}
	return result.RowsAffected()
}
