package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	err := r.insert(ctx, r.db, n)
	r.track("notifications.insert", err)
	return err
}

func (r *notificationRepository) insert(ctx context.Context, ex sqlx.ExtContext, n *model.Notification) error {
	query := `
		INSERT INTO notifications (
			id, tenant_id, project_id, category, event_type, priority,
			title, body, metadata, dedupe_key, triggered_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now()

	_, err := ex.ExecContext(ctx, query,
		n.ID,
		n.TenantID,
		n.ProjectID,
		n.Category,
		n.EventType,
		n.Priority,
		n.Title,
		n.Body,
		n.Metadata,
		n.DedupeKey,
		n.TriggeredAt,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// FindOrCreateByDedupeKey serializes emits sharing a (tenant, dedupe key) pair
// on a transaction-scoped advisory lock, so the lookup and the insert are one
// atomic step and concurrent emits converge on a single row.
func (r *notificationRepository) FindOrCreateByDedupeKey(ctx context.Context, n *model.Notification, since time.Time) (*model.Notification, bool, error) {
	if n.DedupeKey == nil {
		return nil, false, fmt.Errorf("dedupe key is required")
	}

	var winner *model.Notification
	var reused bool
	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		lockKey := n.TenantID.String() + "|" + *n.DedupeKey
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
			return fmt.Errorf("failed to acquire dedupe lock: %w", err)
		}

		query := `
			SELECT id, tenant_id, project_id, category, event_type, priority,
			       title, body, metadata, dedupe_key, triggered_at, created_at
			FROM notifications
			WHERE tenant_id = $1 AND dedupe_key = $2 AND created_at >= $3
			ORDER BY created_at DESC
			LIMIT 1
		`
		var existing model.Notification
		err := tx.GetContext(ctx, &existing, query, n.TenantID, *n.DedupeKey, since)
		if err == nil {
			winner = &existing
			reused = true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up dedupe key: %w", err)
		}

		if err := r.insert(ctx, tx, n); err != nil {
			return err
		}
		winner = n
		return nil
	})
	r.track("notifications.find_or_create", err)
	if err != nil {
		return nil, false, err
	}
	return winner, reused, nil
}

func (r *notificationRepository) BulkInsertRecipients(ctx context.Context, recipients []*model.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}

	// ON CONFLICT DO NOTHING keeps concurrent emits sharing a dedupe key from
	// creating duplicate rows.
	query := `
		INSERT INTO notification_recipients (
			notification_id, user_id, channel_in_app, channel_email,
			is_read, created_at
		) VALUES (:notification_id, :user_id, :channel_in_app, :channel_email,
		          :is_read, :created_at)
		ON CONFLICT (notification_id, user_id) DO NOTHING
	`
	now := time.Now()
	for _, rec := range recipients {
		rec.CreatedAt = now
	}

	_, err := r.db.NamedExecContext(ctx, query, recipients)
	r.track("recipients.bulk_insert", err)
	if err != nil {
		return fmt.Errorf("failed to insert recipients: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, q *model.FeedQuery) ([]*model.UserNotification, error) {
	query := `
		SELECT n.id, n.tenant_id, n.project_id, n.category, n.event_type,
		       n.priority, n.title, n.body, n.metadata, n.dedupe_key,
		       n.triggered_at, n.created_at,
		       nr.channel_in_app, nr.channel_email, nr.is_read, nr.read_at
		FROM notification_recipients nr
		JOIN notifications n ON n.id = nr.notification_id
		WHERE nr.user_id = $1
		  AND n.tenant_id = $2
		  AND nr.channel_in_app = TRUE
		  AND ($3::uuid IS NULL OR n.project_id = $3)
		  AND ($4::bool = FALSE OR nr.is_read = FALSE)
		  AND NOT (n.category = ANY($5))
		ORDER BY n.created_at DESC
		LIMIT $6
	`
	blocked := q.BlockedCategories
	if blocked == nil {
		blocked = []string{}
	}

	var rows []*model.UserNotification
	err := r.db.SelectContext(ctx, &rows, query,
		q.UserID, q.TenantID, q.ProjectID, q.UnreadOnly, pq.Array(blocked), q.Limit)
	r.track("notifications.list", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, notificationID, userID uuid.UUID, at time.Time) error {
	query := `
		UPDATE notification_recipients
		SET is_read = TRUE, read_at = $1
		WHERE notification_id = $2 AND user_id = $3
	`
	result, err := r.db.ExecContext(ctx, query, at, notificationID, userID)
	r.track("recipients.mark_read", err)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID, tenantID uuid.UUID, projectID *uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE notification_recipients nr
		SET is_read = TRUE, read_at = $1
		FROM notifications n
		WHERE n.id = nr.notification_id
		  AND nr.user_id = $2
		  AND n.tenant_id = $3
		  AND nr.channel_in_app = TRUE
		  AND nr.is_read = FALSE
		  AND ($4::uuid IS NULL OR n.project_id = $4)
	`
	result, err := r.db.ExecContext(ctx, query, at, userID, tenantID, projectID)
	r.track("recipients.mark_all_read", err)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}
	return result.RowsAffected()
}

func (r *notificationRepository) DeleteRecipient(ctx context.Context, notificationID, userID uuid.UUID) error {
	// Only the user's own recipient row goes away; the shared notification
	// stays for everyone else.
	query := `
		DELETE FROM notification_recipients
		WHERE notification_id = $1 AND user_id = $2
	`
	result, err := r.db.ExecContext(ctx, query, notificationID, userID)
	r.track("recipients.delete", err)
	if err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *notificationRepository) FetchDigestRows(ctx context.Context, userID, tenantID uuid.UUID, since time.Time, projectID *uuid.UUID, unreadOnly bool, limit int) ([]*model.DigestRow, error) {
	query := `
		SELECT n.project_id, n.category, n.event_type, n.priority, n.title,
		       n.triggered_at
		FROM notification_recipients nr
		JOIN notifications n ON n.id = nr.notification_id
		WHERE nr.user_id = $1
		  AND n.tenant_id = $2
		  AND nr.channel_in_app = TRUE
		  AND n.created_at >= $3
		  AND ($4::uuid IS NULL OR n.project_id = $4)
		  AND ($5::bool = FALSE OR nr.is_read = FALSE)
		ORDER BY n.created_at DESC
		LIMIT $6
	`
	var rows []*model.DigestRow
	err := r.db.SelectContext(ctx, &rows, query, userID, tenantID, since, projectID, unreadOnly, limit)
	r.track("notifications.digest_rows", err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch digest rows: %w", err)
	}
	return rows, nil
}
