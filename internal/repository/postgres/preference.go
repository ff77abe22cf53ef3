package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
)

type preferenceRepository struct {
	BaseRepository
}

func NewPreferenceRepository(base BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{base}
}

func (r *preferenceRepository) FindMatching(ctx context.Context, userIDs []uuid.UUID, tenantID uuid.UUID, projectID *uuid.UUID, category, eventType string) ([]*model.Preference, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	// When the event has no project only tenant-wide rows can match;
	// otherwise both the project's rows and tenant-wide rows are in play.
	// Fetch order fixes the resolver's first-seen tie-break.
	query := `
		SELECT id, user_id, tenant_id, project_id, category, event_type,
		       channel_in_app, channel_email, frequency, min_priority,
		       is_enabled, created_at, updated_at
		FROM notification_preferences
		WHERE user_id = ANY($1)
		  AND tenant_id = $2
		  AND (project_id IS NULL OR project_id = $3)
		  AND category IN ($4, '*')
		  AND event_type IN ($5, '*')
		ORDER BY created_at ASC, id ASC
	`
	var rows []*model.Preference
	err := r.db.SelectContext(ctx, &rows, query,
		pq.Array(userIDs), tenantID, projectID, category, eventType)
	r.track("preferences.find_matching", err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch preferences: %w", err)
	}
	return rows, nil
}

func (r *preferenceRepository) ListForUser(ctx context.Context, userID, tenantID uuid.UUID) ([]*model.Preference, error) {
	query := `
		SELECT id, user_id, tenant_id, project_id, category, event_type,
		       channel_in_app, channel_email, frequency, min_priority,
		       is_enabled, created_at, updated_at
		FROM notification_preferences
		WHERE user_id = $1 AND tenant_id = $2
		ORDER BY created_at ASC
	`
	var rows []*model.Preference
	err := r.db.SelectContext(ctx, &rows, query, userID, tenantID)
	r.track("preferences.list", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list preferences: %w", err)
	}
	return rows, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, p *model.Preference) error {
	query := `
		INSERT INTO notification_preferences (
			id, user_id, tenant_id, project_id, category, event_type,
			channel_in_app, channel_email, frequency, min_priority,
			is_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (user_id, COALESCE(project_id, '00000000-0000-0000-0000-000000000000'::uuid), category, event_type)
		DO UPDATE SET
			channel_in_app = EXCLUDED.channel_in_app,
			channel_email = EXCLUDED.channel_email,
			frequency = EXCLUDED.frequency,
			min_priority = EXCLUDED.min_priority,
			is_enabled = EXCLUDED.is_enabled,
			updated_at = EXCLUDED.updated_at
	`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.TenantID,
		p.ProjectID,
		p.Category,
		p.EventType,
		p.ChannelInApp,
		p.ChannelEmail,
		p.Frequency,
		p.MinPriority,
		p.IsEnabled,
		now,
	)
	r.track("preferences.upsert", err)
	if err != nil {
		return fmt.Errorf("failed to upsert preference: %w", err)
	}
	return nil
}
