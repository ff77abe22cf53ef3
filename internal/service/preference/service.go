package preference

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
)

// Service manages a user's notification preference rows. Resolution against
// events lives in the notifier; this is plain upkeep.
type Service struct {
	repo repository.PreferenceRepository
}

func NewService(repo repository.PreferenceRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) ListPreferences(ctx context.Context, userID, tenantID uuid.UUID) ([]*model.Preference, error) {
	return s.repo.ListForUser(ctx, userID, tenantID)
}

// UpsertPreference creates or replaces the row keyed by
// (user, project, category, event type). Category and event type default to
// the wildcard.
func (s *Service) UpsertPreference(ctx context.Context, p *model.Preference) (*model.Preference, error) {
	if err := s.validate(p); err != nil {
		return nil, fmt.Errorf("invalid preference: %w", err)
	}

	if p.Category == "" {
		p.Category = model.Wildcard
	}
	if p.EventType == "" {
		p.EventType = model.Wildcard
	}
	p.MinPriority = model.NormalizePriority(string(p.MinPriority))
	switch p.Frequency {
	case model.FrequencyImmediate, model.FrequencyDigest, model.FrequencyOff:
	default:
		p.Frequency = model.FrequencyImmediate
	}

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) validate(p *model.Preference) error {
	if p.UserID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if p.TenantID == uuid.Nil {
		return fmt.Errorf("tenant ID is required")
	}
	return nil
}
