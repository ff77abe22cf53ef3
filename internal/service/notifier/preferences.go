package notifier

import (
	"context"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
)

// Specificity weights. A project-exact row always outranks a tenant-wide one,
// an exact category outranks the wildcard, and so on. The two project scores
// are mutually exclusive.
const (
	scoreProjectExact   = 8
	scoreProjectGlobal  = 2
	scoreCategoryExact  = 4
	scoreCategoryAny    = 1
	scoreEventTypeExact = 2
	scoreEventTypeAny   = 1
)

// resolvePreferences picks the single most specific preference row per user
// and normalizes it. Users without any matching row get the default:
// in-app on, email off, immediate, minimum priority normal.
func (s *Service) resolvePreferences(ctx context.Context, userIDs []uuid.UUID, tenantID uuid.UUID, projectID *uuid.UUID, category, eventType string) (map[uuid.UUID]model.ResolvedPreference, error) {
	rows, err := s.preferences.FindMatching(ctx, userIDs, tenantID, projectID, category, eventType)
	if err != nil {
		return nil, err
	}

	type scored struct {
		pref  *model.Preference
		score int
	}
	best := make(map[uuid.UUID]scored, len(userIDs))

	// Rows arrive in stable fetch order; only a strictly higher score
	// replaces, so the first-seen row wins ties. Deterministic, but which
	// physical row wins a tie is not a guarantee anyone should rely on.
	for _, row := range rows {
		score := scorePreference(row, projectID, category, eventType)
		if current, ok := best[row.UserID]; !ok || score > current.score {
			best[row.UserID] = scored{pref: row, score: score}
		}
	}

	resolved := make(map[uuid.UUID]model.ResolvedPreference, len(userIDs))
	for _, id := range userIDs {
		winner, ok := best[id]
		if !ok {
			resolved[id] = model.DefaultPreference()
			continue
		}
		resolved[id] = normalizePreference(winner.pref)
	}
	return resolved, nil
}

func scorePreference(p *model.Preference, projectID *uuid.UUID, category, eventType string) int {
	score := 0

	if projectID != nil && p.ProjectID != nil && *p.ProjectID == *projectID {
		score += scoreProjectExact
	} else if p.ProjectID == nil {
		score += scoreProjectGlobal
	}

	switch p.Category {
	case category:
		score += scoreCategoryExact
	case model.Wildcard:
		score += scoreCategoryAny
	}

	switch p.EventType {
	case eventType:
		score += scoreEventTypeExact
	case model.Wildcard:
		score += scoreEventTypeAny
	}

	return score
}

func normalizePreference(p *model.Preference) model.ResolvedPreference {
	frequency := p.Frequency
	switch frequency {
	case model.FrequencyImmediate, model.FrequencyDigest, model.FrequencyOff:
	default:
		frequency = model.FrequencyImmediate
	}

	return model.ResolvedPreference{
		ChannelInApp: p.ChannelInApp,
		ChannelEmail: p.ChannelEmail,
		Frequency:    frequency,
		MinPriority:  model.NormalizePriority(string(p.MinPriority)),
		IsEnabled:    p.IsEnabled,
	}
}
