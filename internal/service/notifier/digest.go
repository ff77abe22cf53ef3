package notifier

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
)

const (
	digestMinWindowMinutes     = 5
	digestMaxWindowMinutes     = 43200
	digestDefaultWindowMinutes = 1440

	digestMinGroups     = 1
	digestMaxGroups     = 200
	digestDefaultGroups = 25

	digestFetchLimit = 2000
	maxSampleTitles  = 3
)

// DigestPreview groups the user's recent in-app notifications into
// summarized clusters. Preview only; nothing here schedules a send.
func (s *Service) DigestPreview(ctx context.Context, userID, tenantID uuid.UUID, opts model.DigestOptions) (*model.DigestSummary, error) {
	window := clampInt(opts.WindowMinutes, digestMinWindowMinutes, digestMaxWindowMinutes, digestDefaultWindowMinutes)
	limitGroups := clampInt(opts.LimitGroups, digestMinGroups, digestMaxGroups, digestDefaultGroups)

	now := time.Now()
	since := now.Add(-time.Duration(window) * time.Minute)

	rows, err := s.notifications.FetchDigestRows(ctx, userID, tenantID, since, opts.ProjectID, opts.UnreadOnly, digestFetchLimit)
	if err != nil {
		return nil, err
	}

	type aggregate struct {
		group  model.DigestGroup
		titles map[string]struct{}
	}
	groups := make(map[string]*aggregate)

	for _, row := range rows {
		projectKey := "global"
		if row.ProjectID != nil {
			projectKey = row.ProjectID.String()
		}
		key := fmt.Sprintf("%s|%s|%s", projectKey, row.Category, row.EventType)

		agg, ok := groups[key]
		if !ok {
			agg = &aggregate{
				group: model.DigestGroup{
					ProjectID:        projectKey,
					Category:         row.Category,
					EventType:        row.EventType,
					HighestPriority:  row.Priority,
					FirstTriggeredAt: row.TriggeredAt,
					LastTriggeredAt:  row.TriggeredAt,
				},
				titles: make(map[string]struct{}),
			}
			groups[key] = agg
		}

		agg.group.Count++
		if row.Priority.Weight() > agg.group.HighestPriority.Weight() {
			agg.group.HighestPriority = row.Priority
		}
		if row.TriggeredAt.Before(agg.group.FirstTriggeredAt) {
			agg.group.FirstTriggeredAt = row.TriggeredAt
		}
		if row.TriggeredAt.After(agg.group.LastTriggeredAt) {
			agg.group.LastTriggeredAt = row.TriggeredAt
		}
		if _, seen := agg.titles[row.Title]; !seen && len(agg.group.SampleTitles) < maxSampleTitles {
			agg.titles[row.Title] = struct{}{}
			agg.group.SampleTitles = append(agg.group.SampleTitles, row.Title)
		}
	}

	sorted := make([]model.DigestGroup, 0, len(groups))
	for _, agg := range groups {
		sorted = append(sorted, agg.group)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].LastTriggeredAt.After(sorted[j].LastTriggeredAt)
	})
	if len(sorted) > limitGroups {
		sorted = sorted[:limitGroups]
	}

	groupedEvents := 0
	for _, g := range sorted {
		groupedEvents += g.Count
	}

	return &model.DigestSummary{
		WindowMinutes: window,
		GeneratedAt:   now,
		TotalEvents:   len(rows),
		TotalGroups:   len(sorted),
		GroupedEvents: groupedEvents,
		Groups:        sorted,
	}, nil
}

func clampInt(v, min, max, fallback int) int {
	if v == 0 {
		return fallback
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
