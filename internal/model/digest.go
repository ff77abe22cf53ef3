package model

import (
	"time"

	"github.com/google/uuid"
)

// DigestOptions tune the digest preview window. Out-of-range values are
// clamped, not rejected.
type DigestOptions struct {
	WindowMinutes int
	LimitGroups   int
	ProjectID     *uuid.UUID
	UnreadOnly    bool
}

// DigestRow is one notification as seen by the aggregator.
type DigestRow struct {
	ProjectID   *uuid.UUID `db:"project_id"`
	Category    string     `db:"category"`
	EventType   string     `db:"event_type"`
	Priority    Priority   `db:"priority"`
	Title       string     `db:"title"`
	TriggeredAt time.Time  `db:"triggered_at"`
}

// DigestGroup is one summarized cluster of a user's recent notifications.
type DigestGroup struct {
	ProjectID        string    `json:"project_id"`
	Category         string    `json:"category"`
	EventType        string    `json:"event_type"`
	Count            int       `json:"count"`
	HighestPriority  Priority  `json:"highest_priority"`
	FirstTriggeredAt time.Time `json:"first_triggered_at"`
	LastTriggeredAt  time.Time `json:"last_triggered_at"`
	SampleTitles     []string  `json:"sample_titles"`
}

// DigestSummary is the digest preview returned to the user.
type DigestSummary struct {
	WindowMinutes int           `json:"window_minutes"`
	GeneratedAt   time.Time     `json:"generated_at"`
	TotalEvents   int           `json:"total_events"`
	TotalGroups   int           `json:"total_groups"`
	GroupedEvents int           `json:"grouped_events"`
	Groups        []DigestGroup `json:"groups"`
}
