package model

import (
	"time"

	"github.com/google/uuid"
)

// Frequency controls when the email channel fires for a matching event.
type Frequency string

const (
	FrequencyImmediate Frequency = "immediate"
	FrequencyDigest    Frequency = "digest"
	FrequencyOff       Frequency = "off"
)

// Wildcard matches any category or event type in a preference scope.
const Wildcard = "*"

// Preference is one user-managed notification preference row. A user may hold
// several overlapping rows of differing specificity; the resolver picks the
// most specific one per event.
type Preference struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       uuid.UUID  `db:"user_id" json:"user_id"`
	TenantID     uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ProjectID    *uuid.UUID `db:"project_id" json:"project_id,omitempty"`
	Category     string     `db:"category" json:"category"`
	EventType    string     `db:"event_type" json:"event_type"`
	ChannelInApp bool       `db:"channel_in_app" json:"channel_in_app"`
	ChannelEmail bool       `db:"channel_email" json:"channel_email"`
	Frequency    Frequency  `db:"frequency" json:"frequency"`
	MinPriority  Priority   `db:"min_priority" json:"min_priority"`
	IsEnabled    bool       `db:"is_enabled" json:"is_enabled"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// ResolvedPreference is the normalized per-user outcome of preference
// resolution for one event.
type ResolvedPreference struct {
	ChannelInApp bool      `json:"channel_in_app"`
	ChannelEmail bool      `json:"channel_email"`
	Frequency    Frequency `json:"frequency"`
	MinPriority  Priority  `json:"min_priority"`
	IsEnabled    bool      `json:"is_enabled"`
}

// DefaultPreference applies when a user has no matching preference rows.
func DefaultPreference() ResolvedPreference {
	return ResolvedPreference{
		ChannelInApp: true,
		ChannelEmail: false,
		Frequency:    FrequencyImmediate,
		MinPriority:  PriorityNormal,
		IsEnabled:    true,
	}
}
