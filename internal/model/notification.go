package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Priority orders notifications from least to most urgent.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityWeights = map[Priority]int{
	PriorityLow:      1,
	PriorityNormal:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Weight returns the ordering weight of the priority; unknown values weigh
// the same as normal.
func (p Priority) Weight() int {
	if w, ok := priorityWeights[p]; ok {
		return w
	}
	return priorityWeights[PriorityNormal]
}

// NormalizePriority maps arbitrary caller input onto a known priority.
func NormalizePriority(s string) Priority {
	p := Priority(s)
	if _, ok := priorityWeights[p]; ok {
		return p
	}
	return PriorityNormal
}

// Metadata is a free-form JSON object column.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(data, m)
}

// Notification is the shared, immutable event record. Per-user state lives on
// Recipient and Delivery rows.
type Notification struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TenantID    uuid.UUID  `db:"tenant_id" json:"tenant_id"`
	ProjectID   *uuid.UUID `db:"project_id" json:"project_id,omitempty"`
	Category    string     `db:"category" json:"category"`
	EventType   string     `db:"event_type" json:"event_type"`
	Priority    Priority   `db:"priority" json:"priority"`
	Title       string     `db:"title" json:"title"`
	Body        string     `db:"body" json:"body"`
	Metadata    Metadata   `db:"metadata" json:"metadata,omitempty"`
	DedupeKey   *string    `db:"dedupe_key" json:"dedupe_key,omitempty"`
	TriggeredAt time.Time  `db:"triggered_at" json:"triggered_at"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Recipient links a notification to a user and tracks in-app read state.
// At most one row exists per (notification, user).
type Recipient struct {
	NotificationID uuid.UUID  `db:"notification_id" json:"notification_id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	ChannelInApp   bool       `db:"channel_in_app" json:"channel_in_app"`
	ChannelEmail   bool       `db:"channel_email" json:"channel_email"`
	IsRead         bool       `db:"is_read" json:"is_read"`
	ReadAt         *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

type DeliveryStatus string

const (
	DeliveryStatusPending       DeliveryStatus = "pending"
	DeliveryStatusProcessing    DeliveryStatus = "processing"
	DeliveryStatusDigestPending DeliveryStatus = "digest_pending"
	DeliveryStatusSent          DeliveryStatus = "sent"
	DeliveryStatusFailed        DeliveryStatus = "failed"
)

const ChannelEmail = "email"

// Delivery is the out-of-band send record for one (notification, user,
// channel) triple, including its retry state.
type Delivery struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	NotificationID uuid.UUID      `db:"notification_id" json:"notification_id"`
	UserID         uuid.UUID      `db:"user_id" json:"user_id"`
	Channel        string         `db:"channel" json:"channel"`
	Status         DeliveryStatus `db:"status" json:"status"`
	Attempts       int            `db:"attempts" json:"attempts"`
	NextAttemptAt  *time.Time     `db:"next_attempt_at" json:"next_attempt_at,omitempty"`
	LastError      *string        `db:"last_error" json:"last_error,omitempty"`
	SentAt         *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	Payload        Metadata       `db:"payload" json:"payload,omitempty"`
	ClaimedAt      *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// UserNotification is a notification joined with the acting user's recipient
// row, as returned by the user-facing feed.
type UserNotification struct {
	Notification
	ChannelInApp bool       `db:"channel_in_app" json:"channel_in_app"`
	ChannelEmail bool       `db:"channel_email" json:"channel_email"`
	IsRead       bool       `db:"is_read" json:"is_read"`
	ReadAt       *time.Time `db:"read_at" json:"read_at,omitempty"`
	// Actor is decoded from the metadata snapshot after the row is fetched.
	Actor *Actor `db:"-" json:"actor,omitempty"`
}

// EmailDelivery is a claimed delivery row joined with the notification and
// recipient address needed to render and send the email.
type EmailDelivery struct {
	Delivery
	TenantID    uuid.UUID  `db:"tenant_id"`
	ProjectID   *uuid.UUID `db:"project_id"`
	ProjectName *string    `db:"project_name"`
	Category    string     `db:"category"`
	Priority    Priority   `db:"priority"`
	Title       string     `db:"title"`
	Body        string     `db:"body"`
	Email       string     `db:"email"`
}

// FeedQuery selects a user's visible notifications.
type FeedQuery struct {
	UserID            uuid.UUID
	TenantID          uuid.UUID
	ProjectID         *uuid.UUID
	UnreadOnly        bool
	Limit             int
	BlockedCategories []string
}
