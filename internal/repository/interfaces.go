package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
)

// ErrNotFound is returned when an operation targets a row that does not exist
// for the acting user.
var ErrNotFound = errors.New("not found")

// NotificationRepository persists notifications and their per-user recipient
// rows.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// FindOrCreateByDedupeKey returns the most recent notification in the
	// tenant carrying n's dedupe key and created at or after since, inserting
	// n when none exists. The lookup and insert are atomic with respect to
	// concurrent calls sharing the same (tenant, key), so racing emits
	// converge on one row. Returns true when an existing row was reused.
	FindOrCreateByDedupeKey(ctx context.Context, n *model.Notification, since time.Time) (*model.Notification, bool, error)
	// BulkInsertRecipients inserts with insert-or-skip semantics: rows that
	// collide on (notification_id, user_id) are silently dropped.
	BulkInsertRecipients(ctx context.Context, recipients []*model.Recipient) error
	ListForUser(ctx context.Context, q *model.FeedQuery) ([]*model.UserNotification, error)
	MarkRead(ctx context.Context, notificationID, userID uuid.UUID, at time.Time) error
	MarkAllRead(ctx context.Context, userID, tenantID uuid.UUID, projectID *uuid.UUID, at time.Time) (int64, error)
	DeleteRecipient(ctx context.Context, notificationID, userID uuid.UUID) error
	FetchDigestRows(ctx context.Context, userID, tenantID uuid.UUID, since time.Time, projectID *uuid.UUID, unreadOnly bool, limit int) ([]*model.DigestRow, error)
}

// DeliveryRepository persists out-of-band delivery rows and their retry state.
type DeliveryRepository interface {
	// BulkInsert inserts with insert-or-skip semantics on
	// (notification_id, user_id, channel).
	BulkInsert(ctx context.Context, deliveries []*model.Delivery) error
	// ClaimPendingEmail atomically moves due pending email deliveries to the
	// processing state and returns them joined with send context. Claimed rows
	// are invisible to concurrent claimers.
	ClaimPendingEmail(ctx context.Context, limit int, now time.Time) ([]*model.EmailDelivery, error)
	MarkSent(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error
	MarkRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt *time.Time, lastError string) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastError string) error
	// ReclaimStale returns processing rows whose claim is older than cutoff to
	// the pending state. Recovers from crashed senders.
	ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// PreferenceRepository persists user notification preferences.
type PreferenceRepository interface {
	// FindMatching fetches every preference row that could apply to the given
	// event scope for any of the users.
	FindMatching(ctx context.Context, userIDs []uuid.UUID, tenantID uuid.UUID, projectID *uuid.UUID, category, eventType string) ([]*model.Preference, error)
	ListForUser(ctx context.Context, userID, tenantID uuid.UUID) ([]*model.Preference, error)
	Upsert(ctx context.Context, p *model.Preference) error
}

// DirectoryRepository reads the caller's user/role/permission directory and
// project registry. All methods are pure reads.
type DirectoryRepository interface {
	ProjectTenant(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error)
	UsersWithPermission(ctx context.Context, tenantID uuid.UUID, codes []string) ([]uuid.UUID, error)
	ProjectMembersWithPermission(ctx context.Context, projectID uuid.UUID, codes []string) ([]uuid.UUID, error)
	ProjectMembers(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error)
	// PrivilegedUsers returns global admin roles plus holders of the general
	// project view/edit permissions, regardless of project membership.
	PrivilegedUsers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error)
	ActiveUsers(ctx context.Context, ids []uuid.UUID) ([]*model.Candidate, error)
	UserProfile(ctx context.Context, id uuid.UUID) (*model.Actor, error)
}
