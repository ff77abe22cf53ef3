package notifier

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/email"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/logger"
)

func recipientKey(notificationID, userID uuid.UUID) string {
	return notificationID.String() + "|" + userID.String()
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []*model.Notification
	recipients    map[string]*model.Recipient
	digestRows    []*model.DigestRow
	feed          []*model.UserNotification
	lastFeedQuery *model.FeedQuery
	lastSince     time.Time
	lastLimit     int
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{recipients: make(map[string]*model.Recipient)}
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeNotificationRepo) FindOrCreateByDedupeKey(_ context.Context, n *model.Notification, since time.Time) (*model.Notification, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.notifications) - 1; i >= 0; i-- {
		existing := f.notifications[i]
		if existing.TenantID == n.TenantID && existing.DedupeKey != nil &&
			*existing.DedupeKey == *n.DedupeKey && !existing.CreatedAt.Before(since) {
			return existing, true, nil
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	f.notifications = append(f.notifications, n)
	return n, false, nil
}

func (f *fakeNotificationRepo) BulkInsertRecipients(_ context.Context, recipients []*model.Recipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range recipients {
		key := recipientKey(r.NotificationID, r.UserID)
		if _, exists := f.recipients[key]; exists {
			continue
		}
		f.recipients[key] = r
	}
	return nil
}

func (f *fakeNotificationRepo) ListForUser(_ context.Context, q *model.FeedQuery) ([]*model.UserNotification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFeedQuery = q
	return f.feed, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, notificationID, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipients[recipientKey(notificationID, userID)]
	if !ok {
		return repository.ErrNotFound
	}
	r.IsRead = true
	r.ReadAt = &at
	return nil
}

func (f *fakeNotificationRepo) MarkAllRead(_ context.Context, userID, tenantID uuid.UUID, projectID *uuid.UUID, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byID := make(map[uuid.UUID]*model.Notification, len(f.notifications))
	for _, n := range f.notifications {
		byID[n.ID] = n
	}

	var updated int64
	for _, r := range f.recipients {
		if r.UserID != userID || r.IsRead || !r.ChannelInApp {
			continue
		}
		n, ok := byID[r.NotificationID]
		if !ok || n.TenantID != tenantID {
			continue
		}
		if projectID != nil && (n.ProjectID == nil || *n.ProjectID != *projectID) {
			continue
		}
		r.IsRead = true
		r.ReadAt = &at
		updated++
	}
	return updated, nil
}

func (f *fakeNotificationRepo) DeleteRecipient(_ context.Context, notificationID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := recipientKey(notificationID, userID)
	if _, ok := f.recipients[key]; !ok {
		return repository.ErrNotFound
	}
	delete(f.recipients, key)
	return nil
}

func (f *fakeNotificationRepo) FetchDigestRows(_ context.Context, _, _ uuid.UUID, since time.Time, _ *uuid.UUID, _ bool, limit int) ([]*model.DigestRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSince = since
	f.lastLimit = limit
	return f.digestRows, nil
}

func (f *fakeNotificationRepo) recipientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recipients)
}

func (f *fakeNotificationRepo) recipient(notificationID, userID uuid.UUID) *model.Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recipients[recipientKey(notificationID, userID)]
}

func (f *fakeNotificationRepo) notificationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notifications)
}

type retryCall struct {
	attempts      int
	nextAttemptAt *time.Time
	lastError     string
}

type failCall struct {
	attempts  int
	lastError string
}

type fakeDeliveryRepo struct {
	mu             sync.Mutex
	inserted       map[string]*model.Delivery
	claimable      []*model.EmailDelivery
	lastClaimLimit int
	sent           map[uuid.UUID]int
	retries        map[uuid.UUID]retryCall
	failed         map[uuid.UUID]failCall
	staleCutoff    time.Time
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{
		inserted: make(map[string]*model.Delivery),
		sent:     make(map[uuid.UUID]int),
		retries:  make(map[uuid.UUID]retryCall),
		failed:   make(map[uuid.UUID]failCall),
	}
}

func (f *fakeDeliveryRepo) BulkInsert(_ context.Context, deliveries []*model.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range deliveries {
		key := recipientKey(d.NotificationID, d.UserID) + "|" + d.Channel
		if _, exists := f.inserted[key]; exists {
			continue
		}
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		f.inserted[key] = d
	}
	return nil
}

func (f *fakeDeliveryRepo) ClaimPendingEmail(_ context.Context, limit int, _ time.Time) ([]*model.EmailDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastClaimLimit = limit
	claimed := f.claimable
	if len(claimed) > limit {
		claimed = claimed[:limit]
		f.claimable = f.claimable[limit:]
	} else {
		f.claimable = nil
	}
	return claimed, nil
}

func (f *fakeDeliveryRepo) MarkSent(_ context.Context, id uuid.UUID, attempts int, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = attempts
	return nil
}

func (f *fakeDeliveryRepo) MarkRetry(_ context.Context, id uuid.UUID, attempts int, nextAttemptAt *time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retries[id] = retryCall{attempts: attempts, nextAttemptAt: nextAttemptAt, lastError: lastError}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailed(_ context.Context, id uuid.UUID, attempts int, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = failCall{attempts: attempts, lastError: lastError}
	return nil
}

func (f *fakeDeliveryRepo) ReclaimStale(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staleCutoff = cutoff
	return 0, nil
}

func (f *fakeDeliveryRepo) insertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func (f *fakeDeliveryRepo) insertedFor(notificationID, userID uuid.UUID) *model.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserted[recipientKey(notificationID, userID)+"|"+model.ChannelEmail]
}

type fakePreferenceRepo struct {
	mu   sync.Mutex
	rows []*model.Preference
}

func (f *fakePreferenceRepo) FindMatching(_ context.Context, userIDs []uuid.UUID, tenantID uuid.UUID, projectID *uuid.UUID, category, eventType string) ([]*model.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		users[id] = struct{}{}
	}

	var matched []*model.Preference
	for _, p := range f.rows {
		if _, ok := users[p.UserID]; !ok || p.TenantID != tenantID {
			continue
		}
		if p.ProjectID != nil && (projectID == nil || *p.ProjectID != *projectID) {
			continue
		}
		if p.Category != category && p.Category != model.Wildcard {
			continue
		}
		if p.EventType != eventType && p.EventType != model.Wildcard {
			continue
		}
		matched = append(matched, p)
	}
	return matched, nil
}

func (f *fakePreferenceRepo) ListForUser(_ context.Context, userID, tenantID uuid.UUID) ([]*model.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var rows []*model.Preference
	for _, p := range f.rows {
		if p.UserID == userID && p.TenantID == tenantID {
			rows = append(rows, p)
		}
	}
	return rows, nil
}

func (f *fakePreferenceRepo) Upsert(_ context.Context, p *model.Preference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, p)
	return nil
}

type fakeDirectory struct {
	projectTenants     map[uuid.UUID]uuid.UUID
	tenantPermHolders  []uuid.UUID
	projectPermHolders []uuid.UUID
	members            []uuid.UUID
	privileged         []uuid.UUID
	active             map[uuid.UUID]*model.Candidate
	profiles           map[uuid.UUID]*model.Actor
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		projectTenants: make(map[uuid.UUID]uuid.UUID),
		active:         make(map[uuid.UUID]*model.Candidate),
		profiles:       make(map[uuid.UUID]*model.Actor),
	}
}

func (f *fakeDirectory) addActive(id uuid.UUID, email string) {
	f.active[id] = &model.Candidate{ID: id, Email: email, Name: email}
}

func (f *fakeDirectory) ProjectTenant(_ context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	tenantID, ok := f.projectTenants[projectID]
	if !ok {
		return uuid.Nil, repository.ErrNotFound
	}
	return tenantID, nil
}

func (f *fakeDirectory) UsersWithPermission(_ context.Context, _ uuid.UUID, _ []string) ([]uuid.UUID, error) {
	return f.tenantPermHolders, nil
}

func (f *fakeDirectory) ProjectMembersWithPermission(_ context.Context, _ uuid.UUID, _ []string) ([]uuid.UUID, error) {
	return f.projectPermHolders, nil
}

func (f *fakeDirectory) ProjectMembers(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return f.members, nil
}

func (f *fakeDirectory) PrivilegedUsers(_ context.Context, _ uuid.UUID) ([]uuid.UUID, error) {
	return f.privileged, nil
}

func (f *fakeDirectory) ActiveUsers(_ context.Context, ids []uuid.UUID) ([]*model.Candidate, error) {
	var out []*model.Candidate
	for _, id := range ids {
		if c, ok := f.active[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDirectory) UserProfile(_ context.Context, id uuid.UUID) (*model.Actor, error) {
	actor, ok := f.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return actor, nil
}

type fakeEmail struct {
	mu      sync.Mutex
	sent    []*email.Message
	failFor map[string]error
}

func newFakeEmail() *fakeEmail {
	return &fakeEmail{failFor: make(map[string]error)}
}

func (f *fakeEmail) Send(_ context.Context, msg *email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[msg.To]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEmail) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	notifications *fakeNotificationRepo
	deliveries    *fakeDeliveryRepo
	preferences   *fakePreferenceRepo
	directory     *fakeDirectory
	mail          *fakeEmail
	service       *Service
}

func newTestEnv() *testEnv {
	env := &testEnv{
		notifications: newFakeNotificationRepo(),
		deliveries:    newFakeDeliveryRepo(),
		preferences:   &fakePreferenceRepo{},
		directory:     newFakeDirectory(),
		mail:          newFakeEmail(),
	}
	quiet := logger.NewLogger(&logger.Config{
		Level:      logger.ErrorLevel,
		TimeFormat: time.RFC3339,
		Output:     io.Discard,
	})
	env.service = NewService(
		env.notifications,
		env.deliveries,
		env.preferences,
		env.directory,
		env.mail,
		nil,
		nil,
		quiet,
		Config{},
	)
	return env
}
