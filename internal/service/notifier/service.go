package notifier

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/email"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/repository"
	apperrors "github.com/Bruno7kp/gestor-de-obras-sub001/pkg/errors"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/logger"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/messaging"
	"github.com/Bruno7kp/gestor-de-obras-sub001/pkg/metrics"
)

const (
	defaultDedupeWindow     = 10 * time.Minute
	defaultTriggerBatchSize = 25
	triggerTimeout          = 30 * time.Second

	directoryCacheTTL   = 30 * time.Second
	directoryCacheSweep = 5 * time.Minute

	defaultFeedLimit = 50
	maxFeedLimit     = 200

	// Channel the emitter publishes created notifications on for real-time
	// in-app consumers.
	createdChannel = "notifications.created"
)

// Per-category permission gates for the user-facing feed. Categories outside
// this map are visible to anyone holding a recipient row.
var categoryPermissions = map[string][]string{
	"WORKFORCE": {"workforce.view", "workforce.edit"},
	"SUPPLIES":  {"supplies.view", "supplies.edit"},
	"FINANCIAL": {"supplies.view", "supplies.edit"},
	"PLANNING":  {"planning.view", "planning.edit"},
}

// Config tunes the emitter and delivery behavior.
type Config struct {
	DedupeWindow     time.Duration
	TriggerBatchSize int
}

// Service is the notification fan-out and delivery engine. Business modules
// only ever call Emit; everything else is the user-facing read side.
type Service struct {
	notifications repository.NotificationRepository
	deliveries    repository.DeliveryRepository
	preferences   repository.PreferenceRepository
	directory     repository.DirectoryRepository
	emailSvc      email.Service
	broker        messaging.Broker
	metrics       *metrics.Metrics
	logger        *logger.Logger
	cfg           Config
	dirCache      *gocache.Cache
}

// NewService wires the engine. broker and metrics may be nil; both are
// best-effort concerns.
func NewService(
	notifications repository.NotificationRepository,
	deliveries repository.DeliveryRepository,
	preferences repository.PreferenceRepository,
	directory repository.DirectoryRepository,
	emailSvc email.Service,
	broker messaging.Broker,
	m *metrics.Metrics,
	log *logger.Logger,
	cfg Config,
) *Service {
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = defaultDedupeWindow
	}
	if cfg.TriggerBatchSize <= 0 {
		cfg.TriggerBatchSize = defaultTriggerBatchSize
	}
	if log == nil {
		log = logger.NewLogger(nil)
	}

	return &Service{
		notifications: notifications,
		deliveries:    deliveries,
		preferences:   preferences,
		directory:     directory,
		emailSvc:      emailSvc,
		broker:        broker,
		metrics:       m,
		logger:        log,
		cfg:           cfg,
		dirCache:      gocache.New(directoryCacheTTL, directoryCacheSweep),
	}
}

// Emit fans one domain event out into a notification plus per-user recipient
// and delivery rows. A nil notification with a nil error means nobody was
// eligible, which is a normal outcome.
func (s *Service) Emit(ctx context.Context, event *model.NotificationEvent) (*model.Notification, error) {
	// The project's actual tenant wins over whatever the caller supplied,
	// so a bad caller cannot leak an event across tenants.
	tenantID := event.TenantID
	if event.ProjectID != nil {
		owner, err := s.directory.ProjectTenant(ctx, *event.ProjectID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperrors.BadRequest("unknown project", err)
			}
			return nil, err
		}
		tenantID = owner
	}

	priority := model.NormalizePriority(event.Priority)

	candidates, err := s.resolveCandidates(ctx, &candidateQuery{
		TenantID:              tenantID,
		ProjectID:             event.ProjectID,
		ActorUserID:           event.ActorUserID,
		SpecificUserIDs:       event.SpecificUserIDs,
		PermissionCodes:       event.PermissionCodes,
		IncludeProjectMembers: event.IncludeProjectMembers,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	metadata := cloneMetadata(event.Metadata)
	if event.ActorUserID != nil {
		actor, err := s.directory.UserProfile(ctx, *event.ActorUserID)
		if err != nil {
			// Degrade to no actor rather than failing the emit.
			s.logger.Warn("failed to load actor profile", "actor_id", event.ActorUserID.String(), "error", err.Error())
		} else {
			if metadata == nil {
				metadata = model.Metadata{}
			}
			metadata["actor"] = actor
		}
	}

	userIDs := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		userIDs[i] = c.ID
	}
	prefs, err := s.resolvePreferences(ctx, userIDs, tenantID, event.ProjectID, event.Category, event.EventType)
	if err != nil {
		return nil, err
	}

	notification, reused, err := s.findOrCreateNotification(ctx, event, tenantID, priority, metadata)
	if err != nil {
		return nil, err
	}

	recipients, deliveries := s.buildFanout(notification, priority, candidates, prefs)

	if err := s.notifications.BulkInsertRecipients(ctx, recipients); err != nil {
		return nil, err
	}
	if err := s.deliveries.BulkInsert(ctx, deliveries); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		if !reused {
			s.metrics.NotificationsEmitted.Inc()
		} else {
			s.metrics.NotificationsDeduped.Inc()
		}
		s.metrics.RecipientsFannedOut.Observe(float64(len(recipients)))
	}

	if len(deliveries) > 0 {
		s.triggerDeliveryProcessing()
	}
	s.publishCreated(ctx, notification, recipients)

	return notification, nil
}

func (s *Service) findOrCreateNotification(ctx context.Context, event *model.NotificationEvent, tenantID uuid.UUID, priority model.Priority, metadata model.Metadata) (*model.Notification, bool, error) {
	triggeredAt := event.TriggeredAt
	if triggeredAt.IsZero() {
		triggeredAt = time.Now()
	}

	notification := &model.Notification{
		ID:          uuid.New(),
		TenantID:    tenantID,
		ProjectID:   event.ProjectID,
		Category:    event.Category,
		EventType:   event.EventType,
		Priority:    priority,
		Title:       event.Title,
		Body:        event.Body,
		Metadata:    metadata,
		TriggeredAt: triggeredAt,
	}

	if event.DedupeKey != "" {
		// The repository makes lookup-plus-insert atomic, so emits racing on
		// one key cannot both create a row.
		key := event.DedupeKey
		notification.DedupeKey = &key
		since := time.Now().Add(-s.cfg.DedupeWindow)
		return s.notifications.FindOrCreateByDedupeKey(ctx, notification, since)
	}

	if err := s.notifications.Create(ctx, notification); err != nil {
		return nil, false, err
	}
	return notification, false, nil
}

// buildFanout applies each candidate's resolved preference and produces the
// recipient and delivery rows to insert.
func (s *Service) buildFanout(n *model.Notification, priority model.Priority, candidates []*model.Candidate, prefs map[uuid.UUID]model.ResolvedPreference) ([]*model.Recipient, []*model.Delivery) {
	var recipients []*model.Recipient
	var deliveries []*model.Delivery

	for _, c := range candidates {
		pref, ok := prefs[c.ID]
		if !ok {
			pref = model.DefaultPreference()
		}
		if !pref.IsEnabled || pref.Frequency == model.FrequencyOff {
			continue
		}
		if priority.Weight() < pref.MinPriority.Weight() {
			continue
		}
		if !pref.ChannelInApp && !pref.ChannelEmail {
			continue
		}

		recipients = append(recipients, &model.Recipient{
			NotificationID: n.ID,
			UserID:         c.ID,
			ChannelInApp:   pref.ChannelInApp,
			ChannelEmail:   pref.ChannelEmail,
		})

		if pref.ChannelEmail {
			status := model.DeliveryStatusPending
			if pref.Frequency == model.FrequencyDigest {
				status = model.DeliveryStatusDigestPending
			}
			deliveries = append(deliveries, &model.Delivery{
				NotificationID: n.ID,
				UserID:         c.ID,
				Channel:        model.ChannelEmail,
				Status:         status,
				Payload:        model.Metadata{"to": c.Email},
			})
		}
	}

	return recipients, deliveries
}

// triggerDeliveryProcessing opportunistically drains a bounded batch of
// pending deliveries without blocking the emitter's caller. Any failure here
// is logged and swallowed; the periodic sweep picks up whatever is left.
func (s *Service) triggerDeliveryProcessing() {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Warn("delivery trigger panicked", "panic", p)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), triggerTimeout)
		defer cancel()

		if _, err := s.ProcessPendingDeliveries(ctx, s.cfg.TriggerBatchSize); err != nil {
			s.logger.Error(err, "opportunistic delivery processing failed")
		}
	}()
}

func (s *Service) publishCreated(ctx context.Context, n *model.Notification, recipients []*model.Recipient) {
	if s.broker == nil || len(recipients) == 0 {
		return
	}

	userIDs := make([]uuid.UUID, len(recipients))
	for i, r := range recipients {
		userIDs[i] = r.UserID
	}
	message := map[string]interface{}{
		"notification_id": n.ID,
		"tenant_id":       n.TenantID,
		"event_type":      n.EventType,
		"user_ids":        userIDs,
	}
	if err := s.broker.Publish(ctx, createdChannel, message); err != nil {
		s.logger.Warn("failed to publish created notification", "notification_id", n.ID.String(), "error", err.Error())
	}
}

// FeedRequest selects a user's visible notifications.
type FeedRequest struct {
	UserID       uuid.UUID
	TenantID     uuid.UUID
	ProjectID    *uuid.UUID
	UnreadOnly   bool
	Limit        int
	Permissions  []string
	IsPrivileged bool
}

// ListForUser returns the user's in-app feed, gated per category by the
// permissions the caller holds.
func (s *Service) ListForUser(ctx context.Context, req *FeedRequest) ([]*model.UserNotification, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	rows, err := s.notifications.ListForUser(ctx, &model.FeedQuery{
		UserID:            req.UserID,
		TenantID:          req.TenantID,
		ProjectID:         req.ProjectID,
		UnreadOnly:        req.UnreadOnly,
		Limit:             limit,
		BlockedCategories: blockedCategories(req.Permissions, req.IsPrivileged),
	})
	if err != nil {
		return nil, err
	}

	for _, n := range rows {
		n.Actor = model.DecodeActor(n.Metadata["actor"])
	}
	return rows, nil
}

// blockedCategories returns the gated categories the caller may not see.
func blockedCategories(permissions []string, privileged bool) []string {
	if privileged {
		return nil
	}

	held := make(map[string]struct{}, len(permissions))
	for _, code := range permissions {
		held[code] = struct{}{}
	}

	var blocked []string
	for category, required := range categoryPermissions {
		allowed := false
		for _, code := range required {
			if _, ok := held[code]; ok {
				allowed = true
				break
			}
		}
		if !allowed {
			blocked = append(blocked, category)
		}
	}
	sort.Strings(blocked)
	return blocked
}

// MarkRead flips the user's recipient row for one notification.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	err := s.notifications.MarkRead(ctx, notificationID, userID, time.Now())
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("notification", err)
	}
	return err
}

// MarkAllRead flips every unread, in-app-visible row for the user, optionally
// scoped to one project. Returns the number of rows flipped.
func (s *Service) MarkAllRead(ctx context.Context, userID, tenantID uuid.UUID, projectID *uuid.UUID) (int64, error) {
	return s.notifications.MarkAllRead(ctx, userID, tenantID, projectID, time.Now())
}

// RemoveForUser deletes the user's own recipient row, never the shared
// notification.
func (s *Service) RemoveForUser(ctx context.Context, notificationID, userID uuid.UUID) error {
	err := s.notifications.DeleteRecipient(ctx, notificationID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFound("notification", err)
	}
	return err
}

func cloneMetadata(m model.Metadata) model.Metadata {
	if m == nil {
		return nil
	}
	out := make(model.Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
