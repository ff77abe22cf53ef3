package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bruno7kp/gestor-de-obras-sub001/internal/model"
	apperrors "github.com/Bruno7kp/gestor-de-obras-sub001/pkg/errors"
)

func baseEvent(tenantID uuid.UUID, users ...uuid.UUID) *model.NotificationEvent {
	return &model.NotificationEvent{
		TenantID:        tenantID,
		Category:        "FINANCIAL",
		EventType:       "EXPENSE_PAID",
		Title:           "Expense paid",
		Body:            "Expense #123 was paid",
		Priority:        "high",
		SpecificUserIDs: users,
	}
}

func TestEmit_NoCandidatesReturnsNil(t *testing.T) {
	env := newTestEnv()

	n, err := env.service.Emit(context.Background(), baseEvent(uuid.New()))
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Zero(t, env.notifications.notificationCount())
}

func TestEmit_CreatesNotificationAndRecipients(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userA := uuid.New()
	userB := uuid.New()
	env.directory.addActive(userA, "a@example.com")
	env.directory.addActive(userB, "b@example.com")

	n, err := env.service.Emit(context.Background(), baseEvent(tenantID, userA, userB))
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, tenantID, n.TenantID)
	assert.Equal(t, model.PriorityHigh, n.Priority)
	assert.Equal(t, 2, env.notifications.recipientCount())
	// Default preference has email off, so no deliveries.
	assert.Zero(t, env.deliveries.insertedCount())
}

func TestEmit_UnknownPriorityNormalizesToNormal(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	event := baseEvent(uuid.New(), userID)
	event.Priority = "urgent!!"

	n, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityNormal, n.Priority)
}

func TestEmit_DedupeReusesNotificationWithinWindow(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userA := uuid.New()
	userB := uuid.New()
	env.directory.addActive(userA, "a@example.com")
	env.directory.addActive(userB, "b@example.com")

	event := baseEvent(tenantID, userA, userB)
	event.DedupeKey = "expense:123:PAID"

	first, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)
	second, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, env.notifications.notificationCount())
	assert.Equal(t, 2, env.notifications.recipientCount())
}

func TestEmit_ConcurrentEmitsOnOneDedupeKeyConvergeOnOneNotification(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	event := baseEvent(tenantID, userID)
	event.DedupeKey = "expense:123:PAID"

	const emitters = 8
	var wg sync.WaitGroup
	errs := make(chan error, emitters)
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.service.Emit(context.Background(), event)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, env.notifications.notificationCount())
	assert.Equal(t, 1, env.notifications.recipientCount())
}

func TestEmit_DedupeExpiresOutsideWindow(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	event := baseEvent(tenantID, userID)
	event.DedupeKey = "expense:123:PAID"

	first, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)

	// Age the first notification past the dedupe window.
	env.notifications.mu.Lock()
	env.notifications.notifications[0].CreatedAt = time.Now().Add(-11 * time.Minute)
	env.notifications.mu.Unlock()

	second, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, env.notifications.notificationCount())
}

func TestEmit_ProjectTenantOverridesCaller(t *testing.T) {
	env := newTestEnv()
	realTenant := uuid.New()
	projectID := uuid.New()
	userID := uuid.New()
	env.directory.projectTenants[projectID] = realTenant
	env.directory.addActive(userID, "u@example.com")

	event := baseEvent(uuid.New(), userID)
	event.ProjectID = &projectID

	n, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, realTenant, n.TenantID)
}

func TestEmit_UnknownProjectRejected(t *testing.T) {
	env := newTestEnv()
	projectID := uuid.New()

	event := baseEvent(uuid.New(), uuid.New())
	event.ProjectID = &projectID

	_, err := env.service.Emit(context.Background(), event)
	require.Error(t, err)

	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrBadRequest, appErr.Code)
}

func TestEmit_ActorSnapshotMergedIntoMetadata(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	actorID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")
	env.directory.addActive(actorID, "actor@example.com")
	env.directory.profiles[actorID] = &model.Actor{ID: actorID, Name: "Maria"}

	event := baseEvent(tenantID, userID)
	event.ActorUserID = &actorID
	event.Metadata = model.Metadata{"expense_id": "123", "actor": "stale"}

	n, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)

	assert.Equal(t, "123", n.Metadata["expense_id"])
	actor, ok := n.Metadata["actor"].(*model.Actor)
	require.True(t, ok)
	assert.Equal(t, "Maria", actor.Name)
	// The caller's copy stays untouched.
	assert.Equal(t, "stale", event.Metadata["actor"])
}

func TestEmit_MissingActorProfileDegradesToNoActor(t *testing.T) {
	env := newTestEnv()
	actorID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	event := baseEvent(uuid.New(), userID)
	event.ActorUserID = &actorID

	n, err := env.service.Emit(context.Background(), event)
	require.NoError(t, err)
	assert.NotContains(t, n.Metadata, "actor")
}

func TestEmit_PriorityBelowMinYieldsNoRows(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	pref := prefRow(userID, tenantID, nil, "*", "*")
	pref.MinPriority = model.PriorityCritical
	env.preferences.rows = []*model.Preference{pref}

	n, err := env.service.Emit(context.Background(), baseEvent(tenantID, userID))
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Zero(t, env.notifications.recipientCount())
	assert.Zero(t, env.deliveries.insertedCount())
}

func TestEmit_SkipsDisabledOffAndChannelless(t *testing.T) {
	tenantID := uuid.New()

	tests := []struct {
		name  string
		tweak func(p *model.Preference)
	}{
		{"disabled", func(p *model.Preference) { p.IsEnabled = false }},
		{"frequency off", func(p *model.Preference) { p.Frequency = model.FrequencyOff }},
		{"no channels", func(p *model.Preference) { p.ChannelInApp = false; p.ChannelEmail = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			userID := uuid.New()
			env.directory.addActive(userID, "u@example.com")

			pref := prefRow(userID, tenantID, nil, "*", "*")
			tt.tweak(pref)
			env.preferences.rows = []*model.Preference{pref}

			_, err := env.service.Emit(context.Background(), baseEvent(tenantID, userID))
			require.NoError(t, err)
			assert.Zero(t, env.notifications.recipientCount())
		})
	}
}

func TestEmit_EmailChannelCreatesDelivery(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	inAppOnly := uuid.New()
	emailUser := uuid.New()
	digestUser := uuid.New()
	env.directory.addActive(inAppOnly, "inapp@example.com")
	env.directory.addActive(emailUser, "mail@example.com")
	env.directory.addActive(digestUser, "digest@example.com")

	emailPref := prefRow(emailUser, tenantID, nil, "*", "*")
	emailPref.ChannelEmail = true
	digestPref := prefRow(digestUser, tenantID, nil, "*", "*")
	digestPref.ChannelEmail = true
	digestPref.Frequency = model.FrequencyDigest
	env.preferences.rows = []*model.Preference{emailPref, digestPref}

	n, err := env.service.Emit(context.Background(), baseEvent(tenantID, inAppOnly, emailUser, digestUser))
	require.NoError(t, err)

	assert.Equal(t, 3, env.notifications.recipientCount())
	assert.Equal(t, 2, env.deliveries.insertedCount())

	immediate := env.deliveries.insertedFor(n.ID, emailUser)
	require.NotNil(t, immediate)
	assert.Equal(t, model.DeliveryStatusPending, immediate.Status)

	digest := env.deliveries.insertedFor(n.ID, digestUser)
	require.NotNil(t, digest)
	assert.Equal(t, model.DeliveryStatusDigestPending, digest.Status)

	assert.Nil(t, env.deliveries.insertedFor(n.ID, inAppOnly))
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	n, err := env.service.Emit(context.Background(), baseEvent(tenantID, userID))
	require.NoError(t, err)

	require.NoError(t, env.service.MarkRead(context.Background(), n.ID, userID))

	r := env.notifications.recipient(n.ID, userID)
	assert.True(t, r.IsRead)
	assert.NotNil(t, r.ReadAt)
}

func TestMarkRead_NotFound(t *testing.T) {
	env := newTestEnv()

	err := env.service.MarkRead(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMarkAllRead_OnlyUnreadInAppRows(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userID := uuid.New()
	env.directory.addActive(userID, "u@example.com")

	first, err := env.service.Emit(context.Background(), baseEvent(tenantID, userID))
	require.NoError(t, err)
	event := baseEvent(tenantID, userID)
	event.EventType = "EXPENSE_APPROVED"
	_, err = env.service.Emit(context.Background(), event)
	require.NoError(t, err)

	require.NoError(t, env.service.MarkRead(context.Background(), first.ID, userID))

	updated, err := env.service.MarkAllRead(context.Background(), userID, tenantID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
}

func TestRemoveForUser_DeletesOnlyRecipientRow(t *testing.T) {
	env := newTestEnv()
	tenantID := uuid.New()
	userA := uuid.New()
	userB := uuid.New()
	env.directory.addActive(userA, "a@example.com")
	env.directory.addActive(userB, "b@example.com")

	n, err := env.service.Emit(context.Background(), baseEvent(tenantID, userA, userB))
	require.NoError(t, err)

	require.NoError(t, env.service.RemoveForUser(context.Background(), n.ID, userA))

	assert.Nil(t, env.notifications.recipient(n.ID, userA))
	assert.NotNil(t, env.notifications.recipient(n.ID, userB))
	assert.Equal(t, 1, env.notifications.notificationCount())

	err = env.service.RemoveForUser(context.Background(), n.ID, userA)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBlockedCategories(t *testing.T) {
	assert.Nil(t, blockedCategories([]string{}, true))

	blocked := blockedCategories([]string{"workforce.view"}, false)
	assert.Equal(t, []string{"FINANCIAL", "PLANNING", "SUPPLIES"}, blocked)

	blocked = blockedCategories([]string{"supplies.edit", "planning.view"}, false)
	assert.Equal(t, []string{"WORKFORCE"}, blocked)

	blocked = blockedCategories(nil, false)
	assert.Equal(t, []string{"FINANCIAL", "PLANNING", "SUPPLIES", "WORKFORCE"}, blocked)
}

func TestListForUser_DecodesActorSnapshot(t *testing.T) {
	env := newTestEnv()
	actorID := uuid.New()

	withActor := &model.UserNotification{}
	withActor.Title = "Expense paid"
	withActor.Metadata = model.Metadata{
		"actor": map[string]interface{}{"id": actorID.String(), "name": "Maria"},
	}
	withoutActor := &model.UserNotification{}
	withoutActor.Title = "Stock low"
	env.notifications.feed = []*model.UserNotification{withActor, withoutActor}

	rows, err := env.service.ListForUser(context.Background(), &FeedRequest{
		UserID:       uuid.New(),
		TenantID:     uuid.New(),
		IsPrivileged: true,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].Actor)
	assert.Equal(t, actorID, rows[0].Actor.ID)
	assert.Equal(t, "Maria", rows[0].Actor.Name)
	assert.Nil(t, rows[1].Actor)
}

func TestListForUser_LimitClampAndGates(t *testing.T) {
	env := newTestEnv()
	userID := uuid.New()
	tenantID := uuid.New()

	_, err := env.service.ListForUser(context.Background(), &FeedRequest{
		UserID:   userID,
		TenantID: tenantID,
		Limit:    1000,
	})
	require.NoError(t, err)

	q := env.notifications.lastFeedQuery
	assert.Equal(t, maxFeedLimit, q.Limit)
	assert.Equal(t, []string{"FINANCIAL", "PLANNING", "SUPPLIES", "WORKFORCE"}, q.BlockedCategories)

	_, err = env.service.ListForUser(context.Background(), &FeedRequest{
		UserID:       userID,
		TenantID:     tenantID,
		IsPrivileged: true,
	})
	require.NoError(t, err)
	assert.Equal(t, defaultFeedLimit, env.notifications.lastFeedQuery.Limit)
	assert.Nil(t, env.notifications.lastFeedQuery.BlockedCategories)
}
