package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationEvent is the single ingress payload every business module uses
// to request a notification. The emitter decides who actually gets told.
type NotificationEvent struct {
	TenantID              uuid.UUID   `json:"tenant_id" binding:"required"`
	ProjectID             *uuid.UUID  `json:"project_id,omitempty"`
	ActorUserID           *uuid.UUID  `json:"actor_user_id,omitempty"`
	Category              string      `json:"category" binding:"required"`
	EventType             string      `json:"event_type" binding:"required"`
	Title                 string      `json:"title" binding:"required"`
	Body                  string      `json:"body"`
	Priority              string      `json:"priority,omitempty"`
	Metadata              Metadata    `json:"metadata,omitempty"`
	DedupeKey             string      `json:"dedupe_key,omitempty"`
	SpecificUserIDs       []uuid.UUID `json:"specific_user_ids,omitempty"`
	PermissionCodes       []string    `json:"permission_codes,omitempty"`
	IncludeProjectMembers bool        `json:"include_project_members,omitempty"`
	TriggeredAt           time.Time   `json:"triggered_at,omitempty"`
}

// Actor is the public snapshot of the user who caused an event, embedded into
// notification metadata under the "actor" key.
type Actor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url,omitempty"`
}

// DecodeActor validates an arbitrary metadata value as an actor snapshot.
// Anything that does not look like one decodes to nil rather than erroring.
func DecodeActor(v interface{}) *Actor {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	rawID, ok := m["id"].(string)
	if !ok {
		return nil
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil
	}
	actor := &Actor{ID: id}
	if name, ok := m["name"].(string); ok {
		actor.Name = name
	}
	if avatar, ok := m["avatar_url"].(string); ok {
		actor.AvatarURL = avatar
	}
	return actor
}
