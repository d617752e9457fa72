package audit

import "time"

// EventType categorizes an audit event.
type EventType string

const (
	EventWorkspaceCreate EventType = "workspace.create"
	EventWorkspaceDelete EventType = "workspace.delete"
	EventReconcileRun    EventType = "workspace.reconcile"

	EventMemberAdd        EventType = "member.add"
	EventMemberRemove     EventType = "member.remove"
	EventMemberRoleChange EventType = "member.role_change"

	EventAccessDenied EventType = "authz.access_denied"
)

// EventStatus is the outcome of the recorded action.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusPartial EventStatus = "partial"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// Event is a single audit log entry.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor is the subject who performed the action; empty for the
	// reconciliation schedule.
	Actor string `json:"actor,omitempty"`

	// Org is the organization the action targeted.
	Org string `json:"org,omitempty"`

	// Subject is the user or resource acted upon (the added member, the
	// changed role), when distinct from the actor.
	Subject string `json:"subject,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}
