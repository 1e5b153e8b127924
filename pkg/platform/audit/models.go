package audit

import "time"

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to security monitoring and
	// forensics, such as trust verification failures.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational
	// visibility. These can be sampled with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key pipeline actions. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	TenantID  string        `json:"tenant_id,omitempty"`
	ReceiptID string        `json:"receipt_id,omitempty"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	ActorID   string        `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Ingestion events
	EventReceiptIngested     AuditEvent = "receipt_ingested"
	EventReceiptDeadLettered AuditEvent = "receipt_dead_lettered"
	EventOrphanDetected      AuditEvent = "orphan_detected"

	// Trust events
	EventTrustVerificationFailed AuditEvent = "trust_verification_failed"
	EventKeyAdded                AuditEvent = "key_added"
	EventCRLReplaced             AuditEvent = "crl_replaced"

	// Retention events
	EventRetentionTransition AuditEvent = "retention_transition"
	EventLegalHoldSkipped    AuditEvent = "legal_hold_skipped"
	EventLegalHoldChanged    AuditEvent = "legal_hold_changed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventReceiptIngested:     CategoryOperations,
	EventReceiptDeadLettered: CategorySecurity,
	EventOrphanDetected:      CategoryOperations,

	EventTrustVerificationFailed: CategorySecurity,
	EventKeyAdded:                CategorySecurity,
	EventCRLReplaced:             CategorySecurity,

	EventRetentionTransition: CategoryCompliance,
	EventLegalHoldSkipped:    CategoryCompliance,
	EventLegalHoldChanged:    CategoryCompliance,
}

// Category returns the event's category, defaulting to operations for
// unmapped actions.
func (e AuditEvent) Category() EventCategory {
	if category, ok := eventCategories[e]; ok {
		return category
	}
	return CategoryOperations
}

// NewEvent builds an Event for the given action with the category filled in.
// The publisher stamps the timestamp if the caller leaves it zero.
func NewEvent(action AuditEvent) Event {
	return Event{
		Category: action.Category(),
		Action:   string(action),
	}
}
