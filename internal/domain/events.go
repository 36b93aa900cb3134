package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventExportSubmitted EventType = "sentinel.export.submitted"
	EventExportApproved  EventType = "sentinel.export.approved"
	EventExportRejected  EventType = "sentinel.export.rejected"
	EventIncidentRaised  EventType = "sentinel.incident.raised"
	EventIdentityBanned  EventType = "sentinel.identity.banned"
	EventRetentionRun    EventType = "sentinel.retention.executed"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateExport    AggregateType = "export"
	AggregateSession   AggregateType = "session"
	AggregateIdentity  AggregateType = "identity"
	AggregateRetention AggregateType = "retention"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateType AggregateType   `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     EventType       `json:"event_type"`
	PartitionKey  string          `json:"partition_key"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewExportDecisionEvent creates the outbox event for an export request
// transition (submitted, approved or rejected). The notifier relays it to
// the approval-outcome channel.
func NewExportDecisionEvent(req *ExportRequest, evtType EventType) OutboxDraft {
	payload, _ := json.Marshal(req)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateExport,
		AggregateID:   req.ID.String(),
		EventType:     evtType,
		PartitionKey:  req.RequesterID.String(),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewIncidentRaisedEvent creates the outbox event for a propagation incident.
func NewIncidentRaisedEvent(inc *PropagationIncident) OutboxDraft {
	payload, _ := json.Marshal(inc)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   inc.SessionID,
		EventType:     EventIncidentRaised,
		PartitionKey:  inc.SessionID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewIdentityBannedEvent creates the outbox event for a throttle ban.
func NewIdentityBannedEvent(ban *BanRecord, attempts int) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"identity":   ban.Identity,
		"started_at": ban.StartedAt,
		"duration_s": int(ban.Duration.Seconds()),
		"attempts":   attempts,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateIdentity,
		AggregateID:   string(ban.Identity),
		EventType:     EventIdentityBanned,
		PartitionKey:  string(ban.Identity),
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewRetentionRunEvent creates the outbox event for one retention sweep of a
// table.
func NewRetentionRunEvent(table string, deleted int64, archived bool) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"table":    table,
		"deleted":  deleted,
		"archived": archived,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateRetention,
		AggregateID:   table,
		EventType:     EventRetentionRun,
		PartitionKey:  table,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
