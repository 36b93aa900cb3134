package governance

import (
	"context"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// Stats is an operational snapshot over the trailing window.
type Stats struct {
	Window              string         `json:"window"`
	AuditEventsByAction map[string]int `json:"audit_events_by_action"`
	HijackIncidents     int            `json:"hijack_incidents"`
	EscalationIncidents int            `json:"escalation_incidents"`
	GeneratedAt         time.Time      `json:"generated_at"`
}

// GetStats aggregates audit actions and incident counts over the trailing
// window.
func (e *Engine) GetStats(ctx context.Context, db repository.DBTX, window time.Duration) (*Stats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	cutoff := time.Now().Add(-window)

	byAction, err := e.audit.CountByActionSince(ctx, db, cutoff)
	if err != nil {
		return nil, domain.ErrPersistence("audit aggregation", err)
	}
	hijacks, err := e.incidents.CountIncidentsSince(ctx, db, domain.IncidentSessionHijacking, cutoff)
	if err != nil {
		return nil, domain.ErrPersistence("incident aggregation", err)
	}
	escalations, err := e.incidents.CountIncidentsSince(ctx, db, domain.IncidentPrivilegeEscalation, cutoff)
	if err != nil {
		return nil, domain.ErrPersistence("incident aggregation", err)
	}

	return &Stats{
		Window:              window.String(),
		AuditEventsByAction: byAction,
		HijackIncidents:     hijacks,
		EscalationIncidents: escalations,
		GeneratedAt:         time.Now(),
	}, nil
}

// GetRecentIncidents returns the newest propagation incidents, gated to admin
// and chief staff.
func (e *Engine) GetRecentIncidents(ctx context.Context, db repository.DBTX, requester Requester, limit int) ([]domain.PropagationIncident, error) {
	if requester.Role != domain.RoleAdmin && requester.Role != domain.RoleChiefStaff {
		return nil, domain.ErrForbidden("incident listing requires admin or chief staff")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	incidents, err := e.incidents.ListRecentIncidents(ctx, db, limit)
	if err != nil {
		return nil, domain.ErrPersistence("incident list", err)
	}
	return incidents, nil
}
