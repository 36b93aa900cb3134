package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DataClassification tags a table column with a sensitivity level.
// RequiresApproval and WatermarkRequired are derived from the level at write
// time and stored for query convenience; the level is authoritative.
type DataClassification struct {
	TableName         string    `json:"table_name"`
	ColumnName        string    `json:"column_name"`
	Level             Level     `json:"level"`
	RequiresApproval  bool      `json:"requires_approval"`
	WatermarkRequired bool      `json:"watermark_required"`
	RetentionDays     int       `json:"retention_days"`
	ClassifiedBy      string    `json:"classified_by"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ExportStatus is the approval state of an export request. Transitions are
// monotonic: pending may move to approved or rejected exactly once.
type ExportStatus string

const (
	ExportPending  ExportStatus = "pending"
	ExportApproved ExportStatus = "approved"
	ExportRejected ExportStatus = "rejected"
)

// ExportRequest is a persisted export-approval workflow item.
type ExportRequest struct {
	ID             uuid.UUID       `json:"id"`
	RequesterID    uuid.UUID       `json:"requester_id"`
	RequesterName  string          `json:"requester_name"`
	RequesterRole  Role            `json:"requester_role"`
	ExportType     string          `json:"export_type"`
	Tables         []string        `json:"tables"`
	Filters        json.RawMessage `json:"filters,omitempty"`
	Justification  string          `json:"justification"`
	Classification Level           `json:"classification"`
	Status         ExportStatus    `json:"status"`
	AutoApproved   bool            `json:"auto_approved"`
	ApproverRole   *Role           `json:"approver_role,omitempty"`
	ApprovalNotes  *string         `json:"approval_notes,omitempty"`
	RequestedAt    time.Time       `json:"requested_at"`
	DecidedAt      *time.Time      `json:"decided_at,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// Expired reports whether the request's approval window has passed.
func (r *ExportRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// DownloadActivity is one logged download by an identity.
type DownloadActivity struct {
	ID             int64     `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	UserName       string    `json:"user_name"`
	UserRole       Role      `json:"user_role"`
	FileName       string    `json:"file_name"`
	FileType       string    `json:"file_type"`
	RecordCount    int       `json:"record_count"`
	Classification Level     `json:"classification"`
	IPAddress      string    `json:"ip_address"`
	Watermarked    bool      `json:"watermarked"`
	Suspicious     bool      `json:"suspicious"`
	DownloadedAt   time.Time `json:"downloaded_at"`
}

// AuditEvent is a routine data-access audit entry. Internal detail (query
// text, stack detail) belongs in Details, never in caller-facing errors.
type AuditEvent struct {
	ID             int64           `json:"id"`
	Actor          string          `json:"actor"`
	ActorRole      Role            `json:"actor_role"`
	Action         string          `json:"action"`
	Resource       string          `json:"resource"`
	Classification Level           `json:"classification"`
	Details        json.RawMessage `json:"details,omitempty"`
	RiskScore      int             `json:"risk_score"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// RetentionPolicy schedules deletion of aged rows from one table.
type RetentionPolicy struct {
	TableName           string     `json:"table_name"`
	RetentionDays       int        `json:"retention_days"`
	ArchiveBeforeDelete bool       `json:"archive_before_delete"`
	AutoDelete          bool       `json:"auto_delete"`
	LastExecuted        *time.Time `json:"last_executed,omitempty"`
}

// StaffAccount is the authoritative user/role record. Access decisions must
// agree with this store, not merely with the session's cached role.
type StaffAccount struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}
