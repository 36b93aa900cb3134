package governance

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/caregrid/sentinel/internal/domain"
	"github.com/caregrid/sentinel/internal/repository"
)

// AllTablesWildcard in an allowed-tables list grants export access to every
// table.
const AllTablesWildcard = "all_tables"

// Config parametrizes the governance engine. Defaults are compiled in;
// persisted dlp_config keys override them at startup.
type Config struct {
	// ApprovalExpiry is how long a pending export request stays decidable.
	ApprovalExpiry time.Duration

	// DownloadThresholdPerHour is the per-user download count in the trailing
	// hour at which activity is flagged suspicious.
	DownloadThresholdPerHour int

	// BulkExportThreshold is the record count above which restricted-bulk
	// roles always need approval.
	BulkExportThreshold int

	// ExportCeilings maps each role to its record-count ceiling; exceeding it
	// forces the approval workflow.
	ExportCeilings map[domain.Role]int

	// AllowedTables maps each role to the tables it may export.
	// AllTablesWildcard grants everything.
	AllowedTables map[domain.Role][]string

	// RestrictedBulkRoles are roles whose bulk exports are always gated.
	RestrictedBulkRoles map[domain.Role]bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ApprovalExpiry:           72 * time.Hour,
		DownloadThresholdPerHour: 10,
		BulkExportThreshold:      100,
		ExportCeilings: map[domain.Role]int{
			domain.RoleAdmin:         50000,
			domain.RoleChiefStaff:    25000,
			domain.RoleDoctor:        10000,
			domain.RoleNurse:         5000,
			domain.RoleLabTechnician: 5000,
			domain.RolePharmacist:    5000,
			domain.RoleReceptionist:  1000,
			domain.RoleGeneralUser:   0,
		},
		AllowedTables: map[domain.Role][]string{
			domain.RoleAdmin:         {AllTablesWildcard},
			domain.RoleChiefStaff:    {AllTablesWildcard},
			domain.RoleDoctor:        {"patients", "appointments", "prescriptions", "lab_results", "medical_records"},
			domain.RoleNurse:         {"patients", "appointments", "medical_records"},
			domain.RoleLabTechnician: {"patients", "lab_results"},
			domain.RolePharmacist:    {"patients", "prescriptions"},
			domain.RoleReceptionist:  {"patients", "appointments"},
		},
		RestrictedBulkRoles: map[domain.Role]bool{
			domain.RoleReceptionist: true,
			domain.RoleGeneralUser:  true,
		},
	}
}

// ArchiveWriter persists expired rows to durable archival storage before a
// retention sweep deletes them.
type ArchiveWriter interface {
	// WriteArchive stores the serialized rows of one table for the sweep at
	// the given time and returns an opaque location reference.
	WriteArchive(ctx context.Context, table string, sweepAt time.Time, rows [][]byte) (string, error)
}

// Engine is the data-governance core: classification registry, export
// approvals, download/audit logging, retention enforcement.
type Engine struct {
	classifications repository.ClassificationRepository
	exports         repository.ExportRepository
	downloads       repository.DownloadRepository
	audit           repository.AuditRepository
	retention       repository.RetentionRepository
	incidents       repository.IncidentRepository
	config          repository.ConfigRepository
	outbox          repository.OutboxRepository
	archive         ArchiveWriter
	cfg             Config
	logger          *slog.Logger
}

// NewEngine creates the governance engine.
func NewEngine(
	classifications repository.ClassificationRepository,
	exports repository.ExportRepository,
	downloads repository.DownloadRepository,
	audit repository.AuditRepository,
	retention repository.RetentionRepository,
	incidents repository.IncidentRepository,
	config repository.ConfigRepository,
	outbox repository.OutboxRepository,
	archive ArchiveWriter,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		classifications: classifications,
		exports:         exports,
		downloads:       downloads,
		audit:           audit,
		retention:       retention,
		incidents:       incidents,
		config:          config,
		outbox:          outbox,
		archive:         archive,
		cfg:             cfg,
		logger:          logger.With("component", "governance_engine"),
	}
}

// LoadConfigOverrides applies persisted dlp_config values on top of the
// compiled defaults. Unknown keys are ignored; malformed values are logged
// and skipped so a bad row cannot take the engine down.
func (e *Engine) LoadConfigOverrides(ctx context.Context, db repository.DBTX) error {
	values, err := e.config.LoadAll(ctx, db)
	if err != nil {
		return domain.ErrPersistence("dlp_config load", err)
	}

	for key, raw := range values {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			e.logger.Warn("ignoring malformed dlp_config value", "key", key, "value", raw)
			continue
		}
		switch key {
		case "download_threshold_per_hour":
			e.cfg.DownloadThresholdPerHour = n
		case "bulk_export_threshold":
			e.cfg.BulkExportThreshold = n
		case "approval_expiry_hours":
			e.cfg.ApprovalExpiry = time.Duration(n) * time.Hour
		}
	}
	return nil
}

// auditEvent appends an audit entry. Failures are logged but never override a
// security decision that was already made.
func (e *Engine) auditEvent(ctx context.Context, db repository.DBTX, evt *domain.AuditEvent) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	if err := e.audit.Insert(ctx, db, evt); err != nil {
		e.logger.Error("audit write failed", "action", evt.Action, "error", err)
	}
}
