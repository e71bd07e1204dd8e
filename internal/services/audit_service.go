package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"flowgate/internal/repository"
	"flowgate/pkg/models"
)

// DefaultRetentionDays is the audit retention window when none is configured.
const DefaultRetentionDays = 90

// MaxAuditPageSize caps one page of audit query results.
const MaxAuditPageSize = 100

// AuditService records and queries the append-only audit trail.
type AuditService struct {
	store         repository.Store
	logger        Logger
	retentionDays int
	now           func() time.Time
}

// NewAuditService creates a new AuditService. retentionDays <= 0 selects the
// default window.
func NewAuditService(store repository.Store, logger Logger, retentionDays int) *AuditService {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &AuditService{
		store:         store,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

// Event describes one audited occurrence. Payload, when present, is hashed;
// its raw content never reaches the log.
type Event struct {
	OrganizationID string
	WorkflowID     string
	ExecutionID    string
	EventType      models.AuditEventType
	Actor          models.AuditActor
	StepName       string
	Payload        any
	Detail         string
}

// Record appends one immutable audit row. Failures are logged and returned,
// but callers on hot paths treat audit failure as non-fatal.
func (s *AuditService) Record(ctx context.Context, event Event) error {
	entry := &models.AuditLogEntry{
		OrganizationID: event.OrganizationID,
		EventType:      event.EventType,
		Actor:          event.Actor,
		RetentionUntil: s.now().AddDate(0, 0, s.retentionDays),
	}
	if event.WorkflowID != "" {
		entry.WorkflowID = &event.WorkflowID
	}
	if event.ExecutionID != "" {
		entry.ExecutionID = &event.ExecutionID
	}
	if event.StepName != "" {
		entry.StepName = &event.StepName
	}
	if event.Detail != "" {
		entry.Detail = &event.Detail
	}
	if event.Payload != nil {
		hash, err := hashPayload(event.Payload)
		if err != nil {
			return err
		}
		entry.PayloadHash = &hash
	}

	if err := s.store.InsertAudit(ctx, entry); err != nil {
		s.logger.Error("failed to record audit entry", "event_type", event.EventType, "error", err)
		return &models.PersistenceError{Op: "insert audit", Err: err}
	}
	return nil
}

// Query returns one page of audit rows for the organization, newest first.
// Page size is clamped to MaxAuditPageSize.
func (s *AuditService) Query(ctx context.Context, orgID string, filter models.AuditFilter, page, pageSize int) (*models.AuditPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxAuditPageSize {
		pageSize = MaxAuditPageSize
	}
	return s.store.QueryAudit(ctx, orgID, filter, page, pageSize)
}

// Summarize returns the per-day compliance rollup instead of raw rows.
func (s *AuditService) Summarize(ctx context.Context, orgID string, filter models.AuditFilter) ([]*models.AuditDaySummary, error) {
	return s.store.SummarizeAudit(ctx, orgID, filter)
}

// PurgeExpired removes rows past their retention window. Only organization
// admins may purge; the boundary resolves the role.
func (s *AuditService) PurgeExpired(ctx context.Context, orgID string, isAdmin bool) (int64, error) {
	if !isAdmin {
		return 0, models.ErrForbidden
	}
	purged, err := s.store.PurgeExpiredAudit(ctx, orgID, s.now())
	if err != nil {
		return 0, &models.PersistenceError{Op: "purge audit", Err: err}
	}
	s.logger.Info("purged expired audit entries", "organization_id", orgID, "count", purged)
	return purged, nil
}

// hashPayload computes the one-way hash stored in place of a raw payload.
func hashPayload(payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}
