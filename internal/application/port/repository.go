package port

import (
	"context"
	"time"

	"github.com/garyjia/deed-approval/internal/domain/entity"
)

// FormRepository defines persistence operations for native Forms.
// Lookups return (nil, nil) when the form does not exist.
type FormRepository interface {
	Create(ctx context.Context, form *entity.Form) error
	GetByID(ctx context.Context, id string) (*entity.Form, error)
	// Update writes form only if the stored version equals expectedVersion.
	// It returns an errs.KindConflict error when another writer got there first.
	Update(ctx context.Context, form *entity.Form, expectedVersion int) error
	Delete(ctx context.Context, id string, expectedVersion int) error
	List(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error)
	// LinkedLegacyIDs reports which legacy ids already have a native form
	LinkedLegacyIDs(ctx context.Context, legacyIDs []string) (map[string]bool, error)
}

// LegacyQuery narrows legacy listings
type LegacyQuery struct {
	SubmitterID     string
	UnprocessedOnly bool
	Limit           int
}

// LegacyStore reads and writes one pre-unification per-type collection
type LegacyStore interface {
	Collection() entity.ServiceType
	List(ctx context.Context, q LegacyQuery) ([]*entity.LegacyRecord, error)
	GetByID(ctx context.Context, id string) (*entity.LegacyRecord, error)
	// Update writes rec only if the stored revision equals expectedRevision
	Update(ctx context.Context, rec *entity.LegacyRecord, expectedRevision int) error
}

// AuditRepository is the append-only audit log
type AuditRepository interface {
	// Append stores entry and assigns its Sequence
	Append(ctx context.Context, entry *entity.AuditEntry) error
	// Query returns up to limit entries after filter.AfterSequence, ordered
	// by timestamp then sequence
	Query(ctx context.Context, filter entity.AuditFilter, limit int) ([]*entity.AuditEntry, error)
}

// StaffReportRepository persists StaffReports keyed by (staff, form)
type StaffReportRepository interface {
	Get(ctx context.Context, staffID, formID string) (*entity.StaffReport, error)
	Upsert(ctx context.Context, report *entity.StaffReport) error
	ListByStaff(ctx context.Context, staffID string, pendingOnly bool) ([]*entity.StaffReport, error)
	ListByForm(ctx context.Context, formID string) ([]*entity.StaffReport, error)
	MarkSubmitted(ctx context.Context, staffID string, at time.Time) (int64, error)
}

// FinalReportRepository stores one ReportArtifact per locked form
type FinalReportRepository interface {
	Save(ctx context.Context, report *entity.ReportArtifact) error
	SetDocumentPath(ctx context.Context, formID, path string) error
	GetByFormID(ctx context.Context, formID string) (*entity.ReportArtifact, error)
}

// AccountRepository persists user accounts
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Account, error)
	Upsert(ctx context.Context, account *entity.Account) error
	ListByRole(ctx context.Context, role entity.Role) ([]*entity.Account, error)
}

// TransactionManager runs fn inside a transaction carried by the context
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
