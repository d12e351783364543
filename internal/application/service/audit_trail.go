package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/google/uuid"
)

const defaultAuditPageSize = 100

// AuditTrail records every state-changing action on forms
type AuditTrail interface {
	// Append durably stores entry and returns its id
	Append(ctx context.Context, entry *entity.AuditEntry) (string, error)
	// Query yields matching entries in append order. The sequence is lazy
	// and may be ranged over more than once; each pass re-reads the log.
	Query(ctx context.Context, filter entity.AuditFilter) iter.Seq2[*entity.AuditEntry, error]
}

type auditTrailImpl struct {
	repo     port.AuditRepository
	pageSize int
	now      func() time.Time
	logger   Logger
}

// AuditTrailOption configures the audit trail
type AuditTrailOption func(*auditTrailImpl)

// WithAuditPageSize sets how many entries Query reads per round trip
func WithAuditPageSize(n int) AuditTrailOption {
	return func(a *auditTrailImpl) {
		if n > 0 {
			a.pageSize = n
		}
	}
}

// WithAuditClock overrides the timestamp source
func WithAuditClock(now func() time.Time) AuditTrailOption {
	return func(a *auditTrailImpl) {
		a.now = now
	}
}

// NewAuditTrail creates a new AuditTrail
func NewAuditTrail(repo port.AuditRepository, logger Logger, opts ...AuditTrailOption) AuditTrail {
	a := &auditTrailImpl{
		repo:     repo,
		pageSize: defaultAuditPageSize,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Append stores the entry, filling in id, timestamp and result when unset
func (a *auditTrailImpl) Append(ctx context.Context, entry *entity.AuditEntry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("audit entry cannot be nil")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now()
	}
	if entry.Result == "" {
		entry.Result = entity.AuditResultSuccess
	}

	if err := a.repo.Append(ctx, entry); err != nil {
		a.logger.Error("Failed to append audit entry",
			"error", err,
			"action", entry.Action,
			"resource_id", entry.ResourceID,
			"actor_id", entry.ActorID,
		)
		return "", fmt.Errorf("append audit entry: %w", err)
	}

	return entry.ID, nil
}

// Query pages through the log in (timestamp, sequence) order
func (a *auditTrailImpl) Query(ctx context.Context, filter entity.AuditFilter) iter.Seq2[*entity.AuditEntry, error] {
	return func(yield func(*entity.AuditEntry, error) bool) {
		cursor := filter
		for {
			page, err := a.repo.Query(ctx, cursor, a.pageSize)
			if err != nil {
				yield(nil, fmt.Errorf("query audit entries: %w", err))
				return
			}
			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
				cursor.AfterSequence = entry.Sequence
			}
			if len(page) < a.pageSize {
				return
			}
		}
	}
}

// CollectAudit drains up to limit entries from a query; limit <= 0 means all
func CollectAudit(seq iter.Seq2[*entity.AuditEntry, error], limit int) ([]*entity.AuditEntry, error) {
	var entries []*entity.AuditEntry
	for entry, err := range seq {
		if err != nil {
			return entries, err
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}
	return entries, nil
}
