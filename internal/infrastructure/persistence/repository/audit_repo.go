package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AuditRepository implements port.AuditRepository. Rows are insert-only.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts an entry and assigns its sequence
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	before, err := encodeOptional(entry.BeforeSnapshot != nil, entry.BeforeSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	after, err := encodeOptional(entry.AfterSnapshot != nil, entry.AfterSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode after snapshot: %w", err)
	}
	details, err := encodeOptional(len(entry.Details) > 0, entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode details: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, actor_id, actor_role, action, resource_id, before_snapshot, after_snapshot,
			details, result, error_kind, reason, ip_address, user_agent, form_version,
			timestamp, occurred_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.ActorRole,
		entry.Action,
		entry.ResourceID,
		before,
		after,
		details,
		entry.Result,
		entry.ErrorKind,
		entry.Reason,
		entry.ClientContext.IPAddress,
		entry.ClientContext.UserAgent,
		entry.FormVersion,
		entry.Timestamp.UTC(),
		entry.Timestamp.UnixNano(),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("resource_id", entry.ResourceID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get audit sequence: %w", err)
	}
	entry.Sequence = seq

	return nil
}

// Query returns up to limit entries ordered by timestamp then sequence.
// A cursor that names no stored entry yields nothing.
func (r *AuditRepository) Query(ctx context.Context, filter entity.AuditFilter, limit int) ([]*entity.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.AfterSequence > 0 {
		where = append(where,
			"(occurred_ns, sequence) > (SELECT occurred_ns, sequence FROM audit_entries WHERE sequence = ?)")
		args = append(args, filter.AfterSequence)
	}

	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Result != "" {
		where = append(where, "result = ?")
		args = append(args, filter.Result)
	}
	if filter.Since != nil {
		where = append(where, "occurred_ns >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Until != nil {
		where = append(where, "occurred_ns < ?")
		args = append(args, filter.Until.UnixNano())
	}
	if len(where) == 0 {
		where = append(where, "1 = 1")
	}

	query := `
		SELECT sequence, id, actor_id, actor_role, action, resource_id, before_snapshot,
			after_snapshot, details, result, error_kind, reason, ip_address, user_agent,
			form_version, timestamp
		FROM audit_entries
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY occurred_ns ASC, sequence ASC
		LIMIT ?
	`
	args = append(args, limit)

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var (
			e                      entity.AuditEntry
			before, after, details sql.NullString
		)
		err := rows.Scan(
			&e.Sequence,
			&e.ID,
			&e.ActorID,
			&e.ActorRole,
			&e.Action,
			&e.ResourceID,
			&before,
			&after,
			&details,
			&e.Result,
			&e.ErrorKind,
			&e.Reason,
			&e.ClientContext.IPAddress,
			&e.ClientContext.UserAgent,
			&e.FormVersion,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if before.Valid {
			if err := unmarshalJSON(before.String, &e.BeforeSnapshot); err != nil {
				return nil, fmt.Errorf("failed to decode before snapshot: %w", err)
			}
		}
		if after.Valid {
			if err := unmarshalJSON(after.String, &e.AfterSnapshot); err != nil {
				return nil, fmt.Errorf("failed to decode after snapshot: %w", err)
			}
		}
		if details.Valid {
			if err := unmarshalJSON(details.String, &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode details: %w", err)
			}
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

func encodeOptional(present bool, v any) (any, error) {
	if !present {
		return nil, nil
	}
	s, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var _ port.AuditRepository = (*AuditRepository)(nil)
