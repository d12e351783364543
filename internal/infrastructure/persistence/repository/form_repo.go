package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const defaultListLimit = 50

// FormRepository implements port.FormRepository
type FormRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFormRepository creates a new form repository
func NewFormRepository(db *sql.DB, logger *zap.Logger) port.FormRepository {
	return &FormRepository{
		db:     db,
		logger: logger,
	}
}

const formColumns = `
	id, service_type, submitter_id, form_title, form_description, status,
	fields, approvals, assigned_to, version, history, notes,
	progress_percentage, progress_state, legacy_source_id,
	submitted_at, created_at, updated_at, last_activity_at, last_activity_by`

// Create inserts a new form
func (r *FormRepository) Create(ctx context.Context, form *entity.Form) error {
	cols, err := encodeFormJSON(form)
	if err != nil {
		return err
	}

	query := `INSERT INTO forms (` + formColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		form.ID,
		form.ServiceType,
		form.SubmitterID,
		form.FormTitle,
		form.FormDescription,
		form.Status,
		cols.fields,
		cols.approvals,
		form.AssignedTo,
		form.Version,
		cols.history,
		cols.notes,
		form.Progress.Percentage,
		form.Progress.State,
		form.LegacySourceID,
		nullTime(form.SubmittedAt),
		form.CreatedAt.UTC(),
		form.UpdatedAt.UTC(),
		form.LastActivityAt.UTC(),
		form.LastActivityBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			if form.LegacySourceID != "" {
				return errs.Conflict("form %s or a promotion of %s already exists", form.ID, form.LegacySourceID)
			}
			return errs.Conflict("form %s already exists", form.ID)
		}
		r.logger.Error("Failed to create form", zap.String("form_id", form.ID), zap.Error(err))
		return fmt.Errorf("failed to create form: %w", err)
	}

	return nil
}

// GetByID retrieves a form by ID
func (r *FormRepository) GetByID(ctx context.Context, id string) (*entity.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE id = ?`

	form, err := scanForm(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get form by ID", zap.String("form_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get form: %w", err)
	}

	return form, nil
}

// Update replaces the stored form if its version still equals expectedVersion
func (r *FormRepository) Update(ctx context.Context, form *entity.Form, expectedVersion int) error {
	cols, err := encodeFormJSON(form)
	if err != nil {
		return err
	}

	query := `
		UPDATE forms SET
			form_title = ?, form_description = ?, status = ?, fields = ?, approvals = ?,
			assigned_to = ?, version = ?, history = ?, notes = ?,
			progress_percentage = ?, progress_state = ?, legacy_source_id = ?,
			submitted_at = ?, updated_at = ?, last_activity_at = ?, last_activity_by = ?
		WHERE id = ? AND version = ?
	`

	exec := sqlite.ExecutorFrom(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		form.FormTitle,
		form.FormDescription,
		form.Status,
		cols.fields,
		cols.approvals,
		form.AssignedTo,
		form.Version,
		cols.history,
		cols.notes,
		form.Progress.Percentage,
		form.Progress.State,
		form.LegacySourceID,
		nullTime(form.SubmittedAt),
		form.UpdatedAt.UTC(),
		form.LastActivityAt.UTC(),
		form.LastActivityBy,
		form.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update form", zap.String("form_id", form.ID), zap.Error(err))
		return fmt.Errorf("failed to update form: %w", err)
	}

	return r.checkVersioned(ctx, exec, result, form.ID, expectedVersion)
}

// Delete removes a form if its version still equals expectedVersion
func (r *FormRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	exec := sqlite.ExecutorFrom(ctx, r.db)
	result, err := exec.ExecContext(ctx, `DELETE FROM forms WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		r.logger.Error("Failed to delete form", zap.String("form_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete form: %w", err)
	}

	return r.checkVersioned(ctx, exec, result, id, expectedVersion)
}

// checkVersioned turns a zero-row conditional write into NotFound or Conflict
func (r *FormRepository) checkVersioned(ctx context.Context, exec sqlite.Executor, result sql.Result, id string, expectedVersion int) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var current int
	err = exec.QueryRowContext(ctx, `SELECT version FROM forms WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return errs.NotFound("form %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read form version: %w", err)
	}

	return errs.Conflict("form %s is at version %d, expected %d", id, current, expectedVersion)
}

// List returns forms matching filter, most recently active first
func (r *FormRepository) List(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
	var (
		where []string
		args  []any
	)
	if filter.ServiceType != "" {
		where = append(where, "service_type = ?")
		args = append(args, filter.ServiceType)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.SubmitterID != "" {
		where = append(where, "submitter_id = ?")
		args = append(args, filter.SubmitterID)
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, "(form_title LIKE ? ESCAPE '\\' OR form_description LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(s) + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + formColumns + ` FROM forms`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` ORDER BY last_activity_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list forms", zap.Error(err))
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	var forms []*entity.Form
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		forms = append(forms, form)
	}

	return forms, rows.Err()
}

// LinkedLegacyIDs reports which legacy ids are already represented by a native form
func (r *FormRepository) LinkedLegacyIDs(ctx context.Context, legacyIDs []string) (map[string]bool, error) {
	linked := make(map[string]bool)
	if len(legacyIDs) == 0 {
		return linked, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(legacyIDs)), ",")
	args := make([]any, len(legacyIDs))
	for i, id := range legacyIDs {
		args[i] = id
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx,
		`SELECT legacy_source_id FROM forms WHERE legacy_source_id IN (`+placeholders+`)`, args...)
	if err != nil {
		r.logger.Error("Failed to look up linked legacy ids", zap.Error(err))
		return nil, fmt.Errorf("failed to look up linked legacy ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan legacy id: %w", err)
		}
		linked[id] = true
	}

	return linked, rows.Err()
}

type formJSON struct {
	fields, approvals, history, notes string
}

func encodeFormJSON(form *entity.Form) (formJSON, error) {
	var out formJSON
	var err error
	if out.fields, err = marshalJSON(entity.CloneFields(form.Fields)); err != nil {
		return out, fmt.Errorf("failed to encode fields: %w", err)
	}
	approvals := form.Approvals
	if approvals == nil {
		approvals = entity.Approvals{}
	}
	if out.approvals, err = marshalJSON(approvals); err != nil {
		return out, fmt.Errorf("failed to encode approvals: %w", err)
	}
	history := form.History
	if history == nil {
		history = []entity.Snapshot{}
	}
	if out.history, err = marshalJSON(history); err != nil {
		return out, fmt.Errorf("failed to encode history: %w", err)
	}
	notes := form.Notes
	if notes == nil {
		notes = []entity.Note{}
	}
	if out.notes, err = marshalJSON(notes); err != nil {
		return out, fmt.Errorf("failed to encode notes: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(row rowScanner) (*entity.Form, error) {
	var (
		form                              entity.Form
		fields, approvals, history, notes string
		submittedAt                       sql.NullTime
	)

	err := row.Scan(
		&form.ID,
		&form.ServiceType,
		&form.SubmitterID,
		&form.FormTitle,
		&form.FormDescription,
		&form.Status,
		&fields,
		&approvals,
		&form.AssignedTo,
		&form.Version,
		&history,
		&notes,
		&form.Progress.Percentage,
		&form.Progress.State,
		&form.LegacySourceID,
		&submittedAt,
		&form.CreatedAt,
		&form.UpdatedAt,
		&form.LastActivityAt,
		&form.LastActivityBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &form.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields of form %s: %w", form.ID, err)
	}
	if err := json.Unmarshal([]byte(approvals), &form.Approvals); err != nil {
		return nil, fmt.Errorf("failed to decode approvals of form %s: %w", form.ID, err)
	}
	if err := json.Unmarshal([]byte(history), &form.History); err != nil {
		return nil, fmt.Errorf("failed to decode history of form %s: %w", form.ID, err)
	}
	if err := json.Unmarshal([]byte(notes), &form.Notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes of form %s: %w", form.ID, err)
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		form.SubmittedAt = &t
	}

	return &form, nil
}

var _ port.FormRepository = (*FormRepository)(nil)

// nullTime converts an optional time into a value sqlite accepts
func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}
