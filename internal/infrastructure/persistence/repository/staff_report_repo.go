package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// StaffReportRepository implements port.StaffReportRepository
type StaffReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStaffReportRepository creates a new staff report repository
func NewStaffReportRepository(db *sql.DB, logger *zap.Logger) port.StaffReportRepository {
	return &StaffReportRepository{
		db:     db,
		logger: logger,
	}
}

const staffReportColumns = `
	id, staff_id, form_id, stage, service_type, original_data, edited_data, change_set,
	verification_status, stamp_calculation, remarks, is_submitted, submitted_at,
	created_at, updated_at`

// Get retrieves the report of one staff member for one form
func (r *StaffReportRepository) Get(ctx context.Context, staffID, formID string) (*entity.StaffReport, error) {
	query := `SELECT ` + staffReportColumns + ` FROM staff_reports WHERE staff_id = ? AND form_id = ?`

	report, err := scanStaffReport(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, staffID, formID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get staff report",
			zap.String("staff_id", staffID), zap.String("form_id", formID), zap.Error(err))
		return nil, fmt.Errorf("failed to get staff report: %w", err)
	}
	return report, nil
}

// Upsert creates the report or updates it in place while it is not submitted
func (r *StaffReportRepository) Upsert(ctx context.Context, report *entity.StaffReport) error {
	original, err := marshalJSON(entity.CloneFields(report.OriginalData))
	if err != nil {
		return fmt.Errorf("failed to encode original data: %w", err)
	}
	edited, err := marshalJSON(entity.CloneFields(report.EditedData))
	if err != nil {
		return fmt.Errorf("failed to encode edited data: %w", err)
	}
	changes := report.ChangeSet
	if changes == nil {
		changes = []entity.FieldChange{}
	}
	changeSet, err := marshalJSON(changes)
	if err != nil {
		return fmt.Errorf("failed to encode change set: %w", err)
	}
	stamp, err := encodeOptional(report.StampCalculation != nil, report.StampCalculation)
	if err != nil {
		return fmt.Errorf("failed to encode stamp calculation: %w", err)
	}

	query := `
		INSERT INTO staff_reports (
			staff_id, form_id, stage, service_type, original_data, edited_data, change_set,
			verification_status, stamp_calculation, remarks, is_submitted, submitted_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(staff_id, form_id) DO UPDATE SET
			edited_data = excluded.edited_data,
			change_set = excluded.change_set,
			verification_status = excluded.verification_status,
			stamp_calculation = excluded.stamp_calculation,
			remarks = excluded.remarks,
			updated_at = excluded.updated_at
		WHERE staff_reports.is_submitted = 0
	`

	exec := sqlite.ExecutorFrom(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		report.StaffID,
		report.FormID,
		report.Stage,
		report.ServiceType,
		original,
		edited,
		changeSet,
		report.VerificationStatus,
		stamp,
		report.Remarks,
		boolToInt(report.IsSubmitted),
		nullTime(report.SubmittedAt),
		report.CreatedAt.UTC(),
		report.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert staff report",
			zap.String("staff_id", report.StaffID), zap.String("form_id", report.FormID), zap.Error(err))
		return fmt.Errorf("failed to upsert staff report: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errs.PreconditionFailed("staff report of %s for form %s is already submitted", report.StaffID, report.FormID)
	}

	if report.ID == 0 {
		var id int64
		if err := exec.QueryRowContext(ctx, `SELECT id FROM staff_reports WHERE staff_id = ? AND form_id = ?`,
			report.StaffID, report.FormID).Scan(&id); err == nil {
			report.ID = id
		}
	}
	return nil
}

// ListByStaff returns a staff member's reports, newest first
func (r *StaffReportRepository) ListByStaff(ctx context.Context, staffID string, pendingOnly bool) ([]*entity.StaffReport, error) {
	query := `SELECT ` + staffReportColumns + ` FROM staff_reports WHERE staff_id = ?`
	if pendingOnly {
		query += ` AND is_submitted = 0`
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	return r.list(ctx, query, staffID)
}

// ListByForm returns every staff report for a form in stage order
func (r *StaffReportRepository) ListByForm(ctx context.Context, formID string) ([]*entity.StaffReport, error) {
	query := `SELECT ` + staffReportColumns + ` FROM staff_reports WHERE form_id = ? ORDER BY stage ASC, id ASC`
	return r.list(ctx, query, formID)
}

// MarkSubmitted freezes every pending report of a staff member
func (r *StaffReportRepository) MarkSubmitted(ctx context.Context, staffID string, at time.Time) (int64, error) {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE staff_reports SET is_submitted = 1, submitted_at = ?, updated_at = ? WHERE staff_id = ? AND is_submitted = 0`,
		at.UTC(), at.UTC(), staffID)
	if err != nil {
		r.logger.Error("Failed to submit staff reports", zap.String("staff_id", staffID), zap.Error(err))
		return 0, fmt.Errorf("failed to submit staff reports: %w", err)
	}
	return result.RowsAffected()
}

func (r *StaffReportRepository) list(ctx context.Context, query string, args ...any) ([]*entity.StaffReport, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list staff reports", zap.Error(err))
		return nil, fmt.Errorf("failed to list staff reports: %w", err)
	}
	defer rows.Close()

	var reports []*entity.StaffReport
	for rows.Next() {
		report, err := scanStaffReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staff report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

func scanStaffReport(row rowScanner) (*entity.StaffReport, error) {
	var (
		report                      entity.StaffReport
		original, edited, changeSet string
		stamp                       sql.NullString
		submitted                   int
		submittedAt                 sql.NullTime
	)

	err := row.Scan(
		&report.ID,
		&report.StaffID,
		&report.FormID,
		&report.Stage,
		&report.ServiceType,
		&original,
		&edited,
		&changeSet,
		&report.VerificationStatus,
		&stamp,
		&report.Remarks,
		&submitted,
		&submittedAt,
		&report.CreatedAt,
		&report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	report.IsSubmitted = submitted != 0
	if err := unmarshalJSON(original, &report.OriginalData); err != nil {
		return nil, fmt.Errorf("failed to decode original data: %w", err)
	}
	if err := unmarshalJSON(edited, &report.EditedData); err != nil {
		return nil, fmt.Errorf("failed to decode edited data: %w", err)
	}
	if err := unmarshalJSON(changeSet, &report.ChangeSet); err != nil {
		return nil, fmt.Errorf("failed to decode change set: %w", err)
	}
	if stamp.Valid {
		var calc entity.StampCalculation
		if err := unmarshalJSON(stamp.String, &calc); err != nil {
			return nil, fmt.Errorf("failed to decode stamp calculation: %w", err)
		}
		report.StampCalculation = &calc
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		report.SubmittedAt = &t
	}

	return &report, nil
}

var _ port.StaffReportRepository = (*StaffReportRepository)(nil)
