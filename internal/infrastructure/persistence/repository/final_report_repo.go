package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// FinalReportRepository implements port.FinalReportRepository
type FinalReportRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFinalReportRepository creates a new final report repository
func NewFinalReportRepository(db *sql.DB, logger *zap.Logger) port.FinalReportRepository {
	return &FinalReportRepository{
		db:     db,
		logger: logger,
	}
}

// Save stores the artifact of a locked form. A form keeps its first artifact.
func (r *FinalReportRepository) Save(ctx context.Context, report *entity.ReportArtifact) error {
	artifact, err := marshalJSON(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
		INSERT INTO final_reports (id, form_id, form_version, content_hash, artifact, document_path, generated_at, generated_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(form_id) DO NOTHING
	`
	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		report.ID,
		report.FormID,
		report.FormVersion,
		report.ContentHash,
		artifact,
		report.DocumentPath,
		report.GeneratedAt.UTC(),
		report.GeneratedBy,
	)
	if err != nil {
		r.logger.Error("Failed to save final report", zap.String("form_id", report.FormID), zap.Error(err))
		return fmt.Errorf("failed to save final report: %w", err)
	}
	return nil
}

// SetDocumentPath records where the rendered document was stored
func (r *FinalReportRepository) SetDocumentPath(ctx context.Context, formID, path string) error {
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx,
		`UPDATE final_reports SET document_path = ? WHERE form_id = ?`, path, formID)
	if err != nil {
		r.logger.Error("Failed to set report document path", zap.String("form_id", formID), zap.Error(err))
		return fmt.Errorf("failed to set report document path: %w", err)
	}
	return nil
}

// GetByFormID retrieves the stored artifact of a form
func (r *FinalReportRepository) GetByFormID(ctx context.Context, formID string) (*entity.ReportArtifact, error) {
	var artifact, path string
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT artifact, document_path FROM final_reports WHERE form_id = ?`, formID).Scan(&artifact, &path)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get final report", zap.String("form_id", formID), zap.Error(err))
		return nil, fmt.Errorf("failed to get final report: %w", err)
	}

	var report entity.ReportArtifact
	if err := unmarshalJSON(artifact, &report); err != nil {
		return nil, fmt.Errorf("failed to decode final report: %w", err)
	}
	report.DocumentPath = path
	return &report, nil
}

var _ port.FinalReportRepository = (*FinalReportRepository)(nil)
