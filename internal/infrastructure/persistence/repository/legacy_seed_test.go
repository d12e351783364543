package repository

import (
	"context"

	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
)

// seed writes a legacy record the way the pre-unification system stored it
func (r *LegacyRepository) seed(ctx context.Context, rec *entity.LegacyRecord) error {
	data, err := marshalJSON(entity.CloneFields(rec.Data))
	if err != nil {
		return err
	}
	notes := rec.Staff1Notes
	if notes == nil {
		notes = []entity.Note{}
	}
	notesJSON, err := marshalJSON(notes)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + r.table + ` (` + legacyColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.SubmitterID,
		data,
		rec.Status,
		boolToInt(rec.ProcessedByStaff1),
		nullTime(rec.Staff1ProcessedAt),
		rec.Staff1ProcessedBy,
		notesJSON,
		rec.Revision,
		rec.CreatedAt.UTC(),
		nullTime(rec.UpdatedAt),
	)
	return err
}
