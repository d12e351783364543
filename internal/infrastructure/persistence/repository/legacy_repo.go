package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

var legacyTables = map[entity.ServiceType]string{
	entity.ServiceSaleDeed:             "legacy_sale_deeds",
	entity.ServiceWillDeed:             "legacy_will_deeds",
	entity.ServiceTrustDeed:            "legacy_trust_deeds",
	entity.ServicePropertyRegistration: "legacy_property_registrations",
	entity.ServicePowerOfAttorney:      "legacy_power_of_attorneys",
	entity.ServiceAdoptionDeed:         "legacy_adoption_deeds",
}

// LegacyRepository implements port.LegacyStore over one legacy table
type LegacyRepository struct {
	db         *sql.DB
	logger     *zap.Logger
	collection entity.ServiceType
	table      string
}

// NewLegacyRepository creates a store for one legacy collection
func NewLegacyRepository(db *sql.DB, collection entity.ServiceType, logger *zap.Logger) (port.LegacyStore, error) {
	table, ok := legacyTables[collection]
	if !ok {
		return nil, fmt.Errorf("no legacy collection for service type %q", collection)
	}
	return &LegacyRepository{
		db:         db,
		logger:     logger.With(zap.String("collection", string(collection))),
		collection: collection,
		table:      table,
	}, nil
}

// NewLegacyRepositories creates stores for every legacy collection
func NewLegacyRepositories(db *sql.DB, logger *zap.Logger) (map[entity.ServiceType]port.LegacyStore, error) {
	stores := make(map[entity.ServiceType]port.LegacyStore, len(legacyTables))
	for _, st := range entity.AllServiceTypes() {
		store, err := NewLegacyRepository(db, st, logger)
		if err != nil {
			return nil, err
		}
		stores[st] = store
	}
	return stores, nil
}

// Collection returns the service type this store holds
func (r *LegacyRepository) Collection() entity.ServiceType {
	return r.collection
}

const legacyColumns = `
	id, submitter_id, data, status, processed_by_staff1, staff1_processed_at,
	staff1_processed_by, staff1_notes, revision, created_at, updated_at`

// List returns records newest activity first
func (r *LegacyRepository) List(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
	query := `SELECT ` + legacyColumns + ` FROM ` + r.table + ` WHERE 1=1`
	var args []any
	if q.UnprocessedOnly {
		query += ` AND processed_by_staff1 = 0`
	}
	if q.SubmitterID != "" {
		query += ` AND submitter_id = ?`
		args = append(args, q.SubmitterID)
	}
	query += ` ORDER BY COALESCE(updated_at, created_at) DESC, id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list legacy records", zap.Error(err))
		return nil, fmt.Errorf("failed to list legacy %s records: %w", r.collection, err)
	}
	defer rows.Close()

	var records []*entity.LegacyRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan legacy record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetByID retrieves one legacy record
func (r *LegacyRepository) GetByID(ctx context.Context, id string) (*entity.LegacyRecord, error) {
	query := `SELECT ` + legacyColumns + ` FROM ` + r.table + ` WHERE id = ?`

	rec, err := r.scan(sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get legacy record", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get legacy %s record: %w", r.collection, err)
	}

	return rec, nil
}

// Update writes the record back if its revision still equals expectedRevision
func (r *LegacyRepository) Update(ctx context.Context, rec *entity.LegacyRecord, expectedRevision int) error {
	data, err := marshalJSON(entity.CloneFields(rec.Data))
	if err != nil {
		return fmt.Errorf("failed to encode legacy data: %w", err)
	}
	notes := rec.Staff1Notes
	if notes == nil {
		notes = []entity.Note{}
	}
	notesJSON, err := marshalJSON(notes)
	if err != nil {
		return fmt.Errorf("failed to encode staff1 notes: %w", err)
	}

	query := `
		UPDATE ` + r.table + ` SET
			data = ?, status = ?, processed_by_staff1 = ?, staff1_processed_at = ?,
			staff1_processed_by = ?, staff1_notes = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?
	`

	exec := sqlite.ExecutorFrom(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		data,
		rec.Status,
		boolToInt(rec.ProcessedByStaff1),
		nullTime(rec.Staff1ProcessedAt),
		rec.Staff1ProcessedBy,
		notesJSON,
		rec.Revision,
		nullTime(rec.UpdatedAt),
		rec.ID,
		expectedRevision,
	)
	if err != nil {
		r.logger.Error("Failed to update legacy record", zap.String("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update legacy %s record: %w", r.collection, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var current int
	err = exec.QueryRowContext(ctx, `SELECT revision FROM `+r.table+` WHERE id = ?`, rec.ID).Scan(&current)
	if err == sql.ErrNoRows {
		return errs.NotFound("legacy %s record %s not found", r.collection, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read legacy revision: %w", err)
	}
	return errs.Conflict("legacy %s record %s is at revision %d, expected %d", r.collection, rec.ID, current, expectedRevision)
}

func (r *LegacyRepository) scan(row rowScanner) (*entity.LegacyRecord, error) {
	var (
		rec         entity.LegacyRecord
		data, notes string
		processed   int
		processedAt sql.NullTime
		updatedAt   sql.NullTime
	)

	err := row.Scan(
		&rec.ID,
		&rec.SubmitterID,
		&data,
		&rec.Status,
		&processed,
		&processedAt,
		&rec.Staff1ProcessedBy,
		&notes,
		&rec.Revision,
		&rec.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Collection = r.collection
	rec.ProcessedByStaff1 = processed != 0
	if err := unmarshalJSON(data, &rec.Data); err != nil {
		return nil, fmt.Errorf("failed to decode legacy data %s: %w", rec.ID, err)
	}
	if err := unmarshalJSON(notes, &rec.Staff1Notes); err != nil {
		return nil, fmt.Errorf("failed to decode staff1 notes %s: %w", rec.ID, err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		rec.Staff1ProcessedAt = &t
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		rec.UpdatedAt = &t
	}

	return &rec, nil
}

var _ port.LegacyStore = (*LegacyRepository)(nil)
