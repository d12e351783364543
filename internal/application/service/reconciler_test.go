package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reconcilerBase = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func nativeForm(id string, minutes int) *entity.Form {
	at := reconcilerBase.Add(time.Duration(minutes) * time.Minute)
	return &entity.Form{
		ID: id, ServiceType: entity.ServiceSaleDeed, FormTitle: "Native " + id,
		Status: entity.StatusSubmitted, Version: 1, LastActivityAt: at, CreatedAt: at,
	}
}

func legacyRecord(id string, minutes int) *entity.LegacyRecord {
	return &entity.LegacyRecord{
		ID:          id,
		SubmitterID: "user-1",
		Data:        map[string]any{"title": "Legacy " + id},
		Status:      "submitted",
		CreatedAt:   reconcilerBase.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestReconciler_ListUnifiedMergesByActivity(t *testing.T) {
	forms := &mockFormRepository{
		listFunc: func(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
			assert.Equal(t, 0, filter.Offset)
			assert.Equal(t, 3, filter.Limit)
			return []*entity.Form{nativeForm("n2", 20), nativeForm("n1", 5)}, nil
		},
		linkedLegacyIDsFunc: func(ctx context.Context, ids []string) (map[string]bool, error) {
			return map[string]bool{"legacy:will-deed:linked": true}, nil
		},
	}
	sale := &mockLegacyStore{
		collection: entity.ServiceSaleDeed,
		listFunc: func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
			assert.True(t, q.UnprocessedOnly)
			return []*entity.LegacyRecord{legacyRecord("s1", 10), legacyRecord("s2", 30)}, nil
		},
	}
	will := &mockLegacyStore{
		collection: entity.ServiceWillDeed,
		listFunc: func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
			return []*entity.LegacyRecord{legacyRecord("linked", 40)}, nil
		},
	}

	r := NewLegacyFormReconciler(forms, map[entity.ServiceType]port.LegacyStore{
		entity.ServiceSaleDeed: sale,
		entity.ServiceWillDeed: will,
	}, NopLogger())

	page, err := r.ListUnified(context.Background(), entity.FormFilter{IncludeLegacy: true, Offset: 1, Limit: 2})
	require.NoError(t, err)

	ids := make([]string, len(page))
	for i, f := range page {
		ids[i] = f.ID
	}
	// full order: legacy s2 (30), n2 (20), legacy s1 (10), n1 (5)
	assert.Equal(t, []string{"n2", "legacy:sale-deed:s1"}, ids)
}

func TestReconciler_ListUnifiedSkipsFailingStore(t *testing.T) {
	forms := &mockFormRepository{
		listFunc: func(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
			return []*entity.Form{nativeForm("n1", 0)}, nil
		},
	}
	broken := &mockLegacyStore{
		collection: entity.ServiceTrustDeed,
		listFunc: func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
			return nil, errors.New("collection unavailable")
		},
	}
	healthy := &mockLegacyStore{
		collection: entity.ServiceSaleDeed,
		listFunc: func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
			return []*entity.LegacyRecord{legacyRecord("ok", 1)}, nil
		},
	}
	logger := &recordingLogger{}

	r := NewLegacyFormReconciler(forms, map[entity.ServiceType]port.LegacyStore{
		entity.ServiceTrustDeed: broken,
		entity.ServiceSaleDeed:  healthy,
	}, logger, WithLegacyFanout(1))

	page, err := r.ListUnified(context.Background(), entity.FormFilter{IncludeLegacy: true})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Len(t, logger.warns, 1)
}

func TestReconciler_ListUnifiedNativeOnly(t *testing.T) {
	var got entity.FormFilter
	forms := &mockFormRepository{
		listFunc: func(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
			got = filter
			return nil, nil
		},
	}
	legacy := &mockLegacyStore{
		collection: entity.ServiceSaleDeed,
		listFunc: func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
			t.Fatal("legacy store must not be read")
			return nil, nil
		},
	}
	r := NewLegacyFormReconciler(forms, map[entity.ServiceType]port.LegacyStore{entity.ServiceSaleDeed: legacy},
		NopLogger(), WithListDefaultLimit(25))

	_, err := r.ListUnified(context.Background(), entity.FormFilter{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, got.Limit)
	assert.Equal(t, 10, got.Offset)

	_, err = r.ListUnified(context.Background(), entity.FormFilter{IncludeLegacy: true, AssignedTo: "s2"})
	require.NoError(t, err)
}

func TestReconciler_ListUnifiedFiltersLegacy(t *testing.T) {
	forms := &mockFormRepository{}
	processed := legacyRecord("done", 2)
	processed.ProcessedByStaff1 = true
	store := &mockLegacyStore{
		collection: entity.ServiceSaleDeed,
		listFunc: func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
			return []*entity.LegacyRecord{legacyRecord("plot-9", 1), processed}, nil
		},
	}
	r := NewLegacyFormReconciler(forms, map[entity.ServiceType]port.LegacyStore{entity.ServiceSaleDeed: store}, NopLogger())

	tests := []struct {
		name   string
		filter entity.FormFilter
		want   int
	}{
		{"all", entity.FormFilter{IncludeLegacy: true}, 2},
		{"search title", entity.FormFilter{IncludeLegacy: true, Search: "PLOT-9"}, 1},
		{"status", entity.FormFilter{IncludeLegacy: true, Status: entity.StatusVerified}, 1},
		{"other service type", entity.FormFilter{IncludeLegacy: true, ServiceType: entity.ServiceWillDeed}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := r.ListUnified(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Len(t, page, tt.want)
		})
	}
}

func TestReconciler_Load(t *testing.T) {
	forms := &mockFormRepository{
		getByIDFunc: func(ctx context.Context, id string) (*entity.Form, error) {
			return nativeForm(id, 0), nil
		},
	}
	store := &mockLegacyStore{
		collection: entity.ServiceSaleDeed,
		getByIDFunc: func(ctx context.Context, id string) (*entity.LegacyRecord, error) {
			if id != "r1" {
				return nil, nil
			}
			rec := legacyRecord("r1", 0)
			rec.Revision = 3
			return rec, nil
		},
	}
	r := NewLegacyFormReconciler(forms, map[entity.ServiceType]port.LegacyStore{entity.ServiceSaleDeed: store}, NopLogger())
	ctx := context.Background()

	native, err := r.Load(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, native.IsLegacy)

	legacy, err := r.Load(ctx, "legacy:sale-deed:r1")
	require.NoError(t, err)
	require.NotNil(t, legacy)
	assert.True(t, legacy.IsLegacy)
	assert.Equal(t, 4, legacy.Version)
	assert.Equal(t, "Legacy r1", legacy.FormTitle)

	missing, err := r.Load(ctx, "legacy:sale-deed:r2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	unconfigured, err := r.Load(ctx, "legacy:trust-deed:r1")
	require.NoError(t, err)
	assert.Nil(t, unconfigured)
}

func TestReconciler_PersistRoutesByOrigin(t *testing.T) {
	var nativeWrites, legacyWrites int
	forms := &mockFormRepository{
		updateFunc: func(ctx context.Context, form *entity.Form, expectedVersion int) error {
			nativeWrites++
			return nil
		},
	}
	store := &mockLegacyStore{
		collection: entity.ServiceSaleDeed,
		updateFunc: func(ctx context.Context, rec *entity.LegacyRecord, expectedRevision int) error {
			legacyWrites++
			assert.Equal(t, 0, expectedRevision)
			assert.Equal(t, 1, rec.Revision)
			assert.True(t, rec.ProcessedByStaff1)
			assert.Equal(t, "s1", rec.Staff1ProcessedBy)
			assert.Equal(t, string(entity.StatusVerified), rec.Status)
			return nil
		},
	}
	r := NewLegacyFormReconciler(forms, map[entity.ServiceType]port.LegacyStore{entity.ServiceSaleDeed: store}, NopLogger())
	ctx := context.Background()

	require.NoError(t, r.Persist(ctx, nativeForm("n", 0), 1))

	form := LegacyToForm(entity.ServiceSaleDeed, legacyRecord("r1", 0))
	now := reconcilerBase
	form.Approvals[entity.Stage1] = entity.ApprovalRecord{Approved: true, ApprovedBy: "s1", ApprovedAt: &now}
	form.Version = 2
	require.NoError(t, r.Persist(ctx, form, 1))

	assert.Equal(t, 1, nativeWrites)
	assert.Equal(t, 1, legacyWrites)

	err := r.WriteBack(ctx, nativeForm("n", 0), 1)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestLegacyRoundTrip(t *testing.T) {
	processedAt := reconcilerBase.Add(time.Hour)
	tests := []struct {
		name       string
		rec        *entity.LegacyRecord
		wantStatus entity.Status
		wantStage1 bool
	}{
		{"unprocessed", legacyRecord("a", 0), entity.StatusSubmitted, false},
		{"processed", func() *entity.LegacyRecord {
			r := legacyRecord("b", 0)
			r.ProcessedByStaff1, r.Staff1ProcessedBy, r.Staff1ProcessedAt = true, "s1", &processedAt
			r.Status = "verified"
			return r
		}(), entity.StatusVerified, true},
		{"rejected", func() *entity.LegacyRecord {
			r := legacyRecord("c", 0)
			r.ProcessedByStaff1, r.Staff1ProcessedBy = true, "s1"
			r.Status = "rejected"
			return r
		}(), entity.StatusRejected, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := LegacyToForm(entity.ServiceSaleDeed, tt.rec)
			assert.Equal(t, tt.wantStatus, form.Status)
			assert.Equal(t, tt.wantStage1, form.Approvals.Approved(entity.Stage1))
			assert.Equal(t, fmt.Sprintf("legacy:sale-deed:%s", tt.rec.ID), form.ID)

			back := FormToLegacy(form, tt.rec.ID)
			assert.Equal(t, tt.rec.ProcessedByStaff1, back.ProcessedByStaff1)
			assert.Equal(t, tt.rec.Data, back.Data)
			assert.Equal(t, tt.rec.Revision, back.Revision)
		})
	}
}
