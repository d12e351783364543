package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"golang.org/x/sync/errgroup"
)

const (
	defaultLegacyFanout  = 4
	defaultLegacyListCap = 100
	defaultListLimit     = 50

	legacyStatusRejected = "rejected"
)

// LegacyFormReconciler presents native forms and legacy per-type records
// through one Form shape, and routes writes back to where a record lives.
type LegacyFormReconciler interface {
	// ListUnified merges native and legacy forms, most recently active first
	ListUnified(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error)
	// Load resolves a native or legacy id. It returns (nil, nil) when nothing matches.
	Load(ctx context.Context, id string) (*entity.Form, error)
	// Persist stores a mutated form in its origin store under the version check
	Persist(ctx context.Context, form *entity.Form, expectedVersion int) error
	// WriteBack maps a legacy-origin form onto its backing record and stores it
	WriteBack(ctx context.Context, form *entity.Form, expectedVersion int) error
}

type reconcilerImpl struct {
	forms     port.FormRepository
	legacy    map[entity.ServiceType]port.LegacyStore
	fanout    int
	listCap   int
	listLimit int
	logger    Logger
}

// ReconcilerOption configures the reconciler
type ReconcilerOption func(*reconcilerImpl)

// WithLegacyFanout bounds how many legacy stores are read concurrently
func WithLegacyFanout(n int) ReconcilerOption {
	return func(r *reconcilerImpl) {
		if n > 0 {
			r.fanout = n
		}
	}
}

// WithLegacyListCap bounds how many records are read from each legacy store
func WithLegacyListCap(n int) ReconcilerOption {
	return func(r *reconcilerImpl) {
		if n > 0 {
			r.listCap = n
		}
	}
}

// WithListDefaultLimit sets the page size used when a filter names none
func WithListDefaultLimit(n int) ReconcilerOption {
	return func(r *reconcilerImpl) {
		if n > 0 {
			r.listLimit = n
		}
	}
}

// NewLegacyFormReconciler creates a reconciler over the native store and the legacy stores
func NewLegacyFormReconciler(
	forms port.FormRepository,
	legacy map[entity.ServiceType]port.LegacyStore,
	logger Logger,
	opts ...ReconcilerOption,
) LegacyFormReconciler {
	r := &reconcilerImpl{
		forms:     forms,
		legacy:    legacy,
		fanout:    defaultLegacyFanout,
		listCap:   defaultLegacyListCap,
		listLimit: defaultListLimit,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListUnified returns one page of the merged listing
func (r *reconcilerImpl) ListUnified(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = r.listLimit
	}
	offset := max(filter.Offset, 0)

	if !filter.IncludeLegacy || filter.AssignedTo != "" || len(r.legacy) == 0 {
		native := filter
		native.Limit, native.Offset = limit, offset
		return r.forms.List(ctx, native)
	}

	// Legacy records interleave with native ones, so the native page has to
	// start at zero and be cut after merging.
	native := filter
	native.Limit, native.Offset = offset+limit, 0
	forms, err := r.forms.List(ctx, native)
	if err != nil {
		return nil, fmt.Errorf("list native forms: %w", err)
	}

	legacy, err := r.listLegacy(ctx, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(legacy))
	for i, f := range legacy {
		ids[i] = f.ID
	}
	linked, err := r.forms.LinkedLegacyIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve linked legacy forms: %w", err)
	}
	for _, f := range legacy {
		if !linked[f.ID] {
			forms = append(forms, f)
		}
	}

	slices.SortStableFunc(forms, func(a, b *entity.Form) int {
		if c := b.LastActivityAt.Compare(a.LastActivityAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if offset >= len(forms) {
		return []*entity.Form{}, nil
	}
	forms = forms[offset:]
	if len(forms) > limit {
		forms = forms[:limit]
	}
	return forms, nil
}

// listLegacy reads the legacy stores concurrently. A failing store is
// logged and left out rather than failing the whole listing.
func (r *reconcilerImpl) listLegacy(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
	var (
		mu    sync.Mutex
		forms []*entity.Form
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)

	for _, collection := range entity.AllServiceTypes() {
		store, ok := r.legacy[collection]
		if !ok {
			continue
		}
		if filter.ServiceType != "" && filter.ServiceType != collection {
			continue
		}

		g.Go(func() error {
			records, err := store.List(gctx, port.LegacyQuery{
				SubmitterID:     filter.SubmitterID,
				UnprocessedOnly: true,
				Limit:           r.listCap,
			})
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Warn("Skipping unavailable legacy store", "collection", collection, "error", err)
				return nil
			}

			var matched []*entity.Form
			for _, rec := range records {
				f := LegacyToForm(collection, rec)
				if matchesFilter(f, filter) {
					matched = append(matched, f)
				}
			}

			mu.Lock()
			forms = append(forms, matched...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("list legacy forms: %w", err)
	}
	return forms, nil
}

func matchesFilter(f *entity.Form, filter entity.FormFilter) bool {
	if filter.Status != "" && f.Status != filter.Status {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(filter.Search)); s != "" {
		if !strings.Contains(strings.ToLower(f.FormTitle), s) &&
			!strings.Contains(strings.ToLower(f.FormDescription), s) {
			return false
		}
	}
	return true
}

// Load resolves native ids against the form store and legacy ids against their collection
func (r *reconcilerImpl) Load(ctx context.Context, id string) (*entity.Form, error) {
	if !entity.IsLegacyFormID(id) {
		return r.forms.GetByID(ctx, id)
	}

	collection, recordID, ok := entity.ParseLegacyFormID(id)
	if !ok {
		return nil, errs.Validation("malformed legacy form id %q", id)
	}
	store, ok := r.legacy[collection]
	if !ok {
		return nil, nil
	}

	rec, err := store.GetByID(ctx, recordID)
	if err != nil || rec == nil {
		return nil, err
	}
	return LegacyToForm(collection, rec), nil
}

// Persist routes the write by origin
func (r *reconcilerImpl) Persist(ctx context.Context, form *entity.Form, expectedVersion int) error {
	if form.IsLegacy {
		return r.WriteBack(ctx, form, expectedVersion)
	}
	return r.forms.Update(ctx, form, expectedVersion)
}

// WriteBack updates the origin collection. Legacy records keep no history;
// only fields, stage 1 processing and notes survive the round trip.
func (r *reconcilerImpl) WriteBack(ctx context.Context, form *entity.Form, expectedVersion int) error {
	if !form.IsLegacy {
		return errs.Validation("form %s is not a legacy record", form.ID)
	}

	collection, recordID, ok := entity.ParseLegacyFormID(form.ID)
	if !ok {
		return errs.Validation("malformed legacy form id %q", form.ID)
	}
	store, ok := r.legacy[collection]
	if !ok {
		return errs.NotFound("legacy collection %s is not configured", collection)
	}

	rec := FormToLegacy(form, recordID)
	if err := store.Update(ctx, rec, expectedVersion-1); err != nil {
		return err
	}

	r.logger.Info("Legacy record written back",
		"collection", collection,
		"record_id", recordID,
		"revision", rec.Revision,
		"processed_by_staff1", rec.ProcessedByStaff1,
	)
	return nil
}

// LegacyToForm maps a legacy record onto the unified Form shape. The form
// version is the record revision plus one so a fresh record reads as version 1.
func LegacyToForm(collection entity.ServiceType, rec *entity.LegacyRecord) *entity.Form {
	last := rec.LastActivity()
	f := &entity.Form{
		ID:               entity.LegacyFormID(collection, rec.ID),
		ServiceType:      collection,
		SubmitterID:      rec.SubmitterID,
		FormTitle:        legacyTitle(collection, rec),
		Fields:           entity.CloneFields(rec.Data),
		Status:           entity.StatusSubmitted,
		Approvals:        entity.Approvals{},
		Version:          rec.Revision + 1,
		Notes:            append([]entity.Note(nil), rec.Staff1Notes...),
		IsLegacy:         true,
		OriginCollection: collection,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        last,
		LastActivityAt:   last,
		LastActivityBy:   rec.SubmitterID,
	}
	if desc, ok := rec.Data["description"].(string); ok {
		f.FormDescription = desc
	}
	f.SubmittedAt = &f.CreatedAt

	if rec.ProcessedByStaff1 {
		rejected := rec.Status == legacyStatusRejected
		f.Approvals[entity.Stage1] = entity.ApprovalRecord{
			Approved:   !rejected,
			Rejected:   rejected,
			ApprovedBy: rec.Staff1ProcessedBy,
			ApprovedAt: rec.Staff1ProcessedAt,
			Notes:      lastNoteText(rec.Staff1Notes),
		}
		if rejected {
			f.Status = entity.StatusRejected
		} else {
			f.Status = entity.StatusVerified
		}
		if rec.Staff1ProcessedBy != "" {
			f.LastActivityBy = rec.Staff1ProcessedBy
		}
	}
	return f
}

// FormToLegacy maps a legacy-origin form back onto its record
func FormToLegacy(form *entity.Form, recordID string) *entity.LegacyRecord {
	stage1 := form.Approvals.Get(entity.Stage1)
	processed := stage1.Approved || stage1.Rejected || stage1.ApprovedBy != ""

	status := string(entity.StatusSubmitted)
	switch {
	case stage1.Rejected:
		status = legacyStatusRejected
	case processed:
		status = string(entity.StatusVerified)
	}

	updated := form.UpdatedAt
	rec := &entity.LegacyRecord{
		ID:                recordID,
		Collection:        form.OriginCollection,
		SubmitterID:       form.SubmitterID,
		Data:              entity.CloneFields(form.Fields),
		Status:            status,
		ProcessedByStaff1: processed,
		Staff1Notes:       append([]entity.Note(nil), form.Notes...),
		Revision:          form.Version - 1,
		CreatedAt:         form.CreatedAt,
		UpdatedAt:         &updated,
	}
	if processed {
		rec.Staff1ProcessedBy = stage1.ApprovedBy
		rec.Staff1ProcessedAt = stage1.ApprovedAt
	}
	return rec
}

func legacyTitle(collection entity.ServiceType, rec *entity.LegacyRecord) string {
	for _, key := range []string{"form_title", "title"} {
		if t, ok := rec.Data[key].(string); ok && strings.TrimSpace(t) != "" {
			return t
		}
	}
	return entity.DefaultTitle(collection, rec.ID)
}

func lastNoteText(notes []entity.Note) string {
	if len(notes) == 0 {
		return ""
	}
	return notes[len(notes)-1].Text
}
