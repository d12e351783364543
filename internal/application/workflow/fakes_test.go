package workflow

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/garyjia/deed-approval/internal/application/dispatcher"
	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/domain/errs"
	"github.com/garyjia/deed-approval/internal/domain/event"
)

// Mock implementations

type memForms struct {
	mu        sync.Mutex
	forms     map[string]*entity.Form
	getFunc   func(ctx context.Context, id string) (*entity.Form, error)
	updateErr error
	// onUpdate runs before every write; a non-nil error aborts it
	onUpdate func(ctx context.Context) error
}

func newMemForms() *memForms {
	return &memForms{forms: make(map[string]*entity.Form)}
}

func (m *memForms) Create(ctx context.Context, form *entity.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.forms[form.ID]; exists {
		return errs.Conflict("form %s already exists", form.ID)
	}
	m.forms[form.ID] = form.Clone()
	return nil
}

func (m *memForms) GetByID(ctx context.Context, id string) (*entity.Form, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forms[id].Clone(), nil
}

func (m *memForms) Update(ctx context.Context, form *entity.Form, expectedVersion int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if m.onUpdate != nil {
		if err := m.onUpdate(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.forms[form.ID]
	if !ok {
		return errs.NotFound("form %s not found", form.ID)
	}
	if current.Version != expectedVersion {
		return errs.Conflict("form %s is at version %d, expected %d", form.ID, current.Version, expectedVersion)
	}
	m.forms[form.ID] = form.Clone()
	return nil
}

func (m *memForms) Delete(ctx context.Context, id string, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.forms[id]
	if !ok {
		return errs.NotFound("form %s not found", id)
	}
	if current.Version != expectedVersion {
		return errs.Conflict("form %s is at version %d, expected %d", id, current.Version, expectedVersion)
	}
	delete(m.forms, id)
	return nil
}

func (m *memForms) List(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Form
	for _, f := range m.forms {
		if filter.SubmitterID != "" && f.SubmitterID != filter.SubmitterID {
			continue
		}
		if filter.ServiceType != "" && f.ServiceType != filter.ServiceType {
			continue
		}
		out = append(out, f.Clone())
	}
	slices.SortFunc(out, func(a, b *entity.Form) int { return b.LastActivityAt.Compare(a.LastActivityAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *memForms) LinkedLegacyIDs(ctx context.Context, legacyIDs []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	linked := make(map[string]bool)
	for _, f := range m.forms {
		if f.LegacySourceID != "" && slices.Contains(legacyIDs, f.LegacySourceID) {
			linked[f.LegacySourceID] = true
		}
	}
	return linked, nil
}

func (m *memForms) get(id string) *entity.Form {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forms[id].Clone()
}

type memLegacy struct {
	mu         sync.Mutex
	collection entity.ServiceType
	records    map[string]*entity.LegacyRecord
}

func newMemLegacy(collection entity.ServiceType, recs ...*entity.LegacyRecord) *memLegacy {
	m := &memLegacy{collection: collection, records: make(map[string]*entity.LegacyRecord)}
	for _, r := range recs {
		m.records[r.ID] = r
	}
	return m
}

func (m *memLegacy) Collection() entity.ServiceType { return m.collection }

func (m *memLegacy) List(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.LegacyRecord
	for _, r := range m.records {
		if q.UnprocessedOnly && r.ProcessedByStaff1 {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (m *memLegacy) GetByID(ctx context.Context, id string) (*entity.LegacyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *memLegacy) Update(ctx context.Context, rec *entity.LegacyRecord, expectedRevision int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.records[rec.ID]
	if !ok {
		return errs.NotFound("legacy record %s not found", rec.ID)
	}
	if current.Revision != expectedRevision {
		return errs.Conflict("legacy record %s is at revision %d", rec.ID, current.Revision)
	}
	c := *rec
	m.records[rec.ID] = &c
	return nil
}

type memStaffReports struct {
	mu      sync.Mutex
	reports map[string]*entity.StaffReport
}

func newMemStaffReports() *memStaffReports {
	return &memStaffReports{reports: make(map[string]*entity.StaffReport)}
}

func (m *memStaffReports) Get(ctx context.Context, staffID, formID string) (*entity.StaffReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[staffID+"/"+formID]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

func (m *memStaffReports) Upsert(ctx context.Context, report *entity.StaffReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := report.StaffID + "/" + report.FormID
	if existing, ok := m.reports[key]; ok && existing.IsSubmitted {
		return errs.PreconditionFailed("already submitted")
	}
	c := *report
	m.reports[key] = &c
	return nil
}

func (m *memStaffReports) ListByStaff(ctx context.Context, staffID string, pendingOnly bool) ([]*entity.StaffReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.StaffReport
	for _, r := range m.reports {
		if r.StaffID == staffID && (!pendingOnly || !r.IsSubmitted) {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStaffReports) ListByForm(ctx context.Context, formID string) ([]*entity.StaffReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.StaffReport
	for _, r := range m.reports {
		if r.FormID == formID {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStaffReports) MarkSubmitted(ctx context.Context, staffID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.reports {
		if r.StaffID == staffID && !r.IsSubmitted {
			r.IsSubmitted = true
			r.SubmittedAt = &at
			n++
		}
	}
	return n, nil
}

type memFinalReports struct {
	mu      sync.Mutex
	reports map[string]*entity.ReportArtifact
	saveErr error
}

func newMemFinalReports() *memFinalReports {
	return &memFinalReports{reports: make(map[string]*entity.ReportArtifact)}
}

func (m *memFinalReports) Save(ctx context.Context, report *entity.ReportArtifact) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[report.FormID]; !ok {
		c := *report
		m.reports[report.FormID] = &c
	}
	return nil
}

func (m *memFinalReports) SetDocumentPath(ctx context.Context, formID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.reports[formID]; ok {
		r.DocumentPath = path
	}
	return nil
}

func (m *memFinalReports) GetByFormID(ctx context.Context, formID string) (*entity.ReportArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[formID]
	if !ok {
		return nil, nil
	}
	c := *r
	return &c, nil
}

type mockAccounts struct {
	accounts map[string]*entity.Account
}

func (m *mockAccounts) Lookup(ctx context.Context, id string) (*entity.Account, error) {
	return m.accounts[id], nil
}

type memAudit struct {
	mu        sync.Mutex
	entries   []*entity.AuditEntry
	appendErr error
}

func (m *memAudit) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Sequence = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) Query(ctx context.Context, filter entity.AuditFilter, limit int) ([]*entity.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ordered := slices.Clone(m.entries)
	slices.SortStableFunc(ordered, auditOrder)

	var cursor *entity.AuditEntry
	if filter.AfterSequence > 0 {
		i := slices.IndexFunc(ordered, func(e *entity.AuditEntry) bool { return e.Sequence == filter.AfterSequence })
		if i < 0 {
			return nil, nil
		}
		cursor = ordered[i]
	}

	var out []*entity.AuditEntry
	for _, e := range ordered {
		if cursor != nil && auditOrder(e, cursor) <= 0 {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Result != "" && e.Result != filter.Result {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func auditOrder(a, b *entity.AuditEntry) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(a.Sequence, b.Sequence)
}

func (m *memAudit) byResult(result string) []*entity.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AuditEntry
	for _, e := range m.entries {
		if e.Result == result {
			out = append(out, e)
		}
	}
	return out
}

type mockTxManager struct{}

func (mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error { return nil }

func (m *mockDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

type mockRenderer struct {
	renderErr error
}

func (m *mockRenderer) Render(ctx context.Context, report *entity.ReportArtifact) ([]byte, error) {
	if m.renderErr != nil {
		return nil, m.renderErr
	}
	return []byte(report.Content), nil
}

func (m *mockRenderer) ContentType() string { return "text/plain" }
func (m *mockRenderer) Extension() string   { return ".txt" }

type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memStorage) Save(ctx context.Context, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[path] = content
	return nil
}

func (m *memStorage) Read(ctx context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *memStorage) Exists(ctx context.Context, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

func (m *memStorage) GetFullPath(relativePath string) string { return "/mem/" + relativePath }
