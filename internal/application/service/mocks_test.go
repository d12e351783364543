package service

import (
	"context"
	"sync"
	"time"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
)

// Mock implementations

type mockFormRepository struct {
	createFunc          func(ctx context.Context, form *entity.Form) error
	getByIDFunc         func(ctx context.Context, id string) (*entity.Form, error)
	updateFunc          func(ctx context.Context, form *entity.Form, expectedVersion int) error
	deleteFunc          func(ctx context.Context, id string, expectedVersion int) error
	listFunc            func(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error)
	linkedLegacyIDsFunc func(ctx context.Context, legacyIDs []string) (map[string]bool, error)
}

func (m *mockFormRepository) Create(ctx context.Context, form *entity.Form) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, form)
	}
	return nil
}

func (m *mockFormRepository) GetByID(ctx context.Context, id string) (*entity.Form, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockFormRepository) Update(ctx context.Context, form *entity.Form, expectedVersion int) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, form, expectedVersion)
	}
	return nil
}

func (m *mockFormRepository) Delete(ctx context.Context, id string, expectedVersion int) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id, expectedVersion)
	}
	return nil
}

func (m *mockFormRepository) List(ctx context.Context, filter entity.FormFilter) ([]*entity.Form, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, nil
}

func (m *mockFormRepository) LinkedLegacyIDs(ctx context.Context, legacyIDs []string) (map[string]bool, error) {
	if m.linkedLegacyIDsFunc != nil {
		return m.linkedLegacyIDsFunc(ctx, legacyIDs)
	}
	return map[string]bool{}, nil
}

type mockLegacyStore struct {
	collection  entity.ServiceType
	listFunc    func(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error)
	getByIDFunc func(ctx context.Context, id string) (*entity.LegacyRecord, error)
	updateFunc  func(ctx context.Context, rec *entity.LegacyRecord, expectedRevision int) error
}

func (m *mockLegacyStore) Collection() entity.ServiceType { return m.collection }

func (m *mockLegacyStore) List(ctx context.Context, q port.LegacyQuery) ([]*entity.LegacyRecord, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, q)
	}
	return nil, nil
}

func (m *mockLegacyStore) GetByID(ctx context.Context, id string) (*entity.LegacyRecord, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockLegacyStore) Update(ctx context.Context, rec *entity.LegacyRecord, expectedRevision int) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, rec, expectedRevision)
	}
	return nil
}

type mockAuditRepository struct {
	mu         sync.Mutex
	entries    []*entity.AuditEntry
	appendErr  error
	queryCalls int
}

func (m *mockAuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.Sequence = int64(len(m.entries) + 1)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepository) Query(ctx context.Context, filter entity.AuditFilter, limit int) ([]*entity.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCalls++
	var out []*entity.AuditEntry
	for _, e := range m.entries {
		if e.Sequence <= filter.AfterSequence {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockAccountDirectory struct {
	accounts map[string]*entity.Account
	err      error
}

func (m *mockAccountDirectory) Lookup(ctx context.Context, id string) (*entity.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.accounts[id], nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []port.Notification
	err  error
}

func (m *mockNotifier) Notify(ctx context.Context, n port.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Info(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(string, ...any) {}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
