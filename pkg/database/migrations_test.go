package database

import (
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "nested", "test.db")}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"010_accounts.sql": {Data: []byte("CREATE TABLE accounts (id TEXT);")},
		"002_forms.sql":    {Data: []byte("CREATE TABLE forms (id TEXT);")},
		"README.md":        {Data: []byte("ignored")},
	}

	got, err := ParseMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, "forms", got[0].Name)
	assert.Equal(t, 10, got[1].Version)
	assert.Equal(t, "accounts", got[1].Name)
}

func TestParseMigrations_Errors(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"no version", fstest.MapFS{"forms.sql": {}}},
		{"no name", fstest.MapFS{"001.sql": {}}},
		{"zero version", fstest.MapFS{"000_forms.sql": {}}},
		{"duplicate", fstest.MapFS{"001_forms.sql": {}, "1_accounts.sql": {}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMigrations(tt.fsys)
			assert.Error(t, err)
		})
	}
}

func TestRunMigrations_AppliesOnce(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())
	fsys := fstest.MapFS{
		"001_forms.sql":       {Data: []byte("CREATE TABLE forms (id TEXT PRIMARY KEY);")},
		"002_form_titles.sql": {Data: []byte("ALTER TABLE forms ADD COLUMN title TEXT;")},
	}

	ran, err := m.RunMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, 2, ran)

	ran, err = m.RunMigrations(fsys)
	require.NoError(t, err)
	assert.Zero(t, ran)

	_, err = db.Exec(`INSERT INTO forms (id, title) VALUES ('f-1', 'Sale Deed')`)
	assert.NoError(t, err)
}

func TestRunMigrations_FailedFileIsNotRecorded(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db, zap.NewNop())

	ran, err := m.RunMigrations(fstest.MapFS{
		"001_forms.sql":  {Data: []byte("CREATE TABLE forms (id TEXT);")},
		"002_broken.sql": {Data: []byte("CREATE TABLE;")},
	})
	require.Error(t, err)
	assert.Equal(t, 1, ran)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}
