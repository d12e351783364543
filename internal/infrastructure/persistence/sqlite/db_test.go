package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", "file:"+filepath.Join(t.TempDir(), "tx.db")+"?_busy_timeout=5000")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	_, err = sqlDB.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	return NewDB(sqlDB, zap.NewNop())
}

func countItems(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("commits on success", func(t *testing.T) {
		db := openTestDB(t)
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			_, err := ExecutorFrom(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO items (name) VALUES ('a')`)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, countItems(t, db))
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db := openTestDB(t)
		boom := errors.New("boom")
		err := db.WithTransaction(ctx, func(txCtx context.Context) error {
			if _, err := ExecutorFrom(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO items (name) VALUES ('a')`); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, countItems(t, db))
	})

	t.Run("nested call reuses transaction", func(t *testing.T) {
		db := openTestDB(t)
		err := db.WithTransaction(ctx, func(outer context.Context) error {
			return db.WithTransaction(outer, func(inner context.Context) error {
				assert.Same(t, extractTx(outer), extractTx(inner))
				return nil
			})
		})
		require.NoError(t, err)
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		db := openTestDB(t)
		assert.Panics(t, func() {
			_ = db.WithTransaction(ctx, func(txCtx context.Context) error {
				_, _ = ExecutorFrom(txCtx, db.DB).ExecContext(txCtx, `INSERT INTO items (name) VALUES ('a')`)
				panic("handler bug")
			})
		})
		assert.Equal(t, 0, countItems(t, db))
	})
}

func TestExecutorFrom_NoTransaction(t *testing.T) {
	db := openTestDB(t)
	_, ok := ExecutorFrom(context.Background(), db.DB).(*sql.DB)
	assert.True(t, ok)
}
