package database

import (
	"database/sql"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Migration is one NNN_name.sql file
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies embedded schema files in version order, each in its own transaction
type Migrator struct {
	db     *DB
	logger *zap.Logger
}

func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, logger: logger}
}

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// RunMigrations applies every migration in fsys that is not yet recorded and
// returns how many ran
func (m *Migrator) RunMigrations(fsys fs.FS) (int, error) {
	if _, err := m.db.Exec(schemaMigrationsDDL); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	pending, err := ParseMigrations(fsys)
	if err != nil {
		return 0, err
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range pending {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if err := m.apply(mig); err != nil {
			return ran, fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		m.logger.Info("Migration applied", zap.Int("version", mig.Version), zap.String("name", mig.Name))
		ran++
	}

	m.logger.Info("Schema up to date", zap.Int("applied", ran), zap.Int("known", len(pending)))
	return ran, nil
}

func (m *Migrator) appliedVersions() (map[int]struct{}, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	versions := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions[v] = struct{}{}
	}
	return versions, rows.Err()
}

func (m *Migrator) apply(mig Migration) error {
	return m.db.WithTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(mig.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name)
		return err
	})
}

// ParseMigrations reads the top-level *.sql files of fsys sorted by version.
// File names must look like 001_forms.sql; versions must be unique.
func ParseMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(names))
	byVersion := make(map[int]string, len(names))
	for _, file := range names {
		prefix, rest, ok := strings.Cut(strings.TrimSuffix(file, ".sql"), "_")
		version, convErr := strconv.Atoi(prefix)
		if !ok || convErr != nil || version <= 0 || rest == "" {
			return nil, fmt.Errorf("invalid migration filename %q", file)
		}
		if other, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, other, file)
		}
		byVersion[version] = file

		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		out = append(out, Migration{Version: version, Name: rest, SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}
