package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/deed-approval/internal/application/port"
	"github.com/garyjia/deed-approval/internal/domain/entity"
	"github.com/garyjia/deed-approval/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// AccountRepository implements port.AccountRepository and port.AccountDirectory
type AccountRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB, logger *zap.Logger) *AccountRepository {
	return &AccountRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	var (
		acc    entity.Account
		active int
	)
	err := sqlite.ExecutorFrom(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, email, role, active, lark_open_id FROM accounts WHERE id = ?`, id,
	).Scan(&acc.ID, &acc.Name, &acc.Email, &acc.Role, &active, &acc.LarkOpenID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get account", zap.String("account_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	acc.Active = active != 0
	return &acc, nil
}

// Lookup implements port.AccountDirectory
func (r *AccountRepository) Lookup(ctx context.Context, id string) (*entity.Account, error) {
	return r.GetByID(ctx, id)
}

// Upsert creates or replaces an account
func (r *AccountRepository) Upsert(ctx context.Context, acc *entity.Account) error {
	now := time.Now().UTC()
	_, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, `
		INSERT INTO accounts (id, name, email, role, active, lark_open_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			active = excluded.active,
			lark_open_id = excluded.lark_open_id,
			updated_at = excluded.updated_at
	`, acc.ID, acc.Name, acc.Email, acc.Role, boolToInt(acc.Active), acc.LarkOpenID, now, now)
	if err != nil {
		r.logger.Error("Failed to upsert account", zap.String("account_id", acc.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// ListByRole returns active and inactive accounts holding a role
func (r *AccountRepository) ListByRole(ctx context.Context, role entity.Role) ([]*entity.Account, error) {
	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx,
		`SELECT id, name, email, role, active, lark_open_id FROM accounts WHERE role = ? ORDER BY id`, role)
	if err != nil {
		r.logger.Error("Failed to list accounts", zap.String("role", string(role)), zap.Error(err))
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*entity.Account
	for rows.Next() {
		var (
			acc    entity.Account
			active int
		)
		if err := rows.Scan(&acc.ID, &acc.Name, &acc.Email, &acc.Role, &active, &acc.LarkOpenID); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acc.Active = active != 0
		accounts = append(accounts, &acc)
	}
	return accounts, rows.Err()
}

var (
	_ port.AccountRepository = (*AccountRepository)(nil)
	_ port.AccountDirectory  = (*AccountRepository)(nil)
)
