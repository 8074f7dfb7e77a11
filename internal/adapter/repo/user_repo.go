package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

const userColumns = `id, email, password_hash, token_balance, token_valid_until, created_at, updated_at`

// UserRepositoryPG implements domain.UserRepository and domain.LedgerStore
// backed by PostgreSQL.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// Create inserts a new account row.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO users (id, email, password_hash)
VALUES ($1, $2, $3)
RETURNING `+userColumns+`;
`, user.ID, user.Email, user.PasswordHash)
	return scanUser(row)
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by email address.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// GetUser satisfies domain.LedgerStore.
func (r *UserRepositoryPG) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return r.GetByID(ctx, userID)
}

// Credit adds tokens and extends the validity window inside one transaction
// with the audit row. The validity arithmetic runs server-side so concurrent
// credits cannot interleave a stale read.
func (r *UserRepositoryPG) Credit(ctx context.Context, userID string, amount, validityDays int, source string) (*domain.User, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE users
SET token_balance = token_balance + $2,
    token_valid_until = CASE
        WHEN token_valid_until IS NULL OR token_valid_until < now()
            THEN now() + make_interval(days => $3)
        ELSE token_valid_until + make_interval(days => $3)
    END,
    updated_at = now()
WHERE id = $1
RETURNING `+userColumns+`;
`, userID, amount, validityDays)
	user, err := scanUser(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO token_history (user_id, change, source, validity_extension_days)
VALUES ($1, $2, $3, $4);
`, userID, amount, source, validityDays)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

// Debit subtracts tokens with a conditional update. A concurrent debit that
// would drive the balance negative, or an expired validity window, leaves the
// row untouched and reports applied=false.
func (r *UserRepositoryPG) Debit(ctx context.Context, userID string, amount int, source string) (*domain.User, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
UPDATE users
SET token_balance = token_balance - $2,
    updated_at = now()
WHERE id = $1
  AND token_balance >= $2
  AND token_valid_until IS NOT NULL
  AND token_valid_until > now()
RETURNING `+userColumns+`;
`, userID, amount)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	_, err = tx.Exec(ctx, `
INSERT INTO token_history (user_id, change, source)
VALUES ($1, $2, $3);
`, userID, -amount, source)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// History lists the most recent ledger entries for a user.
func (r *UserRepositoryPG) History(ctx context.Context, userID string, limit int) ([]domain.TokenHistory, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, user_id, change, source, validity_extension_days, created_at
FROM token_history
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.TokenHistory
	for rows.Next() {
		var h domain.TokenHistory
		if err := rows.Scan(&h.ID, &h.UserID, &h.Change, &h.Source, &h.ValidityExtensionDays, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TokenBalance, &u.TokenValidUntil, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
