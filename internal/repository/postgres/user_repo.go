package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/treasury-vesting/internal/domain"
)

type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// GetUserByUsername возвращает nil, nil для неизвестного пользователя.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `
		SELECT id::text, username, password_hash, address, scopes, created_at, updated_at
		FROM users WHERE username = $1`

	u := &domain.User{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Address, &u.Scopes, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: get user: %w", err)
	}
	return u, nil
}

// CreateUser заводит оператора консоли; хэш пароля считает вызывающий.
func (r *UserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (id, username, password_hash, address, scopes)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, u.ID, u.Username, u.PasswordHash, u.Address.String(), u.Scopes)
	if err != nil {
		return fmt.Errorf("postgres: failed to create user: %w", err)
	}
	return nil
}
