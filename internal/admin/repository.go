package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines methods for accessing admin accounts from storage.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Admin, error)
	GetByID(ctx context.Context, id string) (*Admin, error)
	Create(ctx context.Context, a *Admin) error
	UpdateLastLogin(ctx context.Context, id string, t time.Time) error
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRepository creates a new Repository implementation using pgxpool.
func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

const selectAdmin = `
	SELECT id, email, password_hash, display_name, is_active, created_at, last_login_at
	FROM public.admins
`

func (r *pgxRepository) GetByEmail(ctx context.Context, email string) (*Admin, error) {
	return r.get(ctx, selectAdmin+" WHERE email = $1", email)
}

func (r *pgxRepository) GetByID(ctx context.Context, id string) (*Admin, error) {
	return r.get(ctx, selectAdmin+" WHERE id = $1", id)
}

func (r *pgxRepository) get(ctx context.Context, query string, arg any) (*Admin, error) {
	var a Admin
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.DisplayName,
		&a.IsActive,
		&a.CreatedAt,
		&a.LastLoginAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		var e *pgconn.PgError
		if errors.As(err, &e) && e.Code == pgerrcode.InvalidTextRepresentation {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get admin failed: %w", err)
	}
	return &a, nil
}

func (r *pgxRepository) Create(ctx context.Context, a *Admin) error {
	const query = `
		INSERT INTO public.admins (email, password_hash, display_name, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	if err := r.pool.QueryRow(ctx, query, a.Email, a.PasswordHash, a.DisplayName, a.IsActive).
		Scan(&a.ID, &a.CreatedAt); err != nil {
		var e *pgconn.PgError
		if errors.As(err, &e) && e.Code == pgerrcode.UniqueViolation {
			return ErrEmailAlreadyUsed
		}
		return fmt.Errorf("create admin failed: %w", err)
	}

	return nil
}

func (r *pgxRepository) UpdateLastLogin(ctx context.Context, id string, t time.Time) error {
	const query = `
		UPDATE public.admins
		SET last_login_at = $1
		WHERE id = $2
	`

	ct, err := r.pool.Exec(ctx, query, t, id)
	if err != nil {
		var e *pgconn.PgError
		if errors.As(err, &e) && e.Code == pgerrcode.InvalidTextRepresentation {
			return ErrNotFound
		}
		return fmt.Errorf("update last login failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
