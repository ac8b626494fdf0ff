package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miq-labs/miq-be/internal/platform/db"
	"github.com/miq-labs/miq-be/internal/shared"
)

// TxRepository exposes the row-locked operations available inside WithTx.
type TxRepository interface {
	GetForUpdate(ctx context.Context, guid string) (*User, error)
	Save(ctx context.Context, user *User) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// List returns one page of users plus the total row count.
func (r *Repository) List(ctx context.Context, params shared.ListParams) ([]User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT u.guid, u.first_name, u.last_name, u.email, u.hashed_psw,
		       u.address, u.poste_code, u.city, u.county, u.country,
		       u.age, u.date_of_birth, u.created_at, u.updated_at,
		       COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_guid = u.guid
		LEFT JOIN roles r ON r.id = ur.role_id
		GROUP BY u.guid
		ORDER BY u.created_at, u.guid
		OFFSET $1 LIMIT $2`, params.Offset, params.Limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		err := rows.Scan(
			&u.GUID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
			&u.Address, &u.PosteCode, &u.City, &u.County, &u.Country,
			&u.Age, &u.DateOfBirth, &u.CreatedAt, &u.UpdatedAt, &u.Roles,
		)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// GetByGUID fetches one user with assigned roles.
func (r *Repository) GetByGUID(ctx context.Context, guid string) (*User, error) {
	return r.getWhere(ctx, "u.guid = $1", guid)
}

// GetByEmail fetches one user with assigned roles.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getWhere(ctx, "u.email = $1", email)
}

func (r *Repository) getWhere(ctx context.Context, where string, arg any) (*User, error) {
	query := `
		SELECT u.guid, u.first_name, u.last_name, u.email, u.hashed_psw,
		       u.address, u.poste_code, u.city, u.county, u.country,
		       u.age, u.date_of_birth, u.created_at, u.updated_at,
		       COALESCE(ARRAY_AGG(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
		FROM users u
		LEFT JOIN user_roles ur ON ur.user_guid = u.guid
		LEFT JOIN roles r ON r.id = ur.role_id
		WHERE ` + where + `
		GROUP BY u.guid`
	var u User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&u.GUID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.Address, &u.PosteCode, &u.City, &u.County, &u.Country,
		&u.Age, &u.DateOfBirth, &u.CreatedAt, &u.UpdatedAt, &u.Roles,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row. Email collisions map to ErrDuplicate.
func (r *Repository) Create(ctx context.Context, user *User) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users (guid, first_name, last_name, email, hashed_psw,
		                   address, poste_code, city, county, country,
		                   age, date_of_birth, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`,
		user.GUID, user.FirstName, user.LastName, user.Email, user.PasswordHash,
		user.Address, user.PosteCode, user.City, user.County, user.Country,
		user.Age, user.DateOfBirth,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicate
		}
		return err
	}
	return nil
}

// Delete removes the user row, cascading role assignments.
func (r *Repository) Delete(ctx context.Context, guid string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE guid = $1`, guid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type txRepo struct {
	tx pgx.Tx
}

// GetForUpdate locks the user row for the rest of the transaction.
func (t *txRepo) GetForUpdate(ctx context.Context, guid string) (*User, error) {
	var u User
	err := t.tx.QueryRow(ctx, `
		SELECT guid, first_name, last_name, email, hashed_psw,
		       address, poste_code, city, county, country,
		       age, date_of_birth, created_at, updated_at
		FROM users
		WHERE guid = $1
		FOR UPDATE`, guid).Scan(
		&u.GUID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.Address, &u.PosteCode, &u.City, &u.County, &u.Country,
		&u.Age, &u.DateOfBirth, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Save writes the mutable profile fields back to the locked row.
func (t *txRepo) Save(ctx context.Context, user *User) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, address = $4, poste_code = $5,
		    city = $6, county = $7, country = $8, age = $9, date_of_birth = $10,
		    updated_at = NOW()
		WHERE guid = $1`,
		user.GUID, user.FirstName, user.LastName, user.Address, user.PosteCode,
		user.City, user.County, user.Country, user.Age, user.DateOfBirth,
	)
	return err
}

var _ TxRepository = (*txRepo)(nil)
