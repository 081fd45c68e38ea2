// Package postgres provides a PostgreSQL-backed profiles.Repo using pgx
// through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/profiles"

	"github.com/google/uuid"
)

var _ profiles.Repo = (*Repo)(nil)

type Repo struct {
	db *sql.DB
}

// NewRepo wraps an existing database handle; typically the same handle used
// by the users repo.
func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, profile *profiles.Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	now := time.Now()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	const q = `
		INSERT INTO profiles (id, user_id, name, phone, addr_line1, addr_line2, city, state, postal_code, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, q,
		profile.ID, profile.UserID, profile.Name, profile.Phone,
		profile.Address.Line1, profile.Address.Line2, profile.Address.City,
		profile.Address.State, profile.Address.PostalCode, profile.Address.Country,
		profile.CreatedAt, profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create profile: %w", err)
	}
	return nil
}

func (r *Repo) Upsert(ctx context.Context, profile *profiles.Profile) error {
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	profile.UpdatedAt = time.Now()

	const q = `
		INSERT INTO profiles (id, user_id, name, phone, addr_line1, addr_line2, city, state, postal_code, country, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), $11)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			addr_line1 = EXCLUDED.addr_line1,
			addr_line2 = EXCLUDED.addr_line2,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postal_code = EXCLUDED.postal_code,
			country = EXCLUDED.country,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, q,
		profile.ID, profile.UserID, profile.Name, profile.Phone,
		profile.Address.Line1, profile.Address.Line2, profile.Address.City,
		profile.Address.State, profile.Address.PostalCode, profile.Address.Country,
		profile.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert profile: %w", err)
	}
	return nil
}

func (r *Repo) GetByUserID(ctx context.Context, userID string) (*profiles.Profile, error) {
	const q = `
		SELECT id, user_id, name, phone, addr_line1, addr_line2, city, state, postal_code, country, created_at, updated_at
		FROM profiles WHERE user_id = $1`

	var p profiles.Profile
	err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.Phone,
		&p.Address.Line1, &p.Address.Line2, &p.Address.City,
		&p.Address.State, &p.Address.PostalCode, &p.Address.Country,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get profile: %w", err)
	}
	return &p, nil
}

func (r *Repo) Delete(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrProfileNotFound
	}
	return nil
}
