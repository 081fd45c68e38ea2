package server

import (
	"context"

	apperrors "github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/users"
)

// SeedAdmin creates the initial admin account when one is configured and no
// account with that email exists yet. Subsequent startups are no-ops.
func (s *Server) SeedAdmin(ctx context.Context) error {
	seed := s.config.Admin
	if seed.Email == "" {
		return nil
	}

	if _, err := s.repos.Users.GetByEmail(ctx, seed.Email); err == nil {
		return nil
	} else if !apperrors.Is(err, apperrors.ErrUserNotFound) {
		return apperrors.Wrapf(err, "[Server.SeedAdmin] failed to look up admin account")
	}

	if err := users.ValidatePasswordStrength(seed.Password); err != nil {
		return apperrors.Wrapf(err, "[Server.SeedAdmin] admin seed password")
	}

	hash, err := users.HashPassword(seed.Password)
	if err != nil {
		return apperrors.Wrapf(err, "[Server.SeedAdmin] failed to hash admin password")
	}

	admin := &users.User{
		Email:        seed.Email,
		PasswordHash: hash,
		Name:         seed.Name,
		Role:         users.RoleAdmin,
	}
	if err := s.repos.Users.Upsert(ctx, admin); err != nil {
		return apperrors.Wrapf(err, "[Server.SeedAdmin] failed to create admin account")
	}

	s.log.Info().Str("email", seed.Email).Msg("seeded initial admin account")
	return nil
}
