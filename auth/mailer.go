package auth

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers password-reset tokens to users.
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, resetToken string) error
}

// LogMailer writes reset tokens to the log instead of sending mail. Used in
// development and as the default when no mailer is configured.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) SendPasswordReset(_ context.Context, email, resetToken string) error {
	m.Log.Info().
		Str("email", email).
		Str("reset_token", resetToken).
		Msg("password reset requested")
	return nil
}
