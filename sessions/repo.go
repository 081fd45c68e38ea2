package sessions

import (
	"context"
	"time"
)

// Repo defines the interface for session storage operations.
type Repo interface {
	// Upsert creates or updates a session
	Upsert(ctx context.Context, session *Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Delete removes a session by ID. Deleting an absent session is a no-op
	// so that logout stays idempotent.
	Delete(ctx context.Context, sessionID string) error

	// Touch updates the session's last-activity timestamp
	Touch(ctx context.Context, sessionID string, at time.Time) error

	// DeleteExpired removes sessions whose hard expiry is before the cutoff
	DeleteExpired(ctx context.Context, cutoff time.Time) error
}
