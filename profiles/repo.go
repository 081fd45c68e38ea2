package profiles

import "context"

// Repo defines storage operations for customer profiles.
type Repo interface {
	Create(ctx context.Context, profile *Profile) error
	Upsert(ctx context.Context, profile *Profile) error
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	Delete(ctx context.Context, userID string) error
}
