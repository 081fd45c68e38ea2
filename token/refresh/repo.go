package refresh

import "time"

// Record stores the server side of an opaque refresh token.
type Record struct {
	Token     string
	UserID    string
	Email     string
	Role      string
	Realm     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Repo interface {
	Upsert(token string, record *Record) error
	Get(token string) (*Record, error)
	Delete(token string) error
	DeleteExpired(cutoff time.Time) error
}
