package flowstate

import "time"

// AuthFlowState tracks an in-flight federated login between the redirect to
// the provider and the callback.
type AuthFlowState struct {
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error

	// DeleteExpired removes states created before the cutoff so abandoned
	// login flows do not accumulate.
	DeleteExpired(cutoff time.Time) error
}
