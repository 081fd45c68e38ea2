package fakeprofilerepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/printhaus/storeauth/internal/errors"
	"github.com/printhaus/storeauth/profiles"
)

var _ profiles.Repo = (*FakeProfileRepo)(nil)

type FakeProfileRepo struct {
	byUserID map[string]*profiles.Profile
	lock     sync.RWMutex

	// CreateErr, when set, is returned by Create. Used to exercise the
	// two-step registration partial-failure path in tests.
	CreateErr error
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		byUserID: make(map[string]*profiles.Profile),
	}
}

func (pr *FakeProfileRepo) Create(_ context.Context, profile *profiles.Profile) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if pr.CreateErr != nil {
		return pr.CreateErr
	}
	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = profile.CreatedAt
	pr.byUserID[profile.UserID] = profile
	return nil
}

func (pr *FakeProfileRepo) Upsert(_ context.Context, profile *profiles.Profile) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if profile.ID == "" {
		profile.ID = uuid.New().String()
	}
	profile.UpdatedAt = time.Now()
	pr.byUserID[profile.UserID] = profile
	return nil
}

func (pr *FakeProfileRepo) GetByUserID(_ context.Context, userID string) (*profiles.Profile, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	profile, ok := pr.byUserID[userID]
	if !ok {
		return nil, errors.ErrProfileNotFound
	}
	return profile, nil
}

func (pr *FakeProfileRepo) Delete(_ context.Context, userID string) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if _, ok := pr.byUserID[userID]; !ok {
		return errors.ErrProfileNotFound
	}
	delete(pr.byUserID, userID)
	return nil
}
