package service

import (
	"context"
	"time"

	"authority/internal/domain"
)

// IdentityStore is the keyed record store behind the auth core. Every
// mutation goes through Update or RecordLoginFailure so it is atomic per record.
type IdentityStore interface {
	Create(ctx context.Context, u *domain.Identity) error
	GetByID(ctx context.Context, id domain.UserID) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	GetByProvider(ctx context.Context, provider, externalID string) (*domain.Identity, error)
	Update(ctx context.Context, id domain.UserID, fn func(u *domain.Identity) error) (*domain.Identity, error)
	// RecordLoginFailure counts a failure and arms the lock once threshold is
	// reached and no lock is active at now. armed is true only for the call
	// that armed it.
	RecordLoginFailure(ctx context.Context, id domain.UserID, threshold int, now, lockUntil time.Time) (u *domain.Identity, armed bool, err error)
}
