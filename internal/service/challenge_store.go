package service

import (
	"context"
	"time"

	"authority/internal/domain"
)

// MFAChallenge is the short-lived state between a proven password and a
// completed second factor.
type MFAChallenge struct {
	ID        string        `json:"id"`
	UserID    domain.UserID `json:"userId"`
	Remember  bool          `json:"remember"`
	Method    string        `json:"method"` // password | oauth:<provider>
	CreatedAt time.Time     `json:"createdAt"`
}

type ChallengeStore interface {
	Save(ctx context.Context, ch MFAChallenge, ttl time.Duration) error
	// Get returns domain.ErrNotFound for unknown or expired challenges.
	Get(ctx context.Context, id string) (*MFAChallenge, error)
	// RecordFailure counts a wrong code and drops the challenge once
	// maxFailures is reached. remaining is how many tries are left.
	RecordFailure(ctx context.Context, id string, maxFailures int) (remaining int, err error)
	// Claim reserves the challenge for one verification attempt. A second
	// claim before release fails with domain.ErrConflict.
	Claim(ctx context.Context, id string, hold time.Duration) (release func(), err error)
	// Consume deletes the challenge, returning domain.ErrNotFound if it was already gone.
	Consume(ctx context.Context, id string) error
}
