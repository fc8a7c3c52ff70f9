package impl

import (
	"context"
	"time"

	"authority/internal/domain"
	"authority/internal/service"
)

type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// LockStatus is the guard's view of one identity at one instant.
type LockStatus struct {
	Locked   bool
	Until    time.Time
	Attempts int
}

// Evaluate is a pure function of the persisted counters and now. An expired
// lock reads as unlocked but keeps its counter.
func (p LockoutPolicy) Evaluate(u *domain.Identity, now time.Time) LockStatus {
	st := LockStatus{Attempts: u.FailedLoginAttempts}
	if u.LockedUntil != nil && now.Before(*u.LockedUntil) && (u.Locked || u.FailedLoginAttempts >= p.Threshold) {
		st.Locked = true
		st.Until = *u.LockedUntil
	}
	return st
}

// LockoutGuard applies LockoutPolicy against the credential store.
type LockoutGuard struct {
	Policy LockoutPolicy
	Store  service.IdentityStore
}

// Check returns a *domain.LockedError while the identity is locked.
func (g *LockoutGuard) Check(u *domain.Identity, now time.Time) error {
	if st := g.Policy.Evaluate(u, now); st.Locked {
		return &domain.LockedError{Until: st.Until}
	}
	return nil
}

// RegisterFailure atomically counts one failed password check. locked reports
// whether this failure (re)armed the lock; failures racing an active lock
// are counted but do not report it again.
func (g *LockoutGuard) RegisterFailure(ctx context.Context, id domain.UserID, now time.Time) (attempts int, locked bool, until time.Time, err error) {
	until = now.Add(g.Policy.Duration).UTC().Truncate(time.Microsecond)
	u, armed, err := g.Store.RecordLoginFailure(ctx, id, g.Policy.Threshold, now, until)
	if err != nil {
		return 0, false, time.Time{}, err
	}
	return u.FailedLoginAttempts, armed, until, nil
}

// NeedsReset reports whether a successful login has counters to clear.
func (g *LockoutGuard) NeedsReset(u *domain.Identity) bool {
	return u.FailedLoginAttempts != 0 || u.Locked || u.LockedUntil != nil
}
