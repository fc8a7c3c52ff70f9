package impl

import (
	"context"
	"errors"
	"log/slog"

	"authority/internal/domain"
	"authority/internal/dto"
	"authority/internal/events"
	"authority/internal/netutil"
	"authority/internal/observability/logging"
	"authority/internal/observability/metrics"
	"authority/internal/service"
)

var errNoChange = errors.New("no change")

// SessionRegistryImpl keeps the bounded session list embedded in each identity.
type SessionRegistryImpl struct {
	Store  service.IdentityStore
	Limit  int
	Events service.EventPublisher
	Logger *slog.Logger
	Clock  Clock
}

func NewSessionRegistry(st service.IdentityStore, limit int, pub service.EventPublisher, logger *slog.Logger) *SessionRegistryImpl {
	if limit <= 0 {
		limit = 10
	}
	return &SessionRegistryImpl{Store: st, Limit: limit, Events: pub, Logger: logger}
}

// Add appends s, evicting the oldest entries beyond Limit.
func (r *SessionRegistryImpl) Add(ctx context.Context, userID domain.UserID, s domain.Session) error {
	var evicted []domain.Session
	_, err := r.Store.Update(ctx, userID, func(u *domain.Identity) error {
		evicted = u.AddSession(s, r.Limit)
		return nil
	})
	if err != nil {
		return err
	}
	if n := len(evicted); n > 0 {
		r.revoked(ctx, userID, "evicted", evicted[0].ID, n)
	}
	return nil
}

// List returns every session newest first, with masked addresses and the
// caller's own session flagged.
func (r *SessionRegistryImpl) List(ctx context.Context, userID domain.UserID, currentTokenID string) ([]dto.SessionResponse, error) {
	u, err := r.Store.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.SessionResponse, 0, len(u.Sessions))
	for i := len(u.Sessions) - 1; i >= 0; i-- {
		s := u.Sessions[i]
		out = append(out, dto.SessionResponse{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			IPAddress:  netutil.MaskIP(s.IPAddress),
			CreatedAt:  s.CreatedAt,
			LastActive: s.LastActive,
			IsCurrent:  currentTokenID != "" && s.TokenID == currentTokenID,
		})
	}
	return out, nil
}

// Revoke removes one session other than the caller's own.
func (r *SessionRegistryImpl) Revoke(ctx context.Context, userID domain.UserID, sessionID, currentTokenID string) error {
	_, err := r.Store.Update(ctx, userID, func(u *domain.Identity) error {
		s, ok := u.SessionByID(sessionID)
		if !ok {
			return domain.ErrSessionNotFound
		}
		if currentTokenID != "" && s.TokenID == currentTokenID {
			return domain.ErrCannotRevokeCurrent
		}
		u.RemoveSession(sessionID)
		return nil
	})
	if err != nil {
		return err
	}
	r.revoked(ctx, userID, "one", sessionID, 1)
	return nil
}

// RevokeAll keeps only the session bound to currentTokenID.
func (r *SessionRegistryImpl) RevokeAll(ctx context.Context, userID domain.UserID, currentTokenID string) (int, error) {
	var n int
	_, err := r.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if n = u.RetainSession(currentTokenID); n == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return 0, err
	}
	if n > 0 {
		r.revoked(ctx, userID, "others", "", n)
	}
	return n, nil
}

// Remove drops the session bound to tokenID, if any. Used on logout.
func (r *SessionRegistryImpl) Remove(ctx context.Context, userID domain.UserID, tokenID string) error {
	var removed domain.Session
	_, err := r.Store.Update(ctx, userID, func(u *domain.Identity) error {
		s, ok := u.SessionByTokenID(tokenID)
		if !ok {
			return errNoChange
		}
		removed = s
		u.RemoveSessionByTokenID(tokenID)
		return nil
	})
	switch {
	case errors.Is(err, errNoChange), errors.Is(err, domain.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	r.revoked(ctx, userID, "logout", removed.ID, 1)
	return nil
}

// Touch marks the session bound to tokenID as active now.
func (r *SessionRegistryImpl) Touch(ctx context.Context, userID domain.UserID, tokenID, ip string) error {
	now := r.Clock.now()
	ip = normalizeIP(ip)
	_, err := r.Store.Update(ctx, userID, func(u *domain.Identity) error {
		if !u.TouchSession(tokenID, ip, now) {
			return domain.ErrSessionNotFound
		}
		return nil
	})
	return err
}

func (r *SessionRegistryImpl) revoked(ctx context.Context, userID domain.UserID, scope, sessionID string, n int) {
	metrics.SessionsRevokedTotal.WithLabelValues(scope).Add(float64(n))
	logging.FromContext(ctx, r.Logger).Info("sessions revoked", "user_id", userID, "scope", scope, "count", n)
	if r.Events != nil {
		r.Events.Publish(ctx, events.SessionRevoked{
			SessionID: sessionID,
			UserID:    userID.String(),
			Scope:     scope,
			Count:     n,
			At:        r.Clock.now(),
		})
	}
}
