package store

import (
	"context"
	"fmt"
	"time"

	"authority/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxUpdateRetries bounds the optimistic read-modify-write loop in Update.
const maxUpdateRetries = 8

type IdentityStore struct{ db *gorm.DB }

func (s *Store) Identities() *IdentityStore { return &IdentityStore{db: s.DB} }

func (is *IdentityStore) Create(ctx context.Context, u *domain.Identity) error {
	now := time.Now().UTC()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.Version == 0 {
		u.Version = 1
	}

	return is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Identity{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrAlreadyExists
		}
		if err := tx.Create(u).Error; err != nil {
			return translate(err)
		}
		return syncProviderLinks(tx, u)
	})
}

func (is *IdentityStore) GetByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	var u domain.Identity
	if err := is.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (is *IdentityStore) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	var u domain.Identity
	if err := is.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (is *IdentityStore) GetByProvider(ctx context.Context, provider, externalID string) (*domain.Identity, error) {
	var link domain.ProviderLink
	err := is.db.WithContext(ctx).
		First(&link, "provider = ? AND external_id = ?", provider, externalID).Error
	if err != nil {
		return nil, translate(err)
	}
	return is.GetByID(ctx, link.UserID)
}

// Update applies fn to the current record and writes it back only if nobody
// else wrote in between (version check). Lost races are retried with a fresh read.
func (is *IdentityStore) Update(ctx context.Context, id domain.UserID, fn func(u *domain.Identity) error) (*domain.Identity, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		var out *domain.Identity
		conflict := false

		err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var u domain.Identity
			if err := tx.First(&u, "id = ?", id).Error; err != nil {
				return translate(err)
			}
			prev := u.Version
			if err := fn(&u); err != nil {
				return err
			}
			u.Version = prev + 1
			u.UpdatedAt = time.Now().UTC()

			res := tx.Model(&u).
				Where("version = ?", prev).
				Select("*").
				Omit("id", "created_at").
				Updates(&u)
			if res.Error != nil {
				return translate(res.Error)
			}
			if res.RowsAffected == 0 {
				conflict = true
				return nil
			}
			if err := syncProviderLinks(tx, &u); err != nil {
				return err
			}
			out = &u
			return nil
		})
		if err != nil {
			return nil, err
		}
		if !conflict {
			return out, nil
		}
	}
	return nil, fmt.Errorf("update identity %s: %w", id, domain.ErrConflict)
}

// RecordLoginFailure counts one failed password check and, once the counter
// has reached threshold, locks the record until lockUntil. The lock is only
// armed when no lock is active at now; armed reports whether this call did it.
func (is *IdentityStore) RecordLoginFailure(ctx context.Context, id domain.UserID, threshold int, now, lockUntil time.Time) (u *domain.Identity, armed bool, err error) {
	err = is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Identity{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
				"version":               gorm.Expr("version + 1"),
				"updated_at":            time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		res = tx.Model(&domain.Identity{}).
			Where("id = ? AND failed_login_attempts >= ? AND (locked_until IS NULL OR locked_until <= ?)", id, threshold, now.UTC()).
			Updates(map[string]any{
				"locked":       true,
				"locked_until": lockUntil.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		armed = res.RowsAffected == 1

		var got domain.Identity
		if err := tx.First(&got, "id = ?", id).Error; err != nil {
			return err
		}
		u = &got
		return nil
	})
	if err != nil {
		return nil, false, translate(err)
	}
	return u, armed, nil
}

func syncProviderLinks(tx *gorm.DB, u *domain.Identity) error {
	for provider, p := range u.Providers {
		link := &domain.ProviderLink{
			Provider:   provider,
			ExternalID: p.ExternalID,
			UserID:     u.ID,
			CreatedAt:  time.Now().UTC(),
		}
		err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(link).Error
		if err != nil {
			return fmt.Errorf("link provider %s: %w", provider, err)
		}
	}
	return nil
}
