package store

import (
	"context"
	"errors"

	"authority/internal/domain"

	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{DB: db} }

// AutoMigrate creates or updates the tables this service owns.
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.DB.WithContext(ctx).AutoMigrate(
		&domain.Identity{},
		&domain.ProviderLink{},
		&domain.AuditLog{},
	)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrAlreadyExists
	default:
		return err
	}
}
