package store

import (
	"context"
	"time"

	"authority/internal/domain"

	"github.com/google/uuid"
)

type AuditStore struct{ s *Store }

func (s *Store) Audit() *AuditStore { return &AuditStore{s: s} }

func (as *AuditStore) Create(ctx context.Context, entry *domain.AuditLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return as.s.DB.WithContext(ctx).Create(entry).Error
}

func (as *AuditStore) ListByUser(ctx context.Context, userID domain.UserID, limit int) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	err := as.s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}
