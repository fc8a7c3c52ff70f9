package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"authority/internal/domain"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionIdentities = "identities"
	maxUpdateRetries     = 8
)

// Store keeps each identity as one document; sessions, backup codes and
// provider links are embedded, so every mutation is a single-document write.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

func Connect(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(uri),
		options.Client().SetMaxPoolSize(50),
		options.Client().SetMaxConnIdleTime(5*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client.Database(database), logger), nil
}

// New wraps an already connected database.
func New(db *mongo.Database, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: db.Client(), db: db, logger: logger}
}

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) identities() *mongo.Collection { return s.db.Collection(collectionIdentities) }

// EnsureIndexes creates the unique email index and one sparse index per
// OAuth provider on its external id.
func (s *Store) EnsureIndexes(ctx context.Context, providers []string) error {
	models := []mongo.IndexModel{{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("ux_identities_email").SetUnique(true),
	}}
	for _, p := range providers {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: providerField(p), Value: 1}},
			Options: options.Index().SetName("ix_provider_" + p).SetSparse(true),
		})
	}
	_, err := s.identities().Indexes().CreateMany(ctx, models)
	return err
}

func (s *Store) Create(ctx context.Context, u *domain.Identity) error {
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
	_, err := s.identities().InsertOne(ctx, toDoc(u))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetByID(ctx context.Context, id domain.UserID) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) GetByProvider(ctx context.Context, provider, externalID string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{providerField(provider): externalID})
}

// Update is a compare-and-swap on the version field, retried on conflict.
func (s *Store) Update(ctx context.Context, id domain.UserID, fn func(u *domain.Identity) error) (*domain.Identity, error) {
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		u, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		prev := u.Version
		if err := fn(u); err != nil {
			return nil, err
		}
		u.Version = prev + 1
		u.UpdatedAt = time.Now().UTC()

		res, err := s.identities().ReplaceOne(ctx, bson.M{"_id": id.String(), "version": prev}, toDoc(u))
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrAlreadyExists
		}
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 1 {
			return u, nil
		}
		s.logger.Debug("identity update conflict, retrying", "user_id", id, "attempt", attempt)
	}
	return nil, fmt.Errorf("update identity %s: %w", id, domain.ErrConflict)
}

// RecordLoginFailure increments the counter, then arms the lock with a
// conditional update that only matches while no lock is active at now.
// Concurrent failures are all counted and exactly one of them arms.
func (s *Store) RecordLoginFailure(ctx context.Context, id domain.UserID, threshold int, now, lockUntil time.Time) (*domain.Identity, bool, error) {
	var doc identityDoc
	err := s.identities().FindOneAndUpdate(ctx,
		bson.M{"_id": id.String()},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "failedLoginAttempts", Value: 1}, {Key: "version", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, domain.ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	u, err := fromDoc(&doc)
	if err != nil {
		return nil, false, err
	}
	if u.FailedLoginAttempts < threshold {
		return u, false, nil
	}

	until := lockUntil.UTC()
	res, err := s.identities().UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: id.String()},
			{Key: "failedLoginAttempts", Value: bson.D{{Key: "$gte", Value: threshold}}},
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "lockedUntil", Value: nil}},
				bson.D{{Key: "lockedUntil", Value: bson.D{{Key: "$lte", Value: now.UTC()}}}},
			}},
		},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: "locked", Value: true}, {Key: "lockedUntil", Value: until}}},
			{Key: "$inc", Value: bson.D{{Key: "version", Value: 1}}},
		},
	)
	if err != nil {
		return nil, false, err
	}
	if res.MatchedCount == 0 {
		return u, false, nil
	}
	u.Locked = true
	u.LockedUntil = &until
	u.Version++
	return u, true, nil
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*domain.Identity, error) {
	var doc identityDoc
	err := s.identities().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromDoc(&doc)
}

func providerField(provider string) string {
	return "providers." + provider + ".externalId"
}
