package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"authority/internal/domain"
	"authority/internal/service"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix   = "authority:mfa"
	maxWatchRetries = 4
)

type challengeRecord struct {
	service.MFAChallenge
	Failures int `json:"failures"`
}

// ChallengeStore keeps pending MFA challenges in Redis under a TTL. Failure
// counting uses WATCH so concurrent wrong codes are all counted.
type ChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChallengeStore(client redis.UniversalClient, prefix string) *ChallengeStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &ChallengeStore{redis: client, prefix: prefix}
}

func (s *ChallengeStore) key(id string) string { return s.prefix + ":" + id }

func (s *ChallengeStore) Save(ctx context.Context, ch service.MFAChallenge, ttl time.Duration) error {
	data, err := json.Marshal(challengeRecord{MFAChallenge: ch})
	if err != nil {
		return err
	}
	// NX: an id is never reused.
	ok, err := s.redis.SetNX(ctx, s.key(ch.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	if !ok {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (s *ChallengeStore) Get(ctx context.Context, id string) (*service.MFAChallenge, error) {
	rec, err := s.load(ctx, s.redis, id)
	if err != nil {
		return nil, err
	}
	return &rec.MFAChallenge, nil
}

func (s *ChallengeStore) RecordFailure(ctx context.Context, id string, maxFailures int) (int, error) {
	key := s.key(id)
	for i := 0; i < maxWatchRetries; i++ {
		remaining := 0
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := s.load(ctx, tx, id)
			if err != nil {
				return err
			}
			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			rec.Failures++
			remaining = maxFailures - rec.Failures
			if remaining <= 0 || ttl <= 0 {
				remaining = 0
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return remaining, nil
	}
	return 0, fmt.Errorf("record challenge failure: %w", domain.ErrConflict)
}

// Claim takes a short-lived marker next to the challenge. The marker expires
// on its own if the holder dies before releasing it.
func (s *ChallengeStore) Claim(ctx context.Context, id string, hold time.Duration) (func(), error) {
	key := s.key(id) + ":claim"
	ok, err := s.redis.SetNX(ctx, key, "1", hold).Result()
	if err != nil {
		return nil, fmt.Errorf("claim challenge: %w", err)
	}
	if !ok {
		return nil, domain.ErrConflict
	}
	return func() {
		_ = s.redis.Del(context.WithoutCancel(ctx), key).Err()
	}, nil
}

func (s *ChallengeStore) Consume(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *ChallengeStore) load(ctx context.Context, c redis.Cmdable, id string) (*challengeRecord, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	var rec challengeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &rec, nil
}
