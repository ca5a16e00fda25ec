package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/memberhub/backend/internal/models"
)

const redisKeyPrefix = "session:"

// RedisStore keeps the active session under session:<account id>. SET is a
// single overwrite, which gives the same last-writer-wins semantics as the
// Postgres upsert.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ Store = (*RedisStore)(nil)

func redisKey(accountID uuid.UUID) string {
	return redisKeyPrefix + accountID.String()
}

func (s *RedisStore) Put(ctx context.Context, sess models.Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(sess.AccountID), b, 0).Err()
}

func (s *RedisStore) Get(ctx context.Context, accountID uuid.UUID) (*models.Session, error) {
	b, err := s.client.Get(ctx, redisKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess models.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, accountID uuid.UUID) error {
	return s.client.Del(ctx, redisKey(accountID)).Err()
}
