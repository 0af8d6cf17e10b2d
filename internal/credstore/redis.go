package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/domain"
)

const (
	credentialTokenKey = "console:credential:token"
	credentialUserKey  = "console:credential:user"

	redisOpTimeout = 2 * time.Second
)

// RedisStore keeps the credential pair as two Redis keys, for deployments
// where the gateway profile lives in a shared cache instead of local disk.
// Both keys commit in one transaction so the pair stays consistent.
type RedisStore struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisStore creates a Redis-backed credential store.
func NewRedisStore(client *redis.Client, log *zap.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

// SetCredential persists both keys in one MULTI/EXEC. Missing arguments fail
// soft; a transport failure leaves whatever state Redis already held.
func (s *RedisStore) SetCredential(token string, user *domain.CachedUser) bool {
	if token == "" || user == nil {
		return false
	}
	data, err := json.Marshal(user)
	if err != nil {
		s.log.Warn("credential store: user record not serializable", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, credentialTokenKey, token, 0)
		pipe.Set(ctx, credentialUserKey, data, 0)
		return nil
	})
	if err != nil {
		s.log.Warn("credential store: redis write failed", zap.Error(err))
		return false
	}
	return true
}

// Token returns the stored bearer token. Misses and transport errors both
// degrade to absent.
func (s *RedisStore) Token() (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	token, err := s.client.Get(ctx, credentialTokenKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("credential store: redis read failed", zap.Error(err))
		}
		return "", false
	}
	return token, token != ""
}

// User returns the stored user record.
func (s *RedisStore) User() (*domain.CachedUser, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, credentialUserKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("credential store: redis read failed", zap.Error(err))
		}
		return nil, false
	}
	var user domain.CachedUser
	if err := json.Unmarshal(data, &user); err != nil {
		s.log.Warn("credential store: cached user undecodable", zap.Error(err))
		return nil, false
	}
	return &user, true
}

// Clear removes both keys. Idempotent.
func (s *RedisStore) Clear() {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, credentialTokenKey, credentialUserKey).Err(); err != nil {
		s.log.Warn("credential store: redis clear failed", zap.Error(err))
	}
}

// IsExpired reports expiry of the stored token, fail-closed.
func (s *RedisStore) IsExpired() bool {
	token, ok := s.Token()
	if !ok {
		return true
	}
	return tokenExpired(token)
}
