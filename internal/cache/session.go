package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"moff.io/wallet-shell/internal/walletconnect"
	"moff.io/wallet-shell/pkg/errors"
)

const sessionKeyPrefix = "wallet_shell:session:"

// SessionStore 将wallet connect会话保存在redis，过期时间与会话一致
type SessionStore struct {
	client redis.Cmdable
}

func NewSessionStore(client redis.Cmdable) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(name string) string {
	return sessionKeyPrefix + name
}

func (s *SessionStore) Save(ctx context.Context, name string, session *walletconnect.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return errors.Wrap(err, "marshal session")
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, sessionKey(name), data, ttl).Err(); err != nil {
		return errors.WrapAndReport(err, "save session to redis")
	}
	return nil
}

func (s *SessionStore) Load(ctx context.Context, name string) (*walletconnect.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapAndReport(err, "load session from redis")
	}
	var session walletconnect.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.Wrapf(err, "unmarshal session %v", name)
	}
	return &session, nil
}

func (s *SessionStore) Delete(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, sessionKey(name)).Err(); err != nil {
		return errors.WrapAndReport(err, "delete session from redis")
	}
	return nil
}
