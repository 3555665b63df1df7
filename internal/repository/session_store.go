package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beaconmeet/relay-server-go/internal/model"
	appredis "github.com/beaconmeet/relay-server-go/internal/redis"
)

// SessionStore keeps whole session records under their code with a TTL.
// A missing or expired record is reported as (nil, nil).
type SessionStore interface {
	Get(ctx context.Context, code string) (*model.Session, error)
	Put(ctx context.Context, session *model.Session, ttl time.Duration) error
	// Create stores session only if no record exists under its code.
	Create(ctx context.Context, session *model.Session, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, code string) error
	Exists(ctx context.Context, code string) (bool, error)
}

type redisSessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) SessionStore {
	return &redisSessionStore{client: client}
}

func (s *redisSessionStore) Get(ctx context.Context, code string) (*model.Session, error) {
	data, err := s.client.Get(ctx, appredis.SessionKey(code)).Bytes()
	if isMissing(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *redisSessionStore) Put(ctx context.Context, session *model.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return s.Delete(ctx, session.Code)
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if err := s.client.Set(ctx, appredis.SessionKey(session.Code), data, ttl).Err(); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Create(ctx context.Context, session *model.Session, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return false, fmt.Errorf("encode session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, appredis.SessionKey(session.Code), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}
	return ok, nil
}

func (s *redisSessionStore) Delete(ctx context.Context, code string) error {
	if err := s.client.Del(ctx, appredis.SessionKey(code)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *redisSessionStore) Exists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, appredis.SessionKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}
