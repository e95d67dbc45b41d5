package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisStore implements Store on redis. All keys of one browser session share
// a prefix, and change events travel over a pub/sub channel under the same
// prefix, so several gateway replicas serving the same browser observe each
// other's writes. This is the cross-tab storage event, one level up.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	sessionTTL time.Duration
}

// NewRedisStore creates a store from a redis URL. The prefix should be the
// browser session id.
func NewRedisStore(redisURL, prefix string, sessionTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, prefix, sessionTTL), nil
}

// NewRedisStoreWithClient creates a store from an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, sessionTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, sessionTTL: sessionTTL}
}

func (s *RedisStore) key(scope Scope, key string) string {
	return fmt.Sprintf("portal:%s:%s:%s", s.prefix, scope, key)
}

func (s *RedisStore) eventChannel() string {
	return fmt.Sprintf("portal:%s:events", s.prefix)
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, scope Scope, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(scope, key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage get: %w", err)
	}
	return v, true, nil
}

// Set implements Store.Set. Session-scoped entries expire with the session
// TTL; other scopes persist until deleted.
func (s *RedisStore) Set(ctx context.Context, scope Scope, key, value string) error {
	var ttl time.Duration
	if scope == ScopeSession {
		ttl = s.sessionTTL
	}
	if err := s.client.Set(ctx, s.key(scope, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("storage set: %w", err)
	}
	s.publish(ctx, Event{Scope: scope, Key: key})
	return nil
}

// Delete implements Store.Delete.
func (s *RedisStore) Delete(ctx context.Context, scope Scope, key string) error {
	if err := s.client.Del(ctx, s.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("storage delete: %w", err)
	}
	s.publish(ctx, Event{Scope: scope, Key: key})
	return nil
}

// Keys implements Store.Keys.
func (s *RedisStore) Keys(ctx context.Context, scope Scope) ([]string, error) {
	pattern := s.key(scope, "*")
	stripPrefix := strings.TrimSuffix(pattern, "*")

	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), stripPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("storage keys: %w", err)
	}
	return keys, nil
}

// Watch implements Store.Watch via pub/sub on the session's event channel.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Event, func(), error) {
	pubsub := s.client.Subscribe(ctx, s.eventChannel())

	// Force the subscription before returning so callers never miss events
	// written right after Watch.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("storage watch: %w", err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("storage: malformed event payload")
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}

// Close implements Store.Close. The underlying client may be shared between
// sessions, so only this store's view is released.
func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) publish(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.client.Publish(ctx, s.eventChannel(), payload).Err(); err != nil {
		log.Debug().Err(err).Msg("storage: event publish failed")
	}
}
