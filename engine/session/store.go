package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

const (
	// DefaultTTL keeps only active conversations around; every save
	// resets the expiry window.
	DefaultTTL = time.Hour

	defaultOpTimeout = 5 * time.Second
)

// Store is the persistence contract for conversation sessions.
//
// Load returns ErrSessionNotFound for a user with no session yet; that
// is a normal outcome, not a failure. Save persists the full session
// and resets the TTL. SetInstruction updates only the active persona
// text, creating an empty-history session when none exists, so an
// operator can redirect a live conversation without losing history.
type Store interface {
	Load(ctx context.Context, platform contractx.Platform, userID string) (*Session, error)
	Save(ctx context.Context, platform contractx.Platform, userID string, s *Session) error
	SetInstruction(ctx context.Context, platform contractx.Platform, userID, instruction string) error
	List(ctx context.Context, platform contractx.Platform) ([]string, error)
	Delete(ctx context.Context, platform contractx.Platform, userID string) error
}

// RedisConfig is read from the environment with the REDIS prefix.
type RedisConfig struct {
	Addr     string        `split_words:"true" default:"localhost:6379"`
	Password string        `split_words:"true"`
	DB       int           `split_words:"true" default:"0"`
	Timeout  time.Duration `split_words:"true" default:"5s"`
}

// StoreOption customizes a RedisStore.
type StoreOption func(*RedisStore)

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithOpTimeout(d time.Duration) StoreOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// RedisStore persists sessions in Redis under "<platform>_session:<userID>".
type RedisStore struct {
	client    redis.UniversalClient
	ttl       time.Duration
	opTimeout time.Duration
}

func NewRedisStore(client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	store := &RedisStore{
		client:    client,
		ttl:       DefaultTTL,
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// NewRedisClient builds a go-redis client from config.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
}

func sessionKey(platform contractx.Platform, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is empty", contractx.ErrValidation)
	}
	if strings.TrimSpace(string(platform)) == "" {
		return "", fmt.Errorf("%w: platform is empty", contractx.ErrValidation)
	}
	return string(platform) + "_session:" + userID, nil
}

func (s *RedisStore) Load(ctx context.Context, platform contractx.Platform, userID string) (*Session, error) {
	key, err := sessionKey(platform, userID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, contractx.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", key, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", key, err)
	}
	return &sess, nil
}

func (s *RedisStore) Save(ctx context.Context, platform contractx.Platform, userID string, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("%w: session is nil", contractx.ErrValidation)
	}
	key, err := sessionKey(platform, userID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetInstruction(ctx context.Context, platform contractx.Platform, userID, instruction string) error {
	sess, err := s.Load(ctx, platform, userID)
	if errors.Is(err, contractx.ErrSessionNotFound) {
		sess = New(instruction)
	} else if err != nil {
		return err
	} else {
		sess.SystemInstruction = instruction
	}
	return s.Save(ctx, platform, userID, sess)
}

func (s *RedisStore) List(ctx context.Context, platform contractx.Platform) ([]string, error) {
	prefix := string(platform) + "_session:"

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	var (
		ids    []string
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("list sessions for %s: %w", platform, err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ids, nil
}

func (s *RedisStore) Delete(ctx context.Context, platform contractx.Platform, userID string) error {
	key, err := sessionKey(platform, userID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", key, err)
	}
	return nil
}
