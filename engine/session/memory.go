package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	contractx "github.com/nexusbot/nexus-relay/engine/contract"
)

// MemoryStore keeps sessions in process memory with the same TTL
// semantics as the Redis store. It is meant for tests and local runs;
// production session state must not live in a process-wide map.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	sessions map[string]memoryEntry

	now func() time.Time
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(ctx context.Context, platform contractx.Platform, userID string) (*Session, error) {
	key, err := sessionKey(platform, userID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.sessions[key]
	s.mu.RUnlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, contractx.ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, platform contractx.Platform, userID string, sess *Session) error {
	if sess == nil {
		return errors.New("session is nil")
	}
	key, err := sessionKey(platform, userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = memoryEntry{
		session:   sess.Clone(),
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) SetInstruction(ctx context.Context, platform contractx.Platform, userID, instruction string) error {
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

func (s *MemoryStore) List(ctx context.Context, platform contractx.Platform) ([]string, error) {
	prefix := string(platform) + "_session:"

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	now := s.now()
	for key, entry := range s.sessions {
		if !strings.HasPrefix(key, prefix) || now.After(entry.expiresAt) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(key, prefix))
	}
	return ids, nil
}

func (s *MemoryStore) Delete(ctx context.Context, platform contractx.Platform, userID string) error {
	key, err := sessionKey(platform, userID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}
