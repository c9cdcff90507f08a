package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "fulfillment:allocation-session:"

// Store keeps allocation sessions alive across stateless requests. Sessions
// are JSON blobs with a TTL; an expired key and a cancelled session look the
// same to the caller. The TTL is a hard upper bound on session lifetime,
// independent of the softer staleness threshold.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a session store with the given hard TTL
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Save persists the session under its ID, resetting the TTL
func (s *Store) Save(ctx context.Context, session *Session) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.rdb.Set(ctx, sessionKeyPrefix+session.ID, body, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Get loads a session by ID. Expired or unknown sessions are NotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	body, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, errors.NotFound("allocation session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// Delete discards a session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}
