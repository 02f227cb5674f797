package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/expensetrack/expense-api/internal/models"
)

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "user_sessions:"
)

// RedisStore keeps the session table in a shared keyed store so multiple
// instances see the same sessions. Each entry lives under session:<token>
// with a TTL equal to the idle window, refreshed on Touch, so idle sessions
// fall out of the table on their own; an idle-expired token therefore reads
// as absent rather than stale. A per-user set indexes tokens for
// ListByUser/DeleteByUser.
type RedisStore struct {
	client *redis.Client
	idle   time.Duration
}

// NewRedisStore wraps the provided client.
func NewRedisStore(client *redis.Client, idleTimeout time.Duration) *RedisStore {
	if idleTimeout <= 0 {
		idleTimeout = 24 * time.Hour
	}
	return &RedisStore{client: client, idle: idleTimeout}
}

// Put inserts or replaces the entry for the session's token.
func (r *RedisStore) Put(ctx context.Context, s *models.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+s.Token, payload, r.idle)
	pipe.SAdd(ctx, userIndexPrefix+s.UserID, s.Token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get returns the entry for the token, or ErrNotFound.
func (r *RedisStore) Get(ctx context.Context, token string) (*models.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetch session: %w", err)
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

// touchScript rewrites the activity timestamp and refreshes the idle TTL in one
// server-side step, so concurrent validations of the same token cannot
// interleave a read-modify-write and lose an update.
var touchScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
	return 0
end
local entry = cjson.decode(raw)
entry['last_activity'] = ARGV[1]
redis.call('SET', KEYS[1], cjson.encode(entry), 'PX', ARGV[2])
return 1
`)

// Touch refreshes the last-activity timestamp and the idle TTL.
func (r *RedisStore) Touch(ctx context.Context, token string, at time.Time) error {
	n, err := touchScript.Run(ctx, r.client,
		[]string{sessionKeyPrefix + token},
		at.UTC().Format(time.RFC3339Nano),
		r.idle.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the entry if present and reports whether one was removed.
func (r *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	s, err := r.Get(ctx, token)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, sessionKeyPrefix+token)
	pipe.SRem(ctx, userIndexPrefix+s.UserID, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return del.Val() > 0, nil
}

// ListByUser returns every live session owned by the user, pruning index
// entries whose session key has already idled out.
func (r *RedisStore) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	tokens, err := r.client.SMembers(ctx, userIndexPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	var out []models.Session
	for _, token := range tokens {
		s, err := r.Get(ctx, token)
		if err != nil {
			if err == ErrNotFound {
				_ = r.client.SRem(ctx, userIndexPrefix+userID, token).Err()
				continue
			}
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// DeleteByUser removes every session owned by the user.
func (r *RedisStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tokens, err := r.client.SMembers(ctx, userIndexPrefix+userID).Result()
	if err != nil {
		return 0, fmt.Errorf("list user sessions: %w", err)
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(tokens))
	for _, token := range tokens {
		keys = append(keys, sessionKeyPrefix+token)
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.Del(ctx, userIndexPrefix+userID)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	return len(tokens), nil
}
