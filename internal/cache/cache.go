// cache — read-through кэш записей TokenStore в Redis.
package cache

//go:generate mockgen -source=cache.go -destination=../../mocks/cache.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrNonPositiveTTL — запись с истёкшим сроком не кэшируется.
var ErrNonPositiveTTL = errors.New("non-positive ttl")

// TokenEntry описывает данные, которые хранятся в Redis по хэшу токена.
type TokenEntry struct {
	UserID    int64
	Active    bool
	ExpiresAt time.Time
}

// TokenCache — минимальный контракт кэша записей TokenStore.
type TokenCache interface {
	// Get возвращает запись и признак её наличия в кэше.
	Get(ctx context.Context, kind models.TokenKind, hash string) (*TokenEntry, bool, error)
	// Set сохраняет запись с TTL (обычно ExpiresAt-now), перезаписывая прежнюю.
	Set(ctx context.Context, kind models.TokenKind, hash string, e *TokenEntry, ttl time.Duration) error
	// Fill сохраняет запись, только если ключа ещё нет; возвращает, была ли
	// запись сделана. Заполнение по промаху не должно затирать отметку отзыва.
	Fill(ctx context.Context, kind models.TokenKind, hash string, e *TokenEntry, ttl time.Duration) (bool, error)
	// Close закрывает клиент Redis.
	Close() error
}

// fillScript пишет hash и TTL атомарно и только при отсутствии ключа.
var fillScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("HSET", KEYS[1], "uid", ARGV[1], "act", ARGV[2], "exp", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой — используется "emenu:tok:".
func NewRedisCache(ctx context.Context, redisURL, prefix string) (TokenCache, error) {
	const op = "cache.NewRedisCache"

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return NewWithClient(rdb, prefix), nil
}

// NewWithClient оборачивает готовый клиент.
func NewWithClient(rdb *redis.Client, prefix string) TokenCache {
	if prefix == "" {
		prefix = "emenu:tok:"
	}

	return &redisCache{rdb: rdb, prefix: prefix}
}

func (c *redisCache) key(kind models.TokenKind, hash string) string {
	return c.prefix + string(kind) + ":" + hash
}

// Храним как Redis Hash с полями: uid, act (0/1), exp (unix).
func (c *redisCache) Get(ctx context.Context, kind models.TokenKind, hash string) (*TokenEntry, bool, error) {
	const op = "cache.Get"

	m, err := c.rdb.HGetAll(ctx, c.key(kind, hash)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, false, nil
	}

	uid, err := strconv.ParseInt(m["uid"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%s: uid: %w", op, err)
	}

	expUnix, err := strconv.ParseInt(m["exp"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("%s: exp: %w", op, err)
	}

	return &TokenEntry{
		UserID:    uid,
		Active:    m["act"] == "1",
		ExpiresAt: time.Unix(expUnix, 0).UTC(),
	}, true, nil
}

func (c *redisCache) Set(ctx context.Context, kind models.TokenKind, hash string, e *TokenEntry, ttl time.Duration) error {
	const op = "cache.Set"

	if ttl <= 0 {
		return fmt.Errorf("%s: %w", op, ErrNonPositiveTTL)
	}

	kv := map[string]string{
		"uid": strconv.FormatInt(e.UserID, 10),
		"act": boolTo01(e.Active),
		"exp": strconv.FormatInt(e.ExpiresAt.Unix(), 10),
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.key(kind, hash), kv)
	pipe.Expire(ctx, c.key(kind, hash), ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *redisCache) Fill(ctx context.Context, kind models.TokenKind, hash string, e *TokenEntry, ttl time.Duration) (bool, error) {
	const op = "cache.Fill"

	if ttl <= 0 {
		return false, fmt.Errorf("%s: %w", op, ErrNonPositiveTTL)
	}

	n, err := fillScript.Run(ctx, c.rdb, []string{c.key(kind, hash)},
		strconv.FormatInt(e.UserID, 10),
		boolTo01(e.Active),
		strconv.FormatInt(e.ExpiresAt.Unix(), 10),
		ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n == 1, nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

func boolTo01(b bool) string {
	if b {
		return "1"
	}

	return "0"
}
