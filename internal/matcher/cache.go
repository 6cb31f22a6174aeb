package matcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"orakle/internal/config"
)

// EmbeddingCache is the per-string embedding cache §4.1 requires, shaped
// after evolving.go's in-process map-plus-mutex cache, with an optional
// Redis tier added so multiple orakled replicas sharing one matcher avoid
// re-embedding the same skill descriptions and queries.
type EmbeddingCache struct {
	mu    sync.RWMutex
	local map[string][]float32
	ttl   time.Duration
	redis *redis.Client
}

// NewEmbeddingCache builds a cache. If redisCfg.Addr is empty only the
// in-process tier is used.
func NewEmbeddingCache(ttl time.Duration, redisCfg config.RedisConfig) *EmbeddingCache {
	c := &EmbeddingCache{local: make(map[string][]float32), ttl: ttl}
	if redisCfg.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisCfg.Addr, Password: redisCfg.Password, DB: redisCfg.DB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("matcher: redis embedding cache unreachable, using in-process tier only")
		} else {
			c.redis = client
		}
	}
	return c
}

func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	v, ok := c.local[text]
	c.mu.RUnlock()
	if ok {
		return v, true
	}

	if c.redis == nil {
		return nil, false
	}
	val, err := c.redis.Get(context.Background(), redisEmbedKey(text)).Result()
	if err != nil {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(val), &vec); err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.local[text] = vec
	c.mu.Unlock()
	return vec, true
}

func (c *EmbeddingCache) Set(text string, vec []float32) {
	c.mu.Lock()
	c.local[text] = vec
	c.mu.Unlock()

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return
	}
	ttl := c.ttl
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := c.redis.Set(context.Background(), redisEmbedKey(text), data, ttl).Err(); err != nil {
		log.Debug().Err(err).Msg("matcher: redis embedding cache set failed")
	}
}

func redisEmbedKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "orakle:matcher:embedding:" + hex.EncodeToString(sum[:])
}
