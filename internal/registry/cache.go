package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"orakle/internal/config"
)

// cacheEntry pairs a manifest snapshot with the content hash computed when
// it was fetched. Nothing compares that hash: an entry leaves the cache
// when its TTL expires or when Invalidate is called.
type cacheEntry struct {
	hash      string
	skills    []SkillDescriptor
	expiresAt time.Time
}

// CacheLayer fronts capabilities() with an in-process tier and an optional
// shared Redis tier, trimmed from internal/skills/cache_service.go's
// four-tier (local/Redis/S3/filesystem) lookup down to the two tiers that
// make sense for a remote HTTP manifest: there is no S3/filesystem source
// here, the manifest always comes over the wire.
type CacheLayer struct {
	mu    sync.RWMutex
	local map[string]cacheEntry
	ttl   time.Duration
	redis *redis.Client
}

// NewCacheLayer builds a cache layer. redisAddr may be empty, in which case
// only the in-process tier is used.
func NewCacheLayer(ttl time.Duration, redisCfg config.RedisConfig) *CacheLayer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cl := &CacheLayer{local: make(map[string]cacheEntry), ttl: ttl}
	if redisCfg.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisCfg.Addr, Password: redisCfg.Password, DB: redisCfg.DB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("registry: redis capability cache unreachable, using in-process tier only")
		} else {
			cl.redis = client
		}
	}
	return cl
}

// Get returns a cached manifest for server if still within its TTL,
// checking the in-process tier first and falling back to Redis so other
// engine replicas' fetches are reused.
func (c *CacheLayer) Get(server string) ([]SkillDescriptor, bool) {
	c.mu.RLock()
	entry, ok := c.local[server]
	c.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.skills, true
	}

	if c.redis == nil {
		return nil, false
	}
	val, err := c.redis.Get(context.Background(), redisCacheKey(server)).Result()
	if err != nil {
		return nil, false
	}
	var skills []SkillDescriptor
	if err := json.Unmarshal([]byte(val), &skills); err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.local[server] = cacheEntry{skills: skills, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return skills, true
}

// Set stores a freshly fetched manifest at both tiers, keyed by server,
// recording its content hash in the in-process entry.
func (c *CacheLayer) Set(server, hash string, skills []SkillDescriptor) {
	c.mu.Lock()
	c.local[server] = cacheEntry{hash: hash, skills: skills, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.redis == nil {
		return
	}
	data, err := json.Marshal(skills)
	if err != nil {
		return
	}
	if err := c.redis.Set(context.Background(), redisCacheKey(server), data, c.ttl).Err(); err != nil {
		log.Debug().Err(err).Str("server", server).Msg("registry: redis capability cache set failed")
	}
}

// Invalidate evicts server from both cache tiers. Client.Capabilities does
// not call it: a cached manifest is served until its TTL expires.
func (c *CacheLayer) Invalidate(server string) {
	c.mu.Lock()
	delete(c.local, server)
	c.mu.Unlock()
	if c.redis != nil {
		_ = c.redis.Del(context.Background(), redisCacheKey(server)).Err()
	}
}

func redisCacheKey(server string) string {
	return "orakle:registry:capabilities:" + server
}
