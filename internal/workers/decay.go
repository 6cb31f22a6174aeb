package workers

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DecayEngine is the subset of internal/memory.Engine the Decay worker
// needs; declared locally so this package doesn't import memory just to
// name one method.
type DecayEngine interface {
	ApplyDecay(ctx context.Context, contextID string) error
}

// DecayWorker is the single-slot, single-flight executor of §5: at most
// one decay pass runs per context at a time in this process
// (golang.org/x/sync/singleflight), with an optional Redis `SET NX` lock
// coalescing concurrent passes across replicas of the engine.
type DecayWorker struct {
	mu      sync.Mutex
	pending map[string]bool

	wake   chan string
	engine DecayEngine
	redis  *redis.Client
	group  singleflight.Group
}

func NewDecayWorker(engine DecayEngine, redisClient *redis.Client) *DecayWorker {
	return &DecayWorker{
		pending: make(map[string]bool),
		wake:    make(chan string, 64),
		engine:  engine,
		redis:   redisClient,
	}
}

// Submit requests a decay pass for contextID. If one is already queued
// for that context it is a no-op (single-slot per context).
func (w *DecayWorker) Submit(contextID string) {
	w.mu.Lock()
	already := w.pending[contextID]
	w.pending[contextID] = true
	w.mu.Unlock()
	if already {
		return
	}
	select {
	case w.wake <- contextID:
	default:
		log.Warn().Str("context", contextID).Msg("workers: decay queue full, dropping request")
		w.mu.Lock()
		delete(w.pending, contextID)
		w.mu.Unlock()
	}
}

func (w *DecayWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case contextID := <-w.wake:
			w.processOne(ctx, contextID)
		}
	}
}

func (w *DecayWorker) processOne(ctx context.Context, contextID string) {
	defer func() {
		w.mu.Lock()
		delete(w.pending, contextID)
		w.mu.Unlock()
	}()

	// singleflight collapses a burst of Submit calls for the same
	// context that land before the previous pass finishes; the Redis
	// lock (when configured) extends that guarantee across replicas.
	_, err, _ := w.group.Do(contextID, func() (any, error) {
		if w.redis != nil {
			acquired, lockErr := w.acquireLock(ctx, contextID)
			if lockErr != nil {
				return nil, lockErr
			}
			if !acquired {
				log.Debug().Str("context", contextID).Msg("workers: decay already running on another replica, skipping")
				return nil, nil
			}
			defer w.releaseLock(ctx, contextID)
		}
		return nil, w.engine.ApplyDecay(ctx, contextID)
	})
	if err != nil {
		log.Warn().Err(err).Str("context", contextID).Msg("workers: decay pass failed")
	}
}

func (w *DecayWorker) acquireLock(ctx context.Context, contextID string) (bool, error) {
	ok, err := w.redis.SetNX(ctx, decayLockKey(contextID), "1", 2*time.Minute).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (w *DecayWorker) releaseLock(ctx context.Context, contextID string) {
	if err := w.redis.Del(ctx, decayLockKey(contextID)).Err(); err != nil {
		log.Debug().Err(err).Str("context", contextID).Msg("workers: decay lock release failed")
	}
}

func decayLockKey(contextID string) string {
	return "orakle:decay:lock:" + contextID
}
