package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"examprep-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// VersionLoader fetches a quiz version from the backing store.
type VersionLoader interface {
	GetQuizVersion(ctx context.Context, quizVersionID string) (domain.QuizVersion, error)
}

// VersionCache keeps quiz versions in process with a TTL. Versions never change once
// written, so the TTL only bounds memory, not staleness.
type VersionCache struct {
	loader VersionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedVersion
}

type cachedVersion struct {
	version   domain.QuizVersion
	expiresAt time.Time
}

func NewVersionCache(loader VersionLoader, ttl time.Duration) *VersionCache {
	return &VersionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedVersion),
	}
}

func (c *VersionCache) GetQuizVersion(ctx context.Context, id string) (domain.QuizVersion, error) {
	if v, ok := c.lookup(id); ok {
		return v, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if v, ok := c.lookup(id); ok {
			return v, nil
		}
		v, err := c.loader.GetQuizVersion(ctx, id)
		if err != nil {
			return domain.QuizVersion{}, err
		}
		c.mu.Lock()
		c.cache[id] = cachedVersion{version: v, expiresAt: c.clock().Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return domain.QuizVersion{}, err
	}
	return result.(domain.QuizVersion), nil
}

func (c *VersionCache) lookup(id string) (domain.QuizVersion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.QuizVersion{}, false
	}
	return entry.version, true
}

func (c *VersionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter spreads expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
