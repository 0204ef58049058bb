package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"examprep-service/internal/domain"
	"examprep-service/internal/logger"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// VersionLoader fetches a quiz version from the backing store.
type VersionLoader interface {
	GetQuizVersion(ctx context.Context, quizVersionID string) (domain.QuizVersion, error)
}

// VersionCache keeps immutable quiz versions in Redis as JSON and falls back to a loader
// on miss: GET quizversion:{id}. Cache failures degrade to the loader, never to an error.
type VersionCache struct {
	client *redis.Client
	loader VersionLoader
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewVersionCache(client *redis.Client, loader VersionLoader, ttl time.Duration, log *logger.Logger) *VersionCache {
	return &VersionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *VersionCache) GetQuizVersion(ctx context.Context, id string) (domain.QuizVersion, error) {
	if v, ok := c.lookup(ctx, id); ok {
		return v, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// another caller may have filled the key meanwhile
		if v, ok := c.lookup(ctx, id); ok {
			return v, nil
		}
		v, err := c.loader.GetQuizVersion(ctx, id)
		if err != nil {
			return domain.QuizVersion{}, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return domain.QuizVersion{}, err
		}
		if err := c.client.Set(ctx, c.key(id), raw, c.ttlWithJitter()).Err(); err != nil {
			c.log.Warn("cache quiz version", "quiz_version_id", id, "error", err)
		}
		return v, nil
	})
	if err != nil {
		return domain.QuizVersion{}, err
	}
	return result.(domain.QuizVersion), nil
}

func (c *VersionCache) lookup(ctx context.Context, id string) (domain.QuizVersion, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("read cached quiz version", "quiz_version_id", id, "error", err)
		}
		return domain.QuizVersion{}, false
	}
	var v domain.QuizVersion
	if err := json.Unmarshal(raw, &v); err != nil {
		c.log.Warn("decode cached quiz version", "quiz_version_id", id, "error", err)
		return domain.QuizVersion{}, false
	}
	return v, true
}

func (c *VersionCache) key(id string) string {
	return "quizversion:" + id
}

func (c *VersionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
