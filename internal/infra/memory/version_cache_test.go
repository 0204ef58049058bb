package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"examprep-service/internal/domain"
)

type countingLoader struct {
	versions map[string]domain.QuizVersion
	calls    atomic.Int32
	delay    time.Duration
}

func (l *countingLoader) GetQuizVersion(_ context.Context, id string) (domain.QuizVersion, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	v, ok := l.versions[id]
	if !ok {
		return domain.QuizVersion{}, domain.ErrQuizVersionNotFound
	}
	return v, nil
}

func sampleVersion() domain.QuizVersion {
	return domain.QuizVersion{
		ID:             "qv-1",
		QuizID:         "quiz-1",
		SequenceNumber: 1,
		Snapshot:       domain.QuizSnapshot{QuizID: "quiz-1", Title: "Algebra"},
	}
}

func TestVersionCacheCaches(t *testing.T) {
	loader := &countingLoader{versions: map[string]domain.QuizVersion{"qv-1": sampleVersion()}}
	cache := NewVersionCache(loader, time.Minute)

	if _, err := cache.GetQuizVersion(context.Background(), "qv-1"); err != nil {
		t.Fatalf("get version: %v", err)
	}
	if _, err := cache.GetQuizVersion(context.Background(), "qv-1"); err != nil {
		t.Fatalf("get version 2: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls.Load())
	}
}

func TestVersionCacheExpires(t *testing.T) {
	loader := &countingLoader{versions: map[string]domain.QuizVersion{"qv-1": sampleVersion()}}
	cache := NewVersionCache(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.clock = func() time.Time { return now }

	if _, err := cache.GetQuizVersion(context.Background(), "qv-1"); err != nil {
		t.Fatalf("get version: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetQuizVersion(context.Background(), "qv-1"); err != nil {
		t.Fatalf("get version after ttl: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls.Load())
	}
}

func TestVersionCacheCollapsesConcurrentMisses(t *testing.T) {
	loader := &countingLoader{versions: map[string]domain.QuizVersion{"qv-1": sampleVersion()}, delay: 20 * time.Millisecond}
	cache := NewVersionCache(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetQuizVersion(context.Background(), "qv-1"); err != nil {
				t.Errorf("get version: %v", err)
			}
		}()
	}
	wg.Wait()
	if loader.calls.Load() != 1 {
		t.Fatalf("expected a single load, got %d", loader.calls.Load())
	}
}

func TestVersionCacheDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{versions: map[string]domain.QuizVersion{}}
	cache := NewVersionCache(loader, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetQuizVersion(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizVersionNotFound) {
			t.Fatalf("expected ErrQuizVersionNotFound, got %v", err)
		}
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected errors to bypass the cache, got %d loads", loader.calls.Load())
	}
}
