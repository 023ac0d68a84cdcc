package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"exam-service/internal/domain"
)

// ExamLoader fetches exams from the backing store.
type ExamLoader interface {
	GetExam(ctx context.Context, id string) (domain.Exam, error)
}

// ExamCache keeps exams in process memory with a jittered TTL.
type ExamCache struct {
	loader ExamLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedExam
	gens  map[string]uint64 // bumped by Forget
}

type cachedExam struct {
	exam      domain.Exam
	expiresAt time.Time
}

func NewExamCache(loader ExamLoader, ttl time.Duration) *ExamCache {
	return &ExamCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedExam),
		gens:   make(map[string]uint64),
	}
}

func (c *ExamCache) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	if exam, ok := c.lookup(id); ok {
		return exam, nil
	}

	v, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if exam, ok := c.lookup(id); ok {
			return exam, nil
		}
		c.mu.RLock()
		gen := c.gens[id]
		c.mu.RUnlock()

		exam, err := c.loader.GetExam(ctx, id)
		if err != nil {
			return domain.Exam{}, err
		}
		expiresAt := c.clock().Add(c.ttlWithJitter())
		c.mu.Lock()
		// a Forget during the load means exam may already be stale
		if c.gens[id] == gen {
			c.cache[id] = cachedExam{exam: exam, expiresAt: expiresAt}
		}
		c.mu.Unlock()
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return v.(domain.Exam), nil
}

// Forget drops the cached copy of an exam.
func (c *ExamCache) Forget(_ context.Context, id string) error {
	c.mu.Lock()
	delete(c.cache, id)
	c.gens[id]++
	c.mu.Unlock()
	c.sf.Forget(id)
	return nil
}

func (c *ExamCache) lookup(id string) (domain.Exam, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Exam{}, false
	}
	return entry.exam, true
}

func (c *ExamCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% extra so entries loaded together do not expire together
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
