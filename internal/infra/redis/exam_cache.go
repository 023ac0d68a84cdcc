package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"exam-service/internal/domain"
)

// ExamLoader fetches exams from the backing store.
type ExamLoader interface {
	GetExam(ctx context.Context, id string) (domain.Exam, error)
}

// ExamCache keeps each exam as a JSON string under exam:{id} and falls back
// to the loader on a miss. Redis errors degrade to loader reads.
type ExamCache struct {
	client *redis.Client
	loader ExamLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewExamCache(client *redis.Client, loader ExamLoader, ttl time.Duration) *ExamCache {
	return &ExamCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ExamCache) GetExam(ctx context.Context, id string) (domain.Exam, error) {
	if exam, ok := c.cached(ctx, id); ok {
		return exam, nil
	}

	v, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// another caller may have filled it meanwhile
		if exam, ok := c.cached(ctx, id); ok {
			return exam, nil
		}
		exam, err := c.loader.GetExam(ctx, id)
		if err != nil {
			return domain.Exam{}, err
		}
		if data, err := json.Marshal(exam); err == nil {
			_ = c.client.Set(ctx, c.key(id), data, c.ttlWithJitter()).Err()
		}
		return exam, nil
	})
	if err != nil {
		return domain.Exam{}, err
	}
	return v.(domain.Exam), nil
}

func (c *ExamCache) Forget(ctx context.Context, id string) error {
	c.sf.Forget(id)
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *ExamCache) cached(ctx context.Context, id string) (domain.Exam, bool) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return domain.Exam{}, false
	}
	var exam domain.Exam
	if err := json.Unmarshal(data, &exam); err != nil {
		return domain.Exam{}, false
	}
	return exam, true
}

func (c *ExamCache) key(id string) string {
	return "exam:" + id
}

func (c *ExamCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
