package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"exam-service/internal/infra/blob"
)

const maxUpdateAttempts = 100

// Bucket stores blobs as plain Redis strings under prefix+key, without expiry.
// Instances sharing the Redis see each other's writes; Update is optimistic
// (WATCH/MULTI) so concurrent read-modify-writes never drop each other.
type Bucket struct {
	client *redis.Client
	prefix string
}

func NewBucket(client *redis.Client, prefix string) *Bucket {
	return &Bucket{client: client, prefix: prefix}
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, blob.ErrNotExist
	}
	return data, err
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	return b.client.Set(ctx, b.prefix+key, data, 0).Err()
}

// Update retries fn until its write lands without the key changing in
// between, or gives up with blob.ErrConflict.
func (b *Bucket) Update(ctx context.Context, key string, fn blob.UpdateFunc) error {
	k := b.prefix + key
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := b.client.Watch(ctx, txf, k)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		// lost the race; back off a little so the winners drain
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(rand.Intn(attempt+1)+1) * time.Millisecond):
		}
	}
	return fmt.Errorf("update %s: %w", key, blob.ErrConflict)
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.prefix+key).Err()
}
