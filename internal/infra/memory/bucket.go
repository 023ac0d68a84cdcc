package memory

import (
	"context"
	"sync"

	"exam-service/internal/infra/blob"
)

// Bucket is an in-process blob.Bucket. Nothing survives a restart.
type Bucket struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBucket() *Bucket {
	return &Bucket{blobs: make(map[string][]byte)}
}

func (b *Bucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, blob.ErrNotExist
	}
	return append([]byte(nil), data...), nil
}

func (b *Bucket) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	b.blobs[key] = append([]byte(nil), data...)
	b.mu.Unlock()
	return nil
}

func (b *Bucket) Update(_ context.Context, key string, fn blob.UpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var current []byte
	if data, ok := b.blobs[key]; ok {
		current = append([]byte(nil), data...)
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	b.blobs[key] = append([]byte(nil), next...)
	return nil
}

func (b *Bucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	delete(b.blobs, key)
	b.mu.Unlock()
	return nil
}
