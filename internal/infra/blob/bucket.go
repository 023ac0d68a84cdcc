// Package blob keeps exams, results and the client session as three JSON
// blobs in a flat key-value bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNotExist is returned by a Bucket when a key has never been written.
	ErrNotExist = errors.New("blob does not exist")
	// ErrConflict is returned by Update when concurrent writers kept winning.
	ErrConflict = errors.New("blob changed concurrently")
)

// UpdateFunc receives the current blob (nil when absent) and returns its
// replacement. It may run more than once and must not keep side effects
// from an earlier attempt. An error aborts the update without writing.
type UpdateFunc func(current []byte) ([]byte, error)

// Bucket is a flat key-value store of opaque blobs. Update is an atomic
// read-modify-write of one key, also against writers in other processes
// sharing the same bucket.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
}

// FSBucket stores each blob as a file under a base directory. Updates are
// serialized within the process only; the directory belongs to one instance.
type FSBucket struct {
	base string
	mu   sync.Mutex
}

func NewFSBucket(base string) (*FSBucket, error) {
	if base == "" {
		base = "./data"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &FSBucket{base: base}, nil
}

func (b *FSBucket) Get(_ context.Context, key string) ([]byte, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotExist
	}
	return data, err
}

// Put replaces the blob atomically via a temp file and rename.
func (b *FSBucket) Put(ctx context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(key, data)
}

func (b *FSBucket) Update(ctx context.Context, key string, fn UpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotExist) {
		current = nil
	} else if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return b.write(key, next)
}

func (b *FSBucket) write(key string, data []byte) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.base, ".blob-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (b *FSBucket) Delete(_ context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *FSBucket) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(b.base, key+".json"), nil
}
