package cache

import (
	"context"
	"errors"
	"time"
)

// Provider defines the minimal byte-store operations needed by the preview store.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// ErrClosed is returned by a provider after Close.
var ErrClosed = errors.New("cache closed")
