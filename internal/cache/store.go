package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverNone   = "none"

	defaultMemorySize = 1024
)

var (
	// ErrUnsupportedDriver indicates an unknown cache driver name.
	ErrUnsupportedDriver = errors.New("cache: unsupported driver")
	// ErrMissingRedisAddress indicates the redis driver was selected without an address.
	ErrMissingRedisAddress = errors.New("cache: redis address is required")
)

// Store is a byte-oriented key/value cache with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Add stores value only when key holds no live entry and reports whether it did.
	Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Config selects and sizes a cache backend.
type Config struct {
	Driver       string
	RedisAddress string
	Size         int
	Clock        func() time.Time
}

// Open returns the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		size := cfg.Size
		if size <= 0 {
			size = defaultMemorySize
		}
		return NewMemoryStore(size, cfg.Clock)
	case DriverRedis:
		if strings.TrimSpace(cfg.RedisAddress) == "" {
			return nil, ErrMissingRedisAddress
		}
		return NewRedisStore(ctx, cfg.RedisAddress)
	case DriverNone:
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.Driver)
	}
}

// NoopStore never holds anything.
type NoopStore struct{}

func (NoopStore) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (NoopStore) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopStore) Delete(context.Context, ...string) error                  { return nil }
func (NoopStore) Close() error                                             { return nil }

func (NoopStore) Add(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, nil
}
