// Package cache stores serialized worker results keyed by dataset version.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mohammed-shakir/tilestats/internal/cache/redisstore"
	"github.com/mohammed-shakir/tilestats/internal/core/config"
)

type Interface interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
	// DropPrefix discards every entry whose key starts with prefix.
	DropPrefix(ctx context.Context, prefix string) error
	Close() error
}

var (
	_ Interface = Nop{}
	_ Interface = (*Memory)(nil)
	_ Interface = (*Redis)(nil)
)

// New opens the driver named by cfg.Driver.
func New(ctx context.Context, cfg config.CacheCfg) (Interface, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "memory":
		return NewMemory(cfg.Size, cfg.TTL), nil
	case "redis":
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		return NewRedis(rc, cfg.TTL, cfg.OpTimeout), nil
	default:
		return nil, fmt.Errorf("unknown result cache driver %q", cfg.Driver)
	}
}

type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte) error { return nil }
func (Nop) DropPrefix(context.Context, string) error { return nil }
func (Nop) Close() error { return nil }

type Memory struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.lru.Add(key, val)
	return nil
}

func (m *Memory) DropPrefix(_ context.Context, prefix string) error {
	for _, k := range m.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			m.lru.Remove(k)
		}
	}
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}

type Redis struct {
	rc        *redisstore.Client
	ttl       time.Duration
	opTimeout time.Duration
}

func NewRedis(rc *redisstore.Client, ttl, opTimeout time.Duration) *Redis {
	return &Redis{rc: rc, ttl: ttl, opTimeout: opTimeout}
}

func (r *Redis) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.rc.Get(ctx, key)
}

func (r *Redis) Set(ctx context.Context, key string, val []byte) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.rc.Set(ctx, key, val, r.ttl)
}

func (r *Redis) DropPrefix(ctx context.Context, prefix string) error {
	_, err := r.rc.DelPrefix(ctx, prefix)
	return err
}

func (r *Redis) Close() error { return r.rc.Close() }
