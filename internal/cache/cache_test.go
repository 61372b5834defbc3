package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/tilestats/internal/core/config"
)

func exercise(t *testing.T, c Interface) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "p:a:1"); err != nil || ok {
		t.Fatalf("empty cache Get ok=%v err=%v", ok, err)
	}
	for _, k := range []string{"p:a:1", "p:a:2", "p:b:1"} {
		if err := c.Set(ctx, k, []byte(k)); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	if v, ok, err := c.Get(ctx, "p:a:2"); err != nil || !ok || string(v) != "p:a:2" {
		t.Fatalf("Get = %q %v %v", v, ok, err)
	}
	if err := c.DropPrefix(ctx, "p:a:"); err != nil {
		t.Fatalf("DropPrefix: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "p:a:1"); ok {
		t.Fatalf("dropped key still served")
	}
	if _, ok, _ := c.Get(ctx, "p:b:1"); !ok {
		t.Fatalf("unrelated key dropped")
	}
}

func TestMemory(t *testing.T) {
	c := NewMemory(16, time.Minute)
	defer c.Close()
	exercise(t, c)
}

func TestMemory_Evicts(t *testing.T) {
	c := NewMemory(2, 0)
	ctx := context.Background()
	_ = c.Set(ctx, "a", nil)
	_ = c.Set(ctx, "b", nil)
	_ = c.Set(ctx, "c", nil)
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("least recently used entry must be evicted")
	}
}

func TestRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	c, err := New(context.Background(), config.CacheCfg{Driver: "redis", RedisAddr: mr.Addr(), TTL: time.Minute, OpTimeout: time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	exercise(t, c)

	if ttl := mr.TTL("p:b:1"); ttl != time.Minute {
		t.Fatalf("ttl=%v want 1m", ttl)
	}
}

func TestNew_Drivers(t *testing.T) {
	ctx := context.Background()
	if c, err := New(ctx, config.CacheCfg{Driver: "none"}); err != nil {
		t.Fatalf("none: %v", err)
	} else if _, ok := c.(Nop); !ok {
		t.Fatalf("none driver = %T", c)
	}
	if _, err := New(ctx, config.CacheCfg{Driver: "bogus"}); err == nil {
		t.Fatalf("unknown driver must fail")
	}
	c, _ := New(ctx, config.CacheCfg{Driver: "none"})
	_ = c.Set(ctx, "k", []byte("v"))
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatalf("nop cache must never hit")
	}
}
