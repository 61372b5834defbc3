package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	c := FromEnv()
	if c.Addr != ":8090" || c.TileSize != 512 || c.ExtractParallelism != 1 {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Cache.Driver != "memory" || c.Cache.TTL != 5*time.Minute {
		t.Fatalf("unexpected cache defaults: %+v", c.Cache)
	}
	if c.Invalidation.Enabled {
		t.Fatalf("invalidation must be off by default")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TILE_SIZE", "256")
	t.Setenv("EXTRACT_PARALLELISM", "0")
	t.Setenv("RESULT_CACHE_DRIVER", "REDIS")
	t.Setenv("RESULT_CACHE_TTL", "90s")
	t.Setenv("INVALIDATION_ENABLED", "yes")
	t.Setenv("METRICS_ENABLED", "false")

	c := FromEnv()
	if c.TileSize != 256 {
		t.Fatalf("TileSize=%d", c.TileSize)
	}
	if c.ExtractParallelism != 1 {
		t.Fatalf("parallelism must be at least 1, got %d", c.ExtractParallelism)
	}
	if c.Cache.Driver != "redis" || c.Cache.TTL != 90*time.Second {
		t.Fatalf("cache=%+v", c.Cache)
	}
	if !c.Invalidation.Enabled || c.Metrics.Enabled {
		t.Fatalf("bool parsing: inv=%v metrics=%v", c.Invalidation.Enabled, c.Metrics.Enabled)
	}
}

func TestFromEnv_UnknownDriverFallsBackToNone(t *testing.T) {
	t.Setenv("RESULT_CACHE_DRIVER", "memcached")
	if d := FromEnv().Cache.Driver; d != "none" {
		t.Fatalf("driver=%q", d)
	}
}
