package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
	// DedupeSize bounds the LRU of already applied events.
	DedupeSize int
}

type CacheCfg struct {
	Driver    string // none|memory|redis
	Size      int
	TTL       time.Duration
	RedisAddr string
	OpTimeout time.Duration
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	TileSize            int
	AggregationResLevel int
	ExtractParallelism  int
	UniqueIDProperty    string
	CellCacheSize       int
	CallTimeout         time.Duration
	MaxBodyBytes        int64

	Cache        CacheCfg
	Invalidation InvalidationCfg
	Metrics      MetricsCfg
}

func FromEnv() Config {
	tileSize := getint("TILE_SIZE", 512)
	if tileSize <= 0 {
		tileSize = 512
	}
	driver := strings.ToLower(getenv("RESULT_CACHE_DRIVER", "memory"))
	switch driver {
	case "none", "memory", "redis":
	default:
		driver = "none"
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		TileSize:            tileSize,
		AggregationResLevel: getint("AGGREGATION_RES_LEVEL", 0),
		ExtractParallelism:  max(getint("EXTRACT_PARALLELISM", 1), 1),
		UniqueIDProperty:    getenv("UNIQUE_ID_PROPERTY", ""),
		CellCacheSize:       getint("CELL_CACHE_SIZE", 4096),
		CallTimeout:         getduration("CALL_TIMEOUT", 30*time.Second),
		MaxBodyBytes:        int64(getuint64("MAX_BODY_BYTES", 64<<20)),

		Cache: CacheCfg{
			Driver:    driver,
			Size:      getint("RESULT_CACHE_SIZE", 1024),
			TTL:       getduration("RESULT_CACHE_TTL", 5*time.Minute),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Invalidation: InvalidationCfg{
			Enabled:    getbool("INVALIDATION_ENABLED", false),
			Driver:     getenv("INVALIDATION_DRIVER", "none"),
			Topic:      getenv("KAFKA_TOPIC", "dataset-invalidation"),
			Brokers:    getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID:    getenv("KAFKA_GROUP_ID", "widget-worker"),
			DedupeSize: getint("INVALIDATION_DEDUPE_SIZE", 4096),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", true),
			Addr:    getenv("METRICS_ADDR", ""),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getuint64(k string, def uint64) uint64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
