package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "contactlink/pkg/platform/strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Lock modes.
const (
	LockGlobal  = "global"
	LockCluster = "cluster"
	LockRedis   = "redis"
)

// Config is the full process configuration.
type Config struct {
	Server Server
	Log    Log
	Store  Store
	Lock   Lock
	Redis  RedisConfig
	Kafka  Kafka
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Store struct {
	Backend      string
	DatabaseURL  string
	Driver       string
	MaxOpenConns int
}

type Lock struct {
	Mode string
	TTL  time.Duration
}

// RedisConfig configures the client used for distributed cluster locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Kafka struct {
	Brokers    []string
	Topic      string
	Partitions int32
}

// Enabled reports whether link events go to Kafka.
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// LoadDotEnv loads .env into the process environment when the file exists.
// Variables already set win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Config from environment variables so main stays lean.
// Invalid values are errors; unset values take defaults.
func FromEnv() (Config, error) {
	p := parser{}
	cfg := Config{
		Server: Server{
			Addr:              p.str("CONTACTLINK_ADDR", ":8080"),
			ReadHeaderTimeout: p.duration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			RequestTimeout:    p.duration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout:   p.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: Log{
			Level:  p.oneOf("LOG_LEVEL", "info", "debug", "info", "warn", "error"),
			Format: p.oneOf("LOG_FORMAT", "text", "text", "json"),
		},
		Store: Store{
			Backend:      p.oneOf("STORE_BACKEND", StoreMemory, StoreMemory, StorePostgres, StoreSQLite),
			DatabaseURL:  p.str("DATABASE_URL", ""),
			Driver:       p.oneOf("DATABASE_DRIVER", "postgres", "postgres", "pgx"),
			MaxOpenConns: p.integer("DATABASE_MAX_OPEN_CONNS", 25),
		},
		Lock: Lock{
			Mode: p.oneOf("LOCK_MODE", LockCluster, LockGlobal, LockCluster, LockRedis),
			TTL:  p.duration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers:    pstrings.DedupeAndTrim(strings.Split(p.str("KAFKA_BROKERS", ""), ",")),
			Topic:      p.str("KAFKA_TOPIC", "contact.links"),
			Partitions: int32(p.integer("KAFKA_TOPIC_PARTITIONS", 3)),
		},
	}

	if cfg.Store.Backend != StoreMemory && cfg.Store.DatabaseURL == "" {
		p.fail("DATABASE_URL is required when STORE_BACKEND=%s", cfg.Store.Backend)
	}
	if cfg.Lock.Mode == LockRedis && cfg.Redis.URL == "" {
		p.fail("REDIS_URL is required when LOCK_MODE=redis")
	}
	if cfg.Kafka.Partitions <= 0 {
		p.fail("KAFKA_TOPIC_PARTITIONS must be positive")
	}
	return cfg, errors.Join(p.errs...)
}

// parser reads variables and collects every invalid one.
type parser struct {
	errs []error
}

func (p *parser) fail(format string, args ...any) {
	p.errs = append(p.errs, fmt.Errorf(format, args...))
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) oneOf(key, def string, allowed ...string) string {
	v := strings.ToLower(p.str(key, def))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	p.fail("%s: %q is not one of %s", key, v, strings.Join(allowed, ", "))
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail("%s: invalid duration %q", key, raw)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail("%s: invalid integer %q", key, raw)
		return def
	}
	return n
}
