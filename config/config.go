// Package config reads service settings from the environment. A .env file in
// the working directory is loaded first when present.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	defaultListenAddr         = ":8080"
	defaultTaskStoreURL       = "http://localhost:8000/api"
	defaultTaskStoreTimeout   = 10 * time.Second
	defaultTasksCacheTTL      = 5 * time.Minute
	defaultSessionIdleTimeout = 30 * time.Minute
	defaultStoreListenAddr    = ":8000"
	defaultCORSOrigin         = "http://localhost:8080"
)

// Board holds the board web client settings.
type Board struct {
	ListenAddr         string
	TaskStoreURL       string
	TaskStoreTimeout   time.Duration
	TasksCacheTTL      time.Duration
	Redis              *redis.Options
	SessionSecret      string
	SessionIdleTimeout time.Duration
	OTLPEndpoint       string
	Debug              bool
}

// Store holds the reference Task Store settings.
type Store struct {
	ListenAddr       string
	Backend          string
	ConnectionString string
	TasksTable       string
	AllowOrigins     []string
	Debug            bool
}

// LoadDotEnv loads .env into the process environment. Variables already set
// win over the file. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the board server configuration.
func Load() (Board, error) {
	var err error
	cfg := Board{
		ListenAddr:   envString("LISTEN_ADDR", defaultListenAddr),
		TaskStoreURL: envString("TASK_STORE_URL", defaultTaskStoreURL),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if cfg.Debug, err = envBool("DEBUG", false); err != nil {
		return Board{}, err
	}
	if _, perr := url.ParseRequestURI(cfg.TaskStoreURL); perr != nil {
		return Board{}, fmt.Errorf("invalid TASK_STORE_URL: %w", perr)
	}
	if cfg.TaskStoreTimeout, err = envDur("TASK_STORE_TIMEOUT", defaultTaskStoreTimeout); err != nil {
		return Board{}, err
	}
	if cfg.TasksCacheTTL, err = envDur("TASKS_CACHE_TTL", defaultTasksCacheTTL); err != nil {
		return Board{}, err
	}
	if cfg.SessionIdleTimeout, err = envDur("SESSION_IDLE_TIMEOUT", defaultSessionIdleTimeout); err != nil {
		return Board{}, err
	}
	if cfg.SessionIdleTimeout <= 0 {
		return Board{}, errors.New("invalid SESSION_IDLE_TIMEOUT: must be greater than zero")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		if !cfg.Debug {
			return Board{}, errors.New("missing SESSION_SECRET")
		}
		cfg.SessionSecret = "insecure-debug-session-secret"
	}

	if conn := os.Getenv("REDIS_CONNECTION_STRING"); conn != "" {
		cfg.Redis = ParseRedisOptions(conn)
	}
	return cfg, nil
}

// LoadStore reads the reference Task Store configuration.
func LoadStore() (Store, error) {
	var err error
	cfg := Store{
		ListenAddr:       envString("LISTEN_ADDR", defaultStoreListenAddr),
		Backend:          strings.ToLower(envString("TASK_STORE_BACKEND", "memory")),
		ConnectionString: os.Getenv("STORAGE_CONNECTION_STRING"),
		TasksTable:       os.Getenv("TASKS_TABLE"),
		AllowOrigins:     splitList(envString("CORS_ALLOW_ORIGINS", defaultCORSOrigin)),
	}
	if cfg.Debug, err = envBool("DEBUG", false); err != nil {
		return Store{}, err
	}
	switch cfg.Backend {
	case "memory":
	case "tables":
		if cfg.ConnectionString == "" || cfg.TasksTable == "" {
			return Store{}, errors.New("missing storage config")
		}
	default:
		return Store{}, fmt.Errorf("invalid TASK_STORE_BACKEND %q: must be memory or tables", cfg.Backend)
	}
	return cfg, nil
}

// ParseRedisOptions accepts either a redis:// URL or an Azure style
// "host:port,password=...,ssl=true" connection string.
func ParseRedisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
