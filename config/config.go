/*
Package config loads service settings from the environment.

SOURCES (highest precedence first):
  1. cobra flags bound into viper by cmd/server
  2. process environment
  3. an optional .env file in the working directory (godotenv)
  4. defaults below

STORE:
  DB_DRIVER=postgres builds a DSN from POSTGRES_USER, POSTGRES_PASSWORD,
  POSTGRES_DB, IP_INT (host) and PORT. DB_DRIVER=sqlite opens SQLITE_PATH.
  DB_DRIVER=memory keeps everything in process.
*/
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Environment keys.
const (
	KeyDBDriver          = "DB_DRIVER"
	KeyPostgresUser      = "POSTGRES_USER"
	KeyPostgresPassword  = "POSTGRES_PASSWORD"
	KeyPostgresDB        = "POSTGRES_DB"
	KeyDBHost            = "IP_INT"
	KeyDBPort            = "PORT"
	KeySQLitePath        = "SQLITE_PATH"
	KeyDBMaxOpenConns    = "DB_MAX_OPEN_CONNS"
	KeyDBMaxIdleConns    = "DB_MAX_IDLE_CONNS"
	KeyDBConnMaxLifetime = "DB_CONN_MAX_LIFETIME"
	KeyRedisHost         = "REDIS_HOST"
	KeyRedisPort         = "REDIS_PORT"
	KeyRedisPoolSize     = "REDIS_POOL_SIZE"
	KeyRedisTimeout      = "REDIS_TIMEOUT"
	KeyCacheEnabled      = "CACHE_ENABLED"
	KeyCacheTTL          = "CACHE_TTL"
	KeyRateLimitMax      = "RATE_LIMIT_MAX"
	KeyRateLimitWindow   = "RATE_LIMIT_WINDOW"
	KeyHTTPPort          = "HTTP_PORT"
	KeyRequestTimeout    = "REQUEST_TIMEOUT"
	KeyLogLevel          = "LOG_LEVEL"
)

// Config is the full service configuration.
type Config struct {
	DB        DBConfig
	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	HTTP      HTTPConfig
	LogLevel  string
}

type DBConfig struct {
	Driver          string
	User            string
	Password        string
	Name            string
	Host            string
	Port            string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	PoolSize int
	Timeout  time.Duration
}

// Addr is host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

type HTTPConfig struct {
	Port           int
	RequestTimeout time.Duration
}

// Addr is the listen address.
func (h HTTPConfig) Addr() string {
	return ":" + strconv.Itoa(h.Port)
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDBDriver, DriverPostgres)
	v.SetDefault(KeyDBHost, "localhost")
	v.SetDefault(KeyDBPort, "5432")
	v.SetDefault(KeySQLitePath, "money.db")
	v.SetDefault(KeyDBMaxOpenConns, 8)
	v.SetDefault(KeyDBMaxIdleConns, 5)
	v.SetDefault(KeyDBConnMaxLifetime, 30*time.Minute)
	v.SetDefault(KeyRedisHost, "localhost")
	v.SetDefault(KeyRedisPort, 6379)
	v.SetDefault(KeyRedisPoolSize, 20)
	v.SetDefault(KeyRedisTimeout, 2*time.Second)
	v.SetDefault(KeyCacheEnabled, true)
	v.SetDefault(KeyCacheTTL, 900*time.Second)
	v.SetDefault(KeyRateLimitMax, 100)
	v.SetDefault(KeyRateLimitWindow, 60*time.Second)
	v.SetDefault(KeyHTTPPort, 8000)
	v.SetDefault(KeyRequestTimeout, 30*time.Second)
	v.SetDefault(KeyLogLevel, "info")
}

// Load reads an optional .env file, then resolves every key through v.
// The returned config has been validated.
func Load(v *viper.Viper) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	SetDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		DB: DBConfig{
			Driver:          v.GetString(KeyDBDriver),
			User:            v.GetString(KeyPostgresUser),
			Password:        v.GetString(KeyPostgresPassword),
			Name:            v.GetString(KeyPostgresDB),
			Host:            v.GetString(KeyDBHost),
			Port:            v.GetString(KeyDBPort),
			SQLitePath:      v.GetString(KeySQLitePath),
			MaxOpenConns:    v.GetInt(KeyDBMaxOpenConns),
			MaxIdleConns:    v.GetInt(KeyDBMaxIdleConns),
			ConnMaxLifetime: v.GetDuration(KeyDBConnMaxLifetime),
		},
		Redis: RedisConfig{
			Host:     v.GetString(KeyRedisHost),
			Port:     v.GetInt(KeyRedisPort),
			PoolSize: v.GetInt(KeyRedisPoolSize),
			Timeout:  v.GetDuration(KeyRedisTimeout),
		},
		Cache: CacheConfig{
			Enabled: v.GetBool(KeyCacheEnabled),
			TTL:     v.GetDuration(KeyCacheTTL),
		},
		RateLimit: RateLimitConfig{
			Max:    v.GetInt(KeyRateLimitMax),
			Window: v.GetDuration(KeyRateLimitWindow),
		},
		HTTP: HTTPConfig{
			Port:           v.GetInt(KeyHTTPPort),
			RequestTimeout: v.GetDuration(KeyRequestTimeout),
		},
		LogLevel: v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.User == "" {
			errs = append(errs, fmt.Errorf("%s is required for the postgres driver", KeyPostgresUser))
		}
		if c.DB.Name == "" {
			errs = append(errs, fmt.Errorf("%s is required for the postgres driver", KeyPostgresDB))
		}
		if c.DB.Host == "" {
			errs = append(errs, fmt.Errorf("%s is required for the postgres driver", KeyDBHost))
		}
	case DriverSQLite:
		if c.DB.SQLitePath == "" {
			errs = append(errs, fmt.Errorf("%s is required for the sqlite driver", KeySQLitePath))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of postgres, sqlite, memory (got %q)", KeyDBDriver, c.DB.Driver))
	}
	if c.DB.MaxOpenConns < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyDBMaxOpenConns))
	}
	if c.DB.MaxIdleConns < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyDBMaxIdleConns))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be a valid port", KeyRedisPort))
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyRedisPoolSize))
	}
	if c.Redis.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyRedisTimeout))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyCacheTTL))
	}
	if c.RateLimit.Max < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyRateLimitMax))
	}
	if c.RateLimit.Window < time.Second {
		errs = append(errs, fmt.Errorf("%s must be at least 1s", KeyRateLimitWindow))
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be a valid port", KeyHTTPPort))
	}
	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyRequestTimeout))
	}
	return errors.Join(errs...)
}

// PostgresDSN builds a postgres:// URL from the store settings.
func (c DBConfig) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
