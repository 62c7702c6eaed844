package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// dialTimeout bounds each connection attempt so the retry backoff stays meaningful.
const dialTimeout = 10 * time.Second

// Config is populated once at startup from the environment.
type Config struct {
	Port        int
	Environment string
	LogLevel    string

	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	ForceSync        bool

	DBMaxRetries     int
	DBRetryBaseDelay time.Duration
	DBMaxOpenConns   int

	RedisAddr       string
	KafkaBrokers    []string
	UserEventsTopic string

	RateLimit float64
	RateBurst int
}

// Load reads a .env file if one exists and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:        p.int("PORT", 8000),
		Environment: p.str("NODE_ENV", "development"),
		LogLevel:    p.str("LOG_LEVEL", "info"),

		DatabaseHost:     p.str("DATABASE_HOST", "localhost"),
		DatabasePort:     p.int("DATABASE_PORT", 3306),
		DatabaseName:     getenv("DATABASE_NAME"),
		DatabaseUser:     getenv("DATABASE_USER"),
		DatabasePassword: getenv("DATABASE_PASSWORD"),
		// only the literal "true" opts into a destructive sync
		ForceSync: getenv("FORCE_SYNC") == "true",

		DBMaxRetries:     p.int("DB_MAX_RETRIES", 10),
		DBRetryBaseDelay: time.Duration(p.int("DB_RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		DBMaxOpenConns:   p.int("DB_MAX_OPEN_CONNS", 5),

		RedisAddr:       getenv("REDIS_ADDR"),
		KafkaBrokers:    splitList(getenv("KAFKA_BROKERS")),
		UserEventsTopic: p.str("USER_EVENTS_TOPIC", "user-topic"),

		RateLimit: p.float("RATE_LIMIT", 0),
		RateBurst: p.int("RATE_BURST", 40),
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.DBMaxRetries < 1 {
		return nil, fmt.Errorf("DB_MAX_RETRIES must be at least 1, got %d", cfg.DBMaxRetries)
	}
	if cfg.DBMaxOpenConns < 1 {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1, got %d", cfg.DBMaxOpenConns)
	}
	return cfg, nil
}

// DSN returns the go-sql-driver/mysql data source name for the configured database.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.DatabaseUser
	mc.Passwd = c.DatabasePassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.DatabaseHost, strconv.Itoa(c.DatabasePort))
	mc.DBName = c.DatabaseName
	mc.ParseTime = true
	mc.Timeout = dialTimeout
	return mc.FormatDSN()
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// IsProduction reports whether the service runs with NODE_ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := p.getenv(key); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
