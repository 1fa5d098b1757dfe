package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvQueueRedisAddr     = "QBANK_QUEUE_REDIS_ADDR"
	EnvQueueRedisPassword = "QBANK_QUEUE_REDIS_PASSWORD"
	EnvQueueRedisDB       = "QBANK_QUEUE_REDIS_DB"
	EnvQueueName          = "QBANK_QUEUE_NAME"
	EnvQueueConcurrency   = "QBANK_QUEUE_CONCURRENCY"
	EnvQueueMaxRetry      = "QBANK_QUEUE_MAX_RETRY"
	EnvQueueTimeout       = "QBANK_QUEUE_TIMEOUT"
)

// QueueConfig configures the Redis-backed paper processing queue.
type QueueConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Name          string `toml:"name"`
	Concurrency   int    `toml:"concurrency"`
	MaxRetry      int    `toml:"max_retry"`
	Timeout       string `toml:"timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *QueueConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *QueueConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *QueueConfig) Merge(overlay *QueueConfig) {
	if overlay.RedisAddr != "" {
		c.RedisAddr = overlay.RedisAddr
	}
	if overlay.RedisPassword != "" {
		c.RedisPassword = overlay.RedisPassword
	}
	if overlay.RedisDB != 0 {
		c.RedisDB = overlay.RedisDB
	}
	if overlay.Name != "" {
		c.Name = overlay.Name
	}
	if overlay.Concurrency != 0 {
		c.Concurrency = overlay.Concurrency
	}
	if overlay.MaxRetry != 0 {
		c.MaxRetry = overlay.MaxRetry
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}

func (c *QueueConfig) loadDefaults() {
	if c.RedisAddr == "" {
		c.RedisAddr = "localhost:6379"
	}
	if c.Name == "" {
		c.Name = "papers"
	}
	if c.Concurrency == 0 {
		c.Concurrency = 2
	}
	if c.MaxRetry == 0 {
		c.MaxRetry = 3
	}
	if c.Timeout == "" {
		c.Timeout = "30m"
	}
}

func (c *QueueConfig) loadEnv() {
	if v := os.Getenv(EnvQueueRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(EnvQueueRedisPassword); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv(EnvQueueRedisDB); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv(EnvQueueName); v != "" {
		c.Name = v
	}
	if v := os.Getenv(EnvQueueConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv(EnvQueueMaxRetry); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetry = n
		}
	}
	if v := os.Getenv(EnvQueueTimeout); v != "" {
		c.Timeout = v
	}
}

func (c *QueueConfig) validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.MaxRetry < 0 {
		return fmt.Errorf("max_retry must not be negative")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}
