// Package config loads the process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	FeedDriverGoChannel = "gochannel"
	FeedDriverRedis     = "redis"
	FeedDriverKafka     = "kafka"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string

	// DatabaseDSN selects postgres. Empty keeps passengers in memory.
	DatabaseDSN string

	FeedDriver        string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	KafkaBrokers      []string
	FeedConsumerGroup string
	FeedReconnectMax  time.Duration

	// AMQPURL enables the RabbitMQ notifier when set.
	AMQPURL   string
	AMQPQueue string

	SeatLayoutFile     string
	VehicleCapacity    int
	RequireSeatToBoard bool

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads a .env file when present and then the environment. Values
// that fail to parse fall back to their defaults.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}

	cfg := Config{
		Env:                envStr("APP_ENV", "dev"),
		Port:               envStr("APP_PORT", "8080"),
		LogLevel:           envStr("LOG_LEVEL", "info"),
		DatabaseDSN:        envStr("DATABASE_DSN", ""),
		FeedDriver:         strings.ToLower(envStr("FEED_DRIVER", FeedDriverGoChannel)),
		RedisAddr:          envStr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      envStr("REDIS_PASSWORD", ""),
		RedisDB:            envInt("REDIS_DB", 0),
		KafkaBrokers:       envList("KAFKA_BROKERS", []string{"localhost:9092"}),
		FeedConsumerGroup:  envStr("FEED_CONSUMER_GROUP", "boarding-scheduler"),
		FeedReconnectMax:   envDur("FEED_RECONNECT_MAX", 30*time.Second),
		AMQPURL:            envStr("AMQP_URL", ""),
		AMQPQueue:          envStr("AMQP_QUEUE", "boarding.state_changed"),
		SeatLayoutFile:     envStr("SEAT_LAYOUT_FILE", ""),
		VehicleCapacity:    envInt("VEHICLE_CAPACITY", 32),
		RequireSeatToBoard: envBool("REQUIRE_SEAT_TO_BOARD", true),
		RequestTimeout:     envDur("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:    envDur("SHUTDOWN_TIMEOUT", 5*time.Second),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.FeedDriver {
	case FeedDriverGoChannel, FeedDriverRedis, FeedDriverKafka:
	default:
		return fmt.Errorf("unknown FEED_DRIVER %q", c.FeedDriver)
	}
	if c.FeedDriver == FeedDriverKafka && len(c.KafkaBrokers) == 0 {
		return errors.New("FEED_DRIVER=kafka needs KAFKA_BROKERS")
	}
	if c.VehicleCapacity < 0 {
		return fmt.Errorf("VEHICLE_CAPACITY must not be negative, got %d", c.VehicleCapacity)
	}
	return nil
}

func (c Config) Addr() string {
	return ":" + c.Port
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(envStr(key, "")); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(envStr(key, "")); err == nil {
		return b
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(envStr(key, "")); err == nil && d > 0 {
		return d
	}
	return def
}

func envList(key string, def []string) []string {
	raw := envStr(key, "")
	if raw == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
