// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay service.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

const (
	defaultAddr            = ":8000"
	defaultMaxMessageSize  = 4096
	defaultSendBuffer      = 256
	defaultRefillInterval  = time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A Burst of 0 disables the limiter.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      RateLimitConfig

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	DuplicatePolicy relay.DuplicatePolicy
	RejectEmptyIDs  bool

	LogFormat       string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Addr: defaultAddr,
		AllowedOrigins: []string{
			"http://localhost:8000",
			"http://127.0.0.1:8000",
		},
		MaxMessageSize: defaultMaxMessageSize,
		SendBuffer:     defaultSendBuffer,
		RateLimit: RateLimitConfig{
			RefillInterval: defaultRefillInterval,
		},
		PingInterval:    (defaultPongWait * 9) / 10,
		PongWait:        defaultPongWait,
		WriteWait:       defaultWriteWait,
		DuplicatePolicy: relay.DuplicateKeep,
		LogFormat:       "text",
		LogLevel:        "info",
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// Sanitize replaces invalid values with defaults and returns the result.
// The receiver is not modified.
func (c Config) Sanitize() Config {
	cfg := c
	cfg.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)

	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaultRefillInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	// Pings must arrive before the peer's read deadline expires.
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = (cfg.PongWait * 9) / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if cfg.LogFormat != "json" {
		cfg.LogFormat = "text"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg
}

// NewConfigFromEnv creates a Config from environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("RELAY_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if buf := os.Getenv("SEND_BUFFER"); buf != "" {
		cfg.SendBuffer = parseIntValue(buf, cfg.SendBuffer)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseBurst(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}

	if policy := os.Getenv("DUPLICATE_POLICY"); policy != "" {
		if p, err := relay.ParseDuplicatePolicy(policy); err == nil {
			cfg.DuplicatePolicy = p
		}
	}

	if reject := os.Getenv("REJECT_EMPTY_IDS"); reject != "" {
		if b, err := strconv.ParseBool(reject); err == nil {
			cfg.RejectEmptyIDs = b
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseDuration(timeout, cfg.ShutdownTimeout)
	}

	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseBurst accepts 0, which disables rate limiting.
func parseBurst(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration syntax ("500ms", "2s") or a bare number
// of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
