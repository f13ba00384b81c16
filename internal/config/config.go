package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process configuration, read from the environment.
type Config struct {
	// ListenAddr is the HTTP/WS listen address.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	// BaseURL is the public origin used when building shareable room links.
	BaseURL string `envconfig:"BASE_URL" default:"http://localhost:8080"`
	// LinkSecret signs room-link tokens.
	LinkSecret string `envconfig:"LINK_SECRET" default:"dev-only-insecure-secret"`

	// RoomTTL is the lifetime of a room from creation.
	RoomTTL time.Duration `envconfig:"ROOM_TTL" default:"24h"`
	// RoomSweepInterval is how often expired rooms are swept.
	RoomSweepInterval time.Duration `envconfig:"ROOM_SWEEP_INTERVAL" default:"30s"`
	// DefaultMessageTTLSeconds applies to rooms created without their own TTL.
	DefaultMessageTTLSeconds int `envconfig:"DEFAULT_MESSAGE_TTL_SECONDS" default:"600"`

	// SendBufferSize is the per-connection outbound frame buffer.
	SendBufferSize int `envconfig:"SEND_BUFFER_SIZE" default:"256"`

	// RedisAddr enables the cross-instance broadcast bridge when non-empty.
	// Pub/sub only; the relay still keeps no durable state anywhere.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
