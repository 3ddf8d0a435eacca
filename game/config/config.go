package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config is the server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins restricts CORS and WebSocket origins. Empty allows all.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RoomsConfig controls the room registry
type RoomsConfig struct {
	// MaxMembers caps occupancy per room, 0 means unlimited
	MaxMembers      int           `yaml:"max_members"`
	MaxCodeAttempts int           `yaml:"max_code_attempts"`
	IdleTTL         time.Duration `yaml:"idle_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// WebSocketConfig controls per-connection behavior
type WebSocketConfig struct {
	SendBuffer     int   `yaml:"send_buffer"`
	MaxMessageSize int64 `yaml:"max_message_size"`
	EchoToSender   bool  `yaml:"echo_to_sender"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Rooms: RoomsConfig{
			MaxMembers:      8,
			MaxCodeAttempts: 32,
			IdleTTL:         10 * time.Minute,
			CleanupInterval: time.Minute,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:     64,
			MaxMessageSize: 4096,
			EchoToSender:   true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load overlays the YAML file at path onto the defaults and validates the
// result. ${VAR} references in the file are expanded from the environment.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port must be between 0 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		problems = append(problems, "server.shutdown_timeout must be positive")
	}
	if c.Rooms.MaxMembers < 0 {
		problems = append(problems, "rooms.max_members must be >= 0")
	}
	if c.Rooms.MaxCodeAttempts < 1 {
		problems = append(problems, "rooms.max_code_attempts must be >= 1")
	}
	if c.Rooms.IdleTTL <= 0 {
		problems = append(problems, "rooms.idle_ttl must be positive")
	}
	if c.Rooms.CleanupInterval <= 0 {
		problems = append(problems, "rooms.cleanup_interval must be positive")
	}
	if c.WebSocket.SendBuffer < 1 {
		problems = append(problems, "websocket.send_buffer must be >= 1")
	}
	if c.WebSocket.MaxMessageSize < 64 {
		problems = append(problems, "websocket.max_message_size must be >= 64")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Marshal renders the configuration as YAML in the format Load reads
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
