package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by the server and the client.
type Config struct {
	// Network
	Host string
	Port int

	// Server
	Room           string
	MaxClients     int
	MaxMessageSize int
	WriteTimeout   time.Duration

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string
}

// Defaults
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 55555
	DefaultRoom           = "backdoor"
	DefaultMaxClients     = 64
	DefaultMaxMessageSize = 64 * 1024
	DefaultWriteTimeout   = 10 * time.Second
)

// Load reads an optional .env file and then the environment. Variables that
// are unset fall back to the defaults above.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit dotenv path.
func LoadFile(path string) (*Config, error) {
	// a missing .env is fine, the process environment still applies
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	cfg := &Config{}

	if err := loadEnvString(&cfg.Host, "CHAT_HOST", DefaultHost); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.Port, "CHAT_PORT", DefaultPort); err != nil {
		return nil, err
	}

	if err := loadEnvString(&cfg.Room, "CHAT_ROOM", DefaultRoom); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.MaxClients, "CHAT_MAX_CLIENTS", DefaultMaxClients); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&cfg.MaxMessageSize, "CHAT_MAX_MESSAGE_SIZE", DefaultMaxMessageSize); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&cfg.WriteTimeout, "CHAT_WRITE_TIMEOUT", DefaultWriteTimeout); err != nil {
		return nil, err
	}

	if err := loadEnvString(&cfg.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&cfg.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&cfg.LogFile, "LOG_FILE", ""); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host cannot be empty")
	}
	if strings.TrimSpace(c.Room) == "" {
		return errors.New("room name cannot be empty")
	}
	if c.MaxClients <= 0 {
		return fmt.Errorf("invalid max clients %d: must be positive", c.MaxClients)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("invalid max message size %d: must be positive", c.MaxMessageSize)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid write timeout %s: must not be negative", c.WriteTimeout)
	}
	return nil
}

// Addr joins host and port for net.Listen and net.Dial.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func loadEnvString(target *string, key, defaultValue string) error {
	if value, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(value)
		return nil
	}
	*target = defaultValue
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		*target = defaultValue
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	*target = parsed
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		*target = defaultValue
		return nil
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	*target = parsed
	return nil
}
