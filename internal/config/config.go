package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"letschat/internal/domain"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

const defaultRooms = "general:General:Anything goes;sports:Sports:Scores and banter"

// Config holds application configuration
type Config struct {
	Port           string
	Environment    string // development, staging, production
	LogLevel       string
	LogFormat      string
	StorageDriver  string
	DatabaseURL    string
	PebblePath     string
	RabbitMQURL    string // empty disables event publishing and the inbound queue
	AllowedOrigins string
	OpenAPISpec    string

	MaxMessageLength     int
	SubscriberMaxPending int
	Rooms                []*domain.Room
}

// Load reads configuration from the environment (and .env when present) and validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment without touching .env.
func FromEnv() (*Config, error) {
	maxLen, err := getEnvInt("MAX_MESSAGE_LENGTH", domain.DefaultMaxMessageLength)
	if err != nil {
		return nil, err
	}
	maxPending, err := getEnvInt("SUBSCRIBER_MAX_PENDING", 0)
	if err != nil {
		return nil, err
	}
	rooms, err := ParseRooms(getEnv("ROOMS", defaultRooms))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		Environment:          getEnv("ENVIRONMENT", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		StorageDriver:        strings.ToLower(getEnv("STORAGE_DRIVER", DriverMemory)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		PebblePath:           os.Getenv("PEBBLE_PATH"),
		RabbitMQURL:          os.Getenv("RABBITMQ_URL"),
		AllowedOrigins:       getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:8080"),
		OpenAPISpec:          getEnv("OPENAPI_SPEC_PATH", "artifacts/openapi.yaml"),
		MaxMessageLength:     maxLen,
		SubscriberMaxPending: maxPending,
		Rooms:                rooms,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the storage selection and limits for consistency.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
	case DriverPebble:
		if c.PebblePath == "" {
			return fmt.Errorf("PEBBLE_PATH is required for the %s driver", DriverPebble)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be positive (got %d)", c.MaxMessageLength)
	}
	if c.SubscriberMaxPending < 0 {
		return fmt.Errorf("SUBSCRIBER_MAX_PENDING must not be negative (got %d)", c.SubscriberMaxPending)
	}

	if c.IsProduction() && c.AllowedOrigins != "" {
		log.Println("WARNING: Ensure ALLOWED_ORIGINS uses HTTPS in production")
	}
	return nil
}

// ParseRooms parses "id:name:description;id:name:description". Name and
// description are optional; the name defaults to the id.
func ParseRooms(raw string) ([]*domain.Room, error) {
	var rooms []*domain.Room
	seen := make(map[string]bool)

	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		id := strings.TrimSpace(parts[0])
		if id == "" {
			return nil, fmt.Errorf("ROOMS entry %q has an empty id", entry)
		}
		if seen[id] {
			return nil, fmt.Errorf("ROOMS lists %q twice", id)
		}
		seen[id] = true

		room := &domain.Room{ID: id, Name: id}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			room.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			room.Description = strings.TrimSpace(parts[2])
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// RabbitMQEnabled reports whether a broker URL was configured.
func (c *Config) RabbitMQEnabled() bool {
	return c.RabbitMQURL != ""
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
