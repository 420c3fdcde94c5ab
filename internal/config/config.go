// Package config loads daemon configuration from the environment, with
// optional .env overrides for development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the daemon configuration.
type Config struct {
	// RegistryPath is the SQLite file backing the session registry.
	RegistryPath string
	// ContactsPath is the JSON address-book file for tier resolution.
	ContactsPath string
	// SocketPath is the UNIX socket channel adapters push envelopes to.
	SocketPath string

	// BackendCommand launches the agent process for each session.
	BackendCommand    string
	BackendArgs       []string
	BackendResumeFlag string
	// SerializeTurns disables steering for backends that cannot accept
	// input mid-turn.
	SerializeTurns bool

	IdleTimeout        time.Duration
	ErrorThreshold     int
	SweepInterval      time.Duration
	QueueWarnDepth     int
	CheckpointInterval time.Duration
	StartRetryBackoff  time.Duration
	TierCacheTTL       time.Duration

	Debug bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() (Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		RegistryPath:      envString("SWITCHBOARD_REGISTRY_PATH", "switchboard.db"),
		ContactsPath:      envString("SWITCHBOARD_CONTACTS_PATH", "contacts.json"),
		SocketPath:        envString("SWITCHBOARD_SOCKET_PATH", "switchboard.sock"),
		BackendCommand:    envString("SWITCHBOARD_BACKEND_COMMAND", ""),
		BackendResumeFlag: envString("SWITCHBOARD_BACKEND_RESUME_FLAG", "--resume"),
	}

	if raw := os.Getenv("SWITCHBOARD_BACKEND_ARGS"); raw != "" {
		cfg.BackendArgs = strings.Fields(raw)
	}

	var err error
	if cfg.SerializeTurns, err = envBool("SWITCHBOARD_SERIALIZE_TURNS", false); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = envBool("SWITCHBOARD_DEBUG", false); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = envDuration("SWITCHBOARD_IDLE_TIMEOUT", 2*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.SweepInterval, err = envDuration("SWITCHBOARD_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.CheckpointInterval, err = envDuration("SWITCHBOARD_CHECKPOINT_INTERVAL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.StartRetryBackoff, err = envDuration("SWITCHBOARD_START_RETRY_BACKOFF", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TierCacheTTL, err = envDuration("SWITCHBOARD_TIER_CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ErrorThreshold, err = envInt("SWITCHBOARD_ERROR_THRESHOLD", 3); err != nil {
		return Config{}, err
	}
	if cfg.QueueWarnDepth, err = envInt("SWITCHBOARD_QUEUE_WARN_DEPTH", 100); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func envBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
