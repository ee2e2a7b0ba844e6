package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	// Server settings
	HTTPAddress string

	// Storage
	DatabaseDSN string
	RedisAddr   string

	// Graph mirror (optional; empty URI disables the mirror)
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// SecretEncryptionKey is the base64-encoded 32-byte key sealing
	// secrets at rest
	SecretEncryptionKey string

	// Engine settings
	EngineWorkers  int
	SecretCacheTTL time.Duration
}

// LoadConfig loads configuration from files and environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Configure environment variables - do this BEFORE reading config
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envMappings := map[string]string{
		"HTTPAddress":         "HTTP_ADDRESS",
		"DatabaseDSN":         "DATABASE_DSN",
		"RedisAddr":           "REDIS_ADDR",
		"Neo4jURI":            "NEO4J_URI",
		"Neo4jUser":           "NEO4J_USER",
		"Neo4jPassword":       "NEO4J_PASSWORD",
		"SecretEncryptionKey": "SECRET_ENCRYPTION_KEY",
		"EngineWorkers":       "ENGINE_WORKERS",
		"SecretCacheTTL":      "SECRET_CACHE_TTL",
	}

	for configKey, envVar := range envMappings {
		if err := v.BindEnv(configKey, envVar); err != nil {
			log.Warn().Err(err).Msgf("Failed to bind environment variable %s for %s", envVar, configKey)
		}
	}

	v.SetConfigName("syncline_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.syncline")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("Config file not found, using environment variables and defaults")
	} else {
		log.Info().Msgf("Using config file: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTPAddress", ":8080")
	v.SetDefault("DatabaseDSN", "file::memory:?cache=shared")
	v.SetDefault("EngineWorkers", 8)
	v.SetDefault("SecretCacheTTL", "30s")
}

func validateConfig(config *Config) error {
	var missingVars []string

	if config.SecretEncryptionKey == "" {
		missingVars = append(missingVars, "SECRET_ENCRYPTION_KEY")
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missingVars, ", "))
	}

	if _, err := config.SecretKeyBytes(); err != nil {
		return err
	}

	return nil
}

// SecretKeyBytes decodes the configured encryption key and checks its
// length. ChaCha20-Poly1305 requires exactly 32 bytes.
func (c *Config) SecretKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.SecretEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("SECRET_ENCRYPTION_KEY is not valid base64: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("SECRET_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}

	return key, nil
}
