package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DebugMode      bool
	LogLevel       string
	TCPAddr        string
	ConfigPath     string
	ArtifactDir    string
	Version        string
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	JwtConfig      *JwtConfig
}

// LoadEnvFile loads path into the process environment without overriding
// variables that are already set. An empty path is a no-op.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func NewSystemConfig() *AppConfig {
	return &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		LogLevel:       getenv("LOG_LEVEL", "info"),
		TCPAddr:        getenv("TCP_ADDR", ":9000"),
		ConfigPath:     getenv("ZKBOOST_CONFIG", "config.yaml"),
		ArtifactDir:    getenv("ARTIFACT_DIR", os.TempDir()),
		Version:        getenv("ZKBOOST_VERSION", "dev"),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		JwtConfig:      NewJwtConfig(),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
