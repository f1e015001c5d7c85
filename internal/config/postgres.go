package config

import "os"

// PostgresConfig points at the job archive; an empty Url keeps jobs in memory.
type PostgresConfig struct {
	Url string
}

func NewPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Url: os.Getenv("DATABASE_URL"),
	}
}
