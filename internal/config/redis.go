package config

import "os"

// RedisConfig points at the worker mirror; an empty Url keeps it in memory.
type RedisConfig struct {
	DB       int
	Url      string
	Password string
}

func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		DB:       getenvInt("REDIS_DB", 0),
		Url:      os.Getenv("REDIS_ADDR"),
		Password: os.Getenv("REDIS_PASSWORD"),
	}
}
