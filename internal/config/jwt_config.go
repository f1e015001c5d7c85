package config

import "os"

type JwtConfig struct {
	// Secret guards admin routes; empty disables auth.
	Secret string

	// WebhookSecret signs callbacks; empty sends them unsigned.
	WebhookSecret string
}

func NewJwtConfig() *JwtConfig {
	return &JwtConfig{
		Secret:        os.Getenv("JWT_SECRET"),
		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}
}
