package config

import (
	"fmt"
	"os"
)

type Config struct {
	Port             string
	MongoDBURI       string
	AuthJWKSURL      string
	AuthJWTSecret    string
	CloudinaryName   string
	CloudinaryKey    string
	CloudinarySecret string
	Environment      string
	LogLevel         string
	AllowedOrigins   string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:             getEnvWithDefault("PORT", "8080"),
		MongoDBURI:       os.Getenv("MONGODB_URI"),
		AuthJWKSURL:      os.Getenv("AUTH_JWKS_URL"),
		AuthJWTSecret:    os.Getenv("AUTH_JWT_SECRET"),
		CloudinaryName:   os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinarySecret: os.Getenv("CLOUDINARY_API_SECRET"),
		Environment:      getEnvWithDefault("ENVIRONMENT", "development"),
		LogLevel:         getEnvWithDefault("LOG_LEVEL", "info"),
		AllowedOrigins:   getEnvWithDefault("ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	if cfg.MongoDBURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	// Token verification needs either a JWKS endpoint or a shared secret.
	if cfg.AuthJWKSURL == "" && cfg.AuthJWTSecret == "" {
		return nil, fmt.Errorf("one of AUTH_JWKS_URL or AUTH_JWT_SECRET is required")
	}
	if cfg.CloudinaryName == "" || cfg.CloudinaryKey == "" || cfg.CloudinarySecret == "" {
		return nil, fmt.Errorf("CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET are required")
	}

	return cfg, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
