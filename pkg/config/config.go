package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Rules    RulesConfig
}

type ServerConfig struct {
	Port         string
	Mode         string
	ReadTimeout  int
	WriteTimeout int
}

type DatabaseConfig struct {
	Path string
}

type CacheConfig struct {
	TTLSeconds int
}

// RulesConfig holds the configurable business rules of the directory:
// the one person that can never be deleted and the email domain that is
// rejected on create/update.
type RulesConfig struct {
	ProtectedEmail     string
	BlockedEmailDomain string
}

var AppConfig *Config

// Load loads configuration from .env file and environment variables
func Load() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	AppConfig = &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Mode:         getEnv("GIN_MODE", "release"),
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 15),
		},
		Database: DatabaseConfig{
			Path: getEnv("DB_PATH", "./personbook.db"),
		},
		Cache: CacheConfig{
			TTLSeconds: getEnvAsInt("CACHE_TTL_SECONDS", 300),
		},
		Rules: RulesConfig{
			ProtectedEmail:     getEnv("PROTECTED_EMAIL", "protected@example.com"),
			BlockedEmailDomain: getEnv("BLOCKED_EMAIL_DOMAIN", "spam.com"),
		},
	}

	return nil
}

// IsDevelopment reports whether the server runs in development mode,
// in which 500 responses may carry internal error detail.
func IsDevelopment() bool {
	return AppConfig != nil && AppConfig.Server.Mode == "debug"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
