package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	BackendURL         string
	TokenFile          string
	HTTPTimeoutSeconds int
	LogLevel           string

	// devserver only
	DatabaseURL  string
	JWTSecret    string
	GeminiAPIKey string
	HTTPPort     string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		BackendURL:         getEnv("BACKEND_URL", "http://localhost:8000"),
		TokenFile:          getEnv("TOKEN_FILE", defaultTokenFile()),
		HTTPTimeoutSeconds: getEnvAsInt("HTTP_TIMEOUT_SECONDS", 15),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		DatabaseURL:        getEnv("DATABASE_URL", "companion.db"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		HTTPPort:           getEnv("HTTP_PORT", "8000"),
	}
}

func defaultTokenFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to the working directory when HOME is unset.
		return ".companion-token"
	}
	return filepath.Join(home, ".companion", "token")
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
