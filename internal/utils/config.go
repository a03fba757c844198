package utils

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Riboost-Studio/perfect-menu-xprinter/internal/model"
)

// LoadConfig reads .env files (when present) and then the environment.
func LoadConfig(envFiles ...string) (model.Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(f); err != nil {
			return model.Config{}, err
		}
	}

	return model.Config{
		Port:         getEnvAsInt("PORT", 4000),
		APIPrefix:    strings.TrimRight(getEnvAllowEmpty("API_PREFIX", "/api"), "/"),
		ClientDir:    getEnv("CLIENT_DIR", "dist"),
		CORSOrigin:   os.Getenv("CORS_ORIGIN"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogDev:       getEnvAsBool("LOG_DEV", false),
		PrintersFile: getEnv("PRINTERS_FILE", "config/printers.json"),
		AgentWSURL:   os.Getenv("AGENT_WS_URL"),
		APIKey:       os.Getenv("AGENT_API_KEY"),
		ChromePath:   os.Getenv("CHROME_PATH"),
		PrintWidth:   getEnvAsInt("PRINT_WIDTH", model.DefaultWidth),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAllowEmpty honors a variable explicitly set to the empty string.
func getEnvAllowEmpty(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
