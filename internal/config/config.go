// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port   int
	DBPath string

	DetectorEndpoint string
	DetectorTimeout  time.Duration

	ViolationDir  string
	LogPath       string
	FlushInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	AlertCooldown time.Duration
	WebhookURL    string

	TelegramBotToken string
	TelegramChatID   string

	FPS              int
	ProcessEveryNth  int
	MaxReconnects    int
	OpenTimeout      time.Duration
	ReadTimeout      time.Duration
	ReconnectBackoff time.Duration

	MinBrightness float64
	MaxBrightness float64
	MinDimension  int
	MaxDimension  int
	TargetWidth   int
	TargetHeight  int
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() *Config {
	godotenv.Load()

	return &Config{
		Port:   getEnvAsInt("PORT", 8080),
		DBPath: getEnv("DB_PATH", filepath.Join(".", "ppewatch.db")),

		DetectorEndpoint: getEnv("DETECTOR_ENDPOINT", "http://localhost:8000"),
		DetectorTimeout:  getEnvAsDuration("DETECTOR_TIMEOUT", 15*time.Second),

		ViolationDir:  getEnv("VIOLATION_DIR", filepath.Join(".", "violations")),
		LogPath:       getEnv("VIOLATION_LOG", filepath.Join(".", "violations", "violations.log")),
		FlushInterval: getEnvAsDuration("FLUSH_INTERVAL", 30*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		AlertCooldown: getEnvAsDuration("ALERT_COOLDOWN", 5*time.Minute),
		WebhookURL:    getEnv("ALERT_WEBHOOK_URL", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		FPS:              getEnvAsInt("CAPTURE_FPS", 10),
		ProcessEveryNth:  getEnvAsInt("PROCESS_EVERY_NTH", 2),
		MaxReconnects:    getEnvAsInt("MAX_RECONNECTS", 3),
		OpenTimeout:      getEnvAsDuration("CAPTURE_OPEN_TIMEOUT", 10*time.Second),
		ReadTimeout:      getEnvAsDuration("CAPTURE_READ_TIMEOUT", 3*time.Second),
		ReconnectBackoff: getEnvAsDuration("RECONNECT_BACKOFF", 2*time.Second),

		MinBrightness: getEnvAsFloat("MIN_BRIGHTNESS", 5),
		MaxBrightness: getEnvAsFloat("MAX_BRIGHTNESS", 250),
		MinDimension:  getEnvAsInt("MIN_DIMENSION", 50),
		MaxDimension:  getEnvAsInt("MAX_DIMENSION", 4000),
		TargetWidth:   getEnvAsInt("TARGET_WIDTH", 1280),
		TargetHeight:  getEnvAsInt("TARGET_HEIGHT", 720),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
