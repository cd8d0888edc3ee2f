package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Telegram
	TelegramBotToken string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT / admin dashboard
	JWTSecret     string
	AdminPassword string

	// Gemini AI
	GeminiAPIKey         string
	GeminiConcurrentReqs int

	// Scheduler
	SweepInterval time.Duration
	AnswerTimeout time.Duration
	ExamPacing    time.Duration

	// Storage
	StoragePath string

	// Workers
	WorkerCount int

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		Env:                  getEnvOrDefault("ENV", "development"),
		TelegramBotToken:     mustGetEnv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:          mustGetEnv("DATABASE_URL"),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		AdminPassword:        mustGetEnv("ADMIN_PASSWORD"),
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		SweepInterval:        getEnvAsDurationOrDefault("SCHEDULER_SWEEP_INTERVAL", time.Minute),
		AnswerTimeout:        getEnvAsDurationOrDefault("ANSWER_TIMEOUT", 5*time.Minute),
		ExamPacing:           getEnvAsDurationOrDefault("EXAM_PACING", 2*time.Second),
		StoragePath:          getEnvOrDefault("STORAGE_PATH", "./uploads"),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 3),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
