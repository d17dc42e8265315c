package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string
	Env  string

	RedisAddr string
	TasksDir  string

	CoverImagePath  string
	InferenceURL    string
	InferenceDevice string
	BatchSize       int

	TaskTTL       time.Duration
	SweepInterval time.Duration

	MaxFiles    int
	MaxFileSize int64
	WorkerCount int

	UploadURL   string
	CallbackURL string

	KafkaBrokers string
	KafkaTopic   string
}

func Load() *Config {
	return &Config{
		Port:            getEnv("SERVICE_PORT", "8080"),
		Env:             getEnv("ENV", "development"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		TasksDir:        getEnv("TASKS_DIR", "tasks_storage"),
		CoverImagePath:  getEnv("COVER_IMAGE_PATH", "static/cover.png"),
		InferenceURL:    getEnv("INFERENCE_URL", "http://localhost:9090/detect"),
		InferenceDevice: getEnv("INFERENCE_DEVICE", "cpu"),
		BatchSize:       getEnvAsInt("BATCH_SIZE", 8),
		TaskTTL:         getEnvAsDuration("TASK_TTL", 24*time.Hour),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
		MaxFiles:        getEnvAsInt("MAX_FILES", 20),
		MaxFileSize:     getEnvAsInt64("MAX_FILE_SIZE", 10*1024*1024),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 4),
		UploadURL:       getEnv("UPLOAD_URL", ""),
		CallbackURL:     getEnv("CALLBACK_URL", ""),
		KafkaBrokers:    getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "plate_tasks"),
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
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
