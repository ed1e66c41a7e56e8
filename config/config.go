package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	// MinioPublicBaseURL overrides the URL prefix used for public object links.
	// Empty means the URL is derived from MinioEndpoint.
	MinioPublicBaseURL string

	// 音乐生成API配置
	MusicAPIBaseURL string
	MusicAPIKey     string

	JWTSecret string

	// 生成任务相关参数
	CreditCostPerGeneration int           // 每次生成消耗的积分
	PollInterval            time.Duration // 轮询间隔
	PollMaxAttempts         int           // 轮询次数上限，超过即超时
	ResultDisplayDelay      time.Duration // 终态展示时长，之后状态机自动复位
	PendingTaskTTL          time.Duration // 待处理任务的过期时间
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"), // Default to localhost if not set
		DBPort:     getEnv("DB_PORT", "3306"),      // Default to standard MySQL port
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "octamuse"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),     // 默认使用0号数据库

		MinioEndpoint:      getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:        getEnv("MINIO_REGION", "us-east-1"),
		MinioPublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),

		MusicAPIBaseURL: getEnv("MUSIC_API_BASE_URL", "https://apibox.erweima.ai/api/v1"),
		MusicAPIKey:     os.Getenv("MUSIC_API_KEY"),

		JWTSecret: getEnv("JWT_SECRET", "octamuse-dev-secret"),

		CreditCostPerGeneration: getEnvInt("CREDIT_COST_PER_GENERATION", 10),
		PollInterval:            time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 10)) * time.Second,
		PollMaxAttempts:         getEnvInt("POLL_MAX_ATTEMPTS", 60),
		ResultDisplayDelay:      time.Duration(getEnvInt("RESULT_DISPLAY_DELAY_SECONDS", 8)) * time.Second,
		PendingTaskTTL:          time.Duration(getEnvInt("PENDING_TASK_TTL_HOURS", 24)) * time.Hour,
	}
}
