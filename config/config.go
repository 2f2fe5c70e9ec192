package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ncmfm/logger"
)

// Config stores the application configuration.
// Integrations with an empty host/endpoint are treated as disabled.
type Config struct {
	FFmpegPath string

	// Netease weapi
	NeteaseBaseURL   string
	NeteaseTimeout   time.Duration
	NeteaseUserAgent string // empty keeps the client's built-in mobile UA

	// HTTP server
	HTTPAddr string

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// MySQL (play history)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置 (now playing)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	NowPlayingTTL time.Duration

	// MinIO (PCM capture)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string
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

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("10s") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() does not override variables that are already set.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),

		NeteaseBaseURL:   getEnv("NETEASE_BASE_URL", "https://music.163.com/weapi"),
		NeteaseTimeout:   getEnvDuration("NETEASE_TIMEOUT", 10*time.Second),
		NeteaseUserAgent: getEnv("NETEASE_USER_AGENT", ""),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "ncmfm"),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		NowPlayingTTL: getEnvDuration("NOW_PLAYING_TTL", 6*time.Hour),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "ncmfm"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", ""),
	}
}

// LoggerConfig maps the logging settings onto logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      logger.LogLevel(c.LogLevel),
		OutputPath: c.LogFile,
		MaxSize:    c.LogMaxSize,
		MaxBackups: c.LogMaxBackups,
		MaxAge:     c.LogMaxAge,
		Compress:   true,
	}
}

func (c *Config) DatabaseEnabled() bool { return c.DBHost != "" }

func (c *Config) RedisEnabled() bool { return c.RedisHost != "" }

func (c *Config) MinioEnabled() bool { return c.MinioEndpoint != "" }
