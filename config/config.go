package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	MinIO    MinIOConfig
	OpenAI   OpenAIConfig
	Kafka    KafkaConfig
	Server   ServerConfig
	Capture  CaptureConfig
}

type DatabaseConfig struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
}

type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

// OpenAIConfig holds the Whisper transcription settings. Model is the
// preferred high-accuracy tier; FallbackModel is tried once when the
// provider rejects the primary model.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	FallbackModel string
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

type ServerConfig struct {
	Port        string
	MetricsPort string
	JWTSecret   string
}

type CaptureConfig struct {
	FFmpegBinaryPath string
	TempDir          string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using system env")
	}

	return &Config{
		Database: DatabaseConfig{
			DBUser:     getEnv("DB_USER", "postgres"),
			DBPassword: getEnv("DB_PASSWORD", "password"),
			DBHost:     getEnv("DB_HOST", "localhost"),
			DBPort:     getEnv("DB_PORT", "5432"),
			DBName:     getEnv("DB_NAME", "keepsakedb"),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     getEnv("MINIO_ACCESS_KEY", ""),
			SecretAccessKey: getEnv("MINIO_SECRET_KEY", ""),
			UseSSL:          getEnvBool("MINIO_USE_SSL", false),
			BucketName:      getEnv("MINIO_BUCKET_NAME", "story-assets"),
		},
		OpenAI: OpenAIConfig{
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-transcribe"),
			FallbackModel: getEnv("OPENAI_FALLBACK_MODEL", "whisper-1"),
		},
		Kafka: KafkaConfig{
			Brokers: getEnv("KAFKA_BROKERS", ""),
			Topic:   getEnv("KAFKA_TOPIC", "story-asset-events"),
		},
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			MetricsPort: getEnv("METRICS_PORT", "2112"),
			JWTSecret:   getEnv("JWT_SECRET", ""),
		},
		Capture: CaptureConfig{
			FFmpegBinaryPath: getEnv("FFMPEG_BINARY_PATH", "ffmpeg"),
			TempDir:          getEnv("TEMP_DIR", "/tmp/keepsake"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
