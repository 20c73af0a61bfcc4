package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backends selectable through STORE_BACKEND.
const (
	StoreMongo  = "mongo"
	StoreS3     = "s3"
	StoreMemory = "memory"
)

var (
	// EnvFileLoaded reports whether LoadConfig found a .env file.
	EnvFileLoaded bool

	AppEnv string
	Port   string

	GeminiAPIKey string
	GeminiModel  string
	RelayTimeout time.Duration

	StoreBackend   string
	MongoURI       string
	DBName         string
	AWSRegion      string
	AWSBucketName  string
	SubscribersKey string

	AdminSecret string

	SendGridAPIKey string
	EmailFromName  string
	EmailFromAddr  string

	RateLimitPerMin int
	AllowedOrigin   string
	TrustProxy      bool
)

// LoadConfig loads environment variables from .env file
func LoadConfig() {
	EnvFileLoaded = godotenv.Load() == nil

	AppEnv = getEnv("APP_ENV", "production")
	Port = getEnv("PORT", "8080")

	GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	GeminiModel = getEnv("GEMINI_MODEL", "gemini-2.5-flash-image-preview")
	RelayTimeout = time.Second * time.Duration(getEnvInt("RELAY_TIMEOUT_SECONDS", 30))

	StoreBackend = getEnv("STORE_BACKEND", StoreMongo)
	MongoURI = getEnv("MONGO_URI", "mongodb://localhost:27017/")
	DBName = getEnv("DB_NAME", "fitcheckr")
	AWSRegion = getEnv("AWS_REGION", "us-east-1")
	AWSBucketName = os.Getenv("AWS_BUCKET_NAME")
	SubscribersKey = getEnv("SUBSCRIBERS_KEY", "fitcheckr:subscribers")

	AdminSecret = os.Getenv("ADMIN_SECRET")

	SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	EmailFromName = getEnv("EMAIL_FROM_NAME", "FitCheckr")
	EmailFromAddr = getEnv("EMAIL_FROM_ADDRESS", "no-reply@fitcheckr.app")

	RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MINUTE", 30)
	AllowedOrigin = getEnv("ALLOWED_ORIGIN", "*")
	TrustProxy = getEnv("TRUST_PROXY", "false") == "true"
}

// Validate reports settings that the selected backends cannot run without.
func Validate() error {
	if GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	switch StoreBackend {
	case StoreMongo:
		if MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store")
		}
	case StoreS3:
		if AWSBucketName == "" {
			return fmt.Errorf("AWS_BUCKET_NAME is required for the s3 store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", StoreBackend)
	}
	if RelayTimeout <= 0 {
		return fmt.Errorf("RELAY_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
