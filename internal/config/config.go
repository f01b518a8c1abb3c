package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Feed    FeedConfig
	Storage StorageConfig
	Images  ImageConfig
	Crawler CrawlerConfig
	Server  ServerConfig
}

// FeedConfig holds credentials and tuning for the upstream listing feed
type FeedConfig struct {
	TokenURL          string
	APIURL            string
	ClientID          string
	ClientSecret      string
	PageSize          int
	MaxPages          int
	Concurrency       int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// StorageConfig holds document-store configuration
type StorageConfig struct {
	MongoURI string
	Database string
}

// ImageConfig holds image pipeline and object-storage configuration
type ImageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // Custom endpoint for local testing
	DownloadTimeout time.Duration
	MaxPerListing   int
	MaxWidth        int
	MaxHeight       int
	JPEGQuality     int
}

// CrawlerConfig holds crawl scheduling configuration
type CrawlerConfig struct {
	Interval          time.Duration
	ColdStartLookback time.Duration
	MaxLookback       time.Duration
	RunAtStartup      bool
	BatchSize         int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// Load loads configuration from environment variables with defaults.
// A missing feed client id/secret pair is the only fatal condition.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		Feed: FeedConfig{
			TokenURL:          getEnv("FEED_TOKEN_URL", "https://api.bridgedataoutput.com/api/v2/oauth2/token"),
			APIURL:            getEnv("FEED_API_URL", "https://api.bridgedataoutput.com/api/v2/OData/Property"),
			ClientID:          getEnv("FEED_CLIENT_ID", ""),
			ClientSecret:      getEnv("FEED_CLIENT_SECRET", ""),
			PageSize:          getEnvInt("FEED_PAGE_SIZE", 1000),
			MaxPages:          getEnvInt("FEED_MAX_PAGES", 10),
			Concurrency:       getEnvInt("FEED_CONCURRENCY", 10),
			RequestsPerSecond: getEnvFloat("FEED_REQUESTS_PER_SECOND", 5.0),
			Timeout:           getEnvDuration("FEED_TIMEOUT", 180*time.Second),
		},
		Storage: StorageConfig{
			MongoURI: getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "listings"),
		},
		Images: ImageConfig{
			Bucket:          getEnv("IMAGE_BUCKET", "listing-images"),
			Region:          getEnv("AWS_REGION", "us-west-2"),
			Endpoint:        getEnv("S3_ENDPOINT", ""), // For local MinIO/LocalStack
			DownloadTimeout: getEnvDuration("IMAGE_DOWNLOAD_TIMEOUT", 10*time.Second),
			MaxPerListing:   getEnvInt("IMAGES_PER_LISTING", 10),
			MaxWidth:        getEnvInt("IMAGE_MAX_WIDTH", 1280),
			MaxHeight:       getEnvInt("IMAGE_MAX_HEIGHT", 720),
			JPEGQuality:     getEnvInt("IMAGE_JPEG_QUALITY", 80),
		},
		Crawler: CrawlerConfig{
			Interval:          getEnvDuration("CRAWL_INTERVAL", 30*time.Minute),
			ColdStartLookback: getEnvDuration("CRAWL_COLD_START_LOOKBACK", 72*time.Hour),
			MaxLookback:       getEnvDuration("CRAWL_MAX_LOOKBACK", 168*time.Hour),
			RunAtStartup:      getEnvBool("CRAWL_RUN_AT_STARTUP", true),
			BatchSize:         getEnvInt("CRAWL_BATCH_SIZE", 500),
		},
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
	}

	if cfg.Feed.ClientID == "" || cfg.Feed.ClientSecret == "" {
		return nil, fmt.Errorf("FEED_CLIENT_ID and FEED_CLIENT_SECRET must be set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
