package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port     string
	Env      string
	LogLevel string

	DBDriver   string
	DBPath     string
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	DBSSLMode  string

	VerifyToken               string
	WhatsAppToken             string
	PhoneNumberID             string
	WhatsAppBusinessAccountID string
	GraphBaseURL              string
	GraphVersion              string

	JWTSecret       string
	JWTAccessExpiry time.Duration

	AWSRegion   string
	SMSSenderID string

	CampaignWorkers int
	SyncInterval    time.Duration
	SyncMaxStalls   int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file loaded")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBPath:     getEnv("DB_PATH", "./dashboard.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "dashboard"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		VerifyToken:               getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:             getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:             getEnv("PHONE_NUMBER_ID", ""),
		WhatsAppBusinessAccountID: getEnv("WABA_ID", ""),
		GraphBaseURL:              getEnv("GRAPH_BASE_URL", "https://graph.facebook.com"),
		GraphVersion:              getEnv("GRAPH_VERSION", "v19.0"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTAccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 12*time.Hour),

		AWSRegion:   getEnv("AWS_REGION", "eu-west-1"),
		SMSSenderID: getEnv("SMS_SENDER_ID", ""),

		CampaignWorkers: getInt("CAMPAIGN_WORKERS", 5),
		SyncInterval:    getDuration("SYNC_INTERVAL", 2*time.Second),
		SyncMaxStalls:   getInt("SYNC_MAX_STALLS", 5),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
