package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProviderConfig holds OAuth client settings and endpoint overrides for one CRM.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	DatabaseDSN string

	JWTSecret             string
	JWTExpiry             time.Duration
	TokenEncryptionSecret string
	GoogleClientID        string
	AppBaseURL            string

	WiseAgent    ProviderConfig
	FollowUpBoss ProviderConfig
	RealGeeks    ProviderConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeMonthlyPrice  string
	StripeAnnualPrice   string

	MLSBaseURL string
	MLSAPIKey  string

	GoogleMapsAPIKey string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	CORSAllowedOrigins    []string
	RateLimitRPM          int
	ReminderSweepInterval time.Duration
	ReminderBatchSize     int
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	encSecret := strings.TrimSpace(os.Getenv("TOKEN_ENCRYPTION_SECRET"))
	if encSecret == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_SECRET is required")
	}

	env := getEnv("APP_ENV", "development")
	dsn, err := databaseDSN(env)
	if err != nil {
		return Config{}, err
	}

	jwtExpiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid JWT_EXPIRY format: %w", err)
	}
	sweepInterval, err := time.ParseDuration(getEnv("REMINDER_SWEEP_INTERVAL", "1m"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REMINDER_SWEEP_INTERVAL format: %w", err)
	}

	cfg := Config{
		Environment:           env,
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		DatabaseDSN:           dsn,
		JWTSecret:             jwtSecret,
		JWTExpiry:             jwtExpiry,
		TokenEncryptionSecret: encSecret,
		GoogleClientID:        os.Getenv("GOOGLE_CLIENT_ID"),
		AppBaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),

		WiseAgent:    loadProvider("WISE_AGENT"),
		FollowUpBoss: loadProvider("FOLLOW_UP_BOSS"),
		RealGeeks:    loadProvider("REAL_GEEKS"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SendGridAPIKey:    os.Getenv("SENDGRID_API_KEY"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "reminders@realtorvoice.app"),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Realtor Voice"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeMonthlyPrice:  os.Getenv("STRIPE_MONTHLY_PRICE_ID"),
		StripeAnnualPrice:   os.Getenv("STRIPE_ANNUAL_PRICE_ID"),

		MLSBaseURL: os.Getenv("MLS_BASE_URL"),
		MLSAPIKey:  os.Getenv("MLS_API_KEY"),

		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),

		CORSAllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		RateLimitRPM:          getEnvInt("RATE_LIMIT_RPM", 120),
		ReminderSweepInterval: sweepInterval,
		ReminderBatchSize:     getEnvInt("REMINDER_BATCH_SIZE", 100),
	}
	return cfg, nil
}

// IsProduction reports whether the service runs in release mode.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// databaseDSN uses DATABASE_URL in production and discrete settings elsewhere.
func databaseDSN(env string) (string, error) {
	if env == "production" {
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			return "", fmt.Errorf("DATABASE_URL is required in production")
		}
		return dsn, nil
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn, nil
	}

	required := []string{"DB_HOST", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_PORT"}
	values := make(map[string]string, len(required))
	for _, key := range required {
		value, ok := os.LookupEnv(key)
		if !ok {
			return "", fmt.Errorf("required environment variable %s is not set", key)
		}
		values[key] = value
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		values["DB_HOST"], values["DB_USER"], values["DB_PASSWORD"], values["DB_NAME"], values["DB_PORT"],
		getEnv("DB_SSL_MODE", "disable")), nil
}

func loadProvider(prefix string) ProviderConfig {
	return ProviderConfig{
		ClientID:     strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
		ClientSecret: strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET")),
		RedirectURL:  os.Getenv(prefix + "_REDIRECT_URL"),
		AuthURL:      os.Getenv(prefix + "_AUTH_URL"),
		TokenURL:     os.Getenv(prefix + "_TOKEN_URL"),
		APIURL:       os.Getenv(prefix + "_API_URL"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
