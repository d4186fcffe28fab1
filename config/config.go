package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"teamcollab/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// IdentityConfig describes how externally issued ID tokens are verified.
// Either a shared HMAC secret or a file of RSA public keys/certificates keyed
// by kid (the layout of Google's securetoken x509 endpoint) must be set.
type IdentityConfig struct {
	JWTSecret      string `json:"-"`
	PublicKeysFile string `json:"public_keys_file"`
	Issuer         string `json:"issuer"`
	Audience       string `json:"audience"`
}

type RelayConfig struct {
	ChannelPrefix string        `json:"channel_prefix"`
	SendBuffer    int           `json:"send_buffer"`
	PingInterval  time.Duration `json:"ping_interval"`
}

type Config struct {
	Environment        string         `json:"environment"`
	ServerPort         string         `json:"server_port"`
	DBHost             string         `json:"db_host"`
	DBPort             string         `json:"db_port"`
	DBUser             string         `json:"db_user"`
	DBPassword         string         `json:"-"`
	DBName             string         `json:"db_name"`
	DBSSLMode          string         `json:"db_ssl_mode"`
	DBMaxIdleConns     int            `json:"db_max_idle_conns"`
	DBMaxOpenConns     int            `json:"db_max_open_conns"`
	LogLevel           string         `json:"log_level"`
	LogFormat          string         `json:"log_format"`
	SentryDSN          string         `json:"-"`
	CORSAllowedOrigins []string       `json:"cors_allowed_origins"`
	RateLimitWrites    int            `json:"rate_limit_writes"`
	Identity           IdentityConfig `json:"identity"`
	Redis              RedisConfig    `json:"redis"`
	Relay              RelayConfig    `json:"relay"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "teamcollab"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		SentryDSN:          getEnv("SENTRY_DSN", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitWrites:    getEnvAsInt("RATE_LIMIT_WRITES", 30),

		Identity: IdentityConfig{
			JWTSecret:      getEnv("IDENTITY_JWT_SECRET", ""),
			PublicKeysFile: getEnv("IDENTITY_PUBLIC_KEYS_FILE", ""),
			Issuer:         getEnv("IDENTITY_ISSUER", ""),
			Audience:       getEnv("IDENTITY_AUDIENCE", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Relay: RelayConfig{
			ChannelPrefix: getEnv("RELAY_CHANNEL_PREFIX", "teamcollab:room:"),
			SendBuffer:    getEnvAsInt("RELAY_SEND_BUFFER", 64),
			PingInterval:  getEnvAsDuration("RELAY_PING_INTERVAL", 30*time.Second),
		},
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

// Validate checks the values the process cannot start without.
func (c Config) Validate() error {
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Identity.JWTSecret == "" && c.Identity.PublicKeysFile == "" {
		return fmt.Errorf("IDENTITY_JWT_SECRET or IDENTITY_PUBLIC_KEYS_FILE is required")
	}
	if c.Environment == "production" {
		if c.Identity.Issuer == "" || c.Identity.Audience == "" {
			return fmt.Errorf("IDENTITY_ISSUER and IDENTITY_AUDIENCE are required in production")
		}
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("RELAY_SEND_BUFFER must be positive")
	}
	return nil
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	dsn := AppConfig.DSN()
	logrus.WithField("dsn", maskPassword(dsn)).Debug("Using connection string")

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logrus.Info("Successfully connected to the database")
	logrus.Info("Starting database migration...")
	if err := Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("Database migration completed")
	return nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.AllModels()...)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment": AppConfig.Environment,
		"server_port": AppConfig.ServerPort,
		"database": fmt.Sprintf("%s@%s:%s/%s",
			AppConfig.DBUser,
			AppConfig.DBHost,
			AppConfig.DBPort,
			AppConfig.DBName),
		"identity_hmac":  AppConfig.Identity.JWTSecret != "",
		"identity_rsa":   AppConfig.Identity.PublicKeysFile != "",
		"redis_enabled":  AppConfig.Redis.Enabled,
		"sentry_enabled": AppConfig.SentryDSN != "",
	}).Info("Loaded configuration")
}
