package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"mailpulse/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
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

// MonitorConfig holds the tuning knobs for the poll supervisor
type MonitorConfig struct {
	PollInterval      time.Duration `json:"poll_interval"`       // Sleep after a cycle with no new mail
	FastRecheck       time.Duration `json:"fast_recheck"`        // Sleep after a cycle that found mail
	ReconcileInterval time.Duration `json:"reconcile_interval"`  // Registry reconciliation tick
	BackoffBase       time.Duration `json:"backoff_base"`        // First wait after a failure
	BackoffMax        time.Duration `json:"backoff_max"`         // Exponential backoff cap
	FailureThreshold  int           `json:"failure_threshold"`   // Consecutive failures before cooldown
	Cooldown          time.Duration `json:"cooldown"`            // Suspension after repeated failures
	IMAPTimeout       time.Duration `json:"imap_timeout"`        // Per-operation network timeout
	LookbackDays      int           `json:"lookback_days"`       // Recency window for reply detection
	AutoRespond       bool          `json:"auto_respond"`        // Enable the auto-responder step
}

type Config struct {
	Environment    string        `json:"environment"`
	ServerPort     string        `json:"server_port"`
	EncryptionKey  string        `json:"-"`
	SentryDSN      string        `json:"-"`
	DBHost         string        `json:"db_host"`
	DBPort         string        `json:"db_port"`
	DBUser         string        `json:"db_user"`
	DBPassword     string        `json:"-"`
	DBName         string        `json:"db_name"`
	DBSSLMode      string        `json:"db_ssl_mode"`
	DBMaxIdleConns int           `json:"db_max_idle_conns"`
	DBMaxOpenConns int           `json:"db_max_open_conns"`
	RateLimitControl int         `json:"rate_limit_control"`
	Redis          RedisConfig   `json:"redis"`
	Monitor        MonitorConfig `json:"monitor"`
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
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "mailpulse"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		RateLimitControl: getEnvAsInt("RATE_LIMIT_CONTROL", 30),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		Monitor: MonitorConfig{
			PollInterval:      getEnvAsDuration("MONITOR_POLL_INTERVAL", 5*time.Minute),
			FastRecheck:       getEnvAsDuration("MONITOR_FAST_RECHECK", 30*time.Second),
			ReconcileInterval: getEnvAsDuration("MONITOR_RECONCILE_INTERVAL", 2*time.Minute),
			BackoffBase:       getEnvAsDuration("MONITOR_BACKOFF_BASE", 30*time.Second),
			BackoffMax:        getEnvAsDuration("MONITOR_BACKOFF_MAX", 15*time.Minute),
			FailureThreshold:  getEnvAsInt("MONITOR_FAILURE_THRESHOLD", 5),
			Cooldown:          getEnvAsDuration("MONITOR_COOLDOWN", time.Hour),
			IMAPTimeout:       getEnvAsDuration("MONITOR_IMAP_TIMEOUT", 30*time.Second),
			LookbackDays:      getEnvAsInt("MONITOR_LOOKBACK_DAYS", 60),
			AutoRespond:       getEnv("MONITOR_AUTO_RESPOND", "true") == "true",
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
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

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
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
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
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
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Monitor: poll=%s recheck=%s backoff=%s..%s cooldown=%s auto_respond=%t",
		AppConfig.Monitor.PollInterval,
		AppConfig.Monitor.FastRecheck,
		AppConfig.Monitor.BackoffBase,
		AppConfig.Monitor.BackoffMax,
		AppConfig.Monitor.Cooldown,
		AppConfig.Monitor.AutoRespond)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.MailboxAccount{},
		&models.Prospect{},
		&models.Campaign{},
		&models.CampaignProspect{},
		&models.ProspectList{},
		&models.ListMembership{},
		&models.FollowUpJob{},
		&models.Thread{},
		&models.ThreadMessage{},
		&models.ScanResult{},
		&models.ReplyTemplate{},
	)
}
