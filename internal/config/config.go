package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NewRelic NewRelicConfig
	Trip     TripConfig
	Fare     FareConfig
	Ledger   LedgerConfig
	Kafka    KafkaConfig
	MQTT     MQTTConfig
	Auth     AuthConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// TripConfig holds trip lifecycle configuration.
type TripConfig struct {
	AutoMatch      bool    // Run matching right after a trip is created
	SearchRadiusKm float64 // Default matching radius
	AvgSpeedKmh    float64 // Used for duration estimates
}

// FareConfig holds the tariff in minor currency units.
type FareConfig struct {
	BaseFare       int64
	PerKm          int64
	PerMinute      int64
	PlatformFeeBps int64
}

// Ledger modes.
const (
	LedgerModeSimulated = "simulated"
	LedgerModeRPC       = "rpc"
)

// LedgerConfig holds settlement ledger configuration.
type LedgerConfig struct {
	Mode              string
	RPCURL            string
	PackageID         string
	EscrowAddress     string
	PlatformWallet    string
	GasBudget         int64
	Timeout           time.Duration
	ToleranceBps      int64 // Allowed deviation between expected and received funding
	RequestsPerSecond float64
	Burst             int
	ReceiptsEnabled   bool
}

// KafkaConfig holds trip event publishing configuration.
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// MQTTConfig holds vehicle telemetry configuration.
type MQTTConfig struct {
	Enabled   bool
	BrokerURL string
	ClientID  string
	Topic     string
}

// AuthConfig holds bearer token configuration.
type AuthConfig struct {
	JWTSecret string
	Required  bool
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string
	Format string // "json" or "text"
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "autodrive"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "autodrive"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
		Trip: TripConfig{
			AutoMatch:      getBoolEnv("TRIP_AUTO_MATCH", false),
			SearchRadiusKm: getFloatEnv("TRIP_SEARCH_RADIUS_KM", 10),
			AvgSpeedKmh:    getFloatEnv("TRIP_AVG_SPEED_KMH", 30),
		},
		Fare: FareConfig{
			BaseFare:       getInt64Env("FARE_BASE", 50000),
			PerKm:          getInt64Env("FARE_PER_KM", 10000),
			PerMinute:      getInt64Env("FARE_PER_MINUTE", 1000),
			PlatformFeeBps: getInt64Env("FARE_PLATFORM_FEE_BPS", 1000),
		},
		Ledger: LedgerConfig{
			Mode:              getEnv("LEDGER_MODE", LedgerModeSimulated),
			RPCURL:            getEnv("LEDGER_RPC_URL", "http://localhost:9000"),
			PackageID:         getEnv("LEDGER_PACKAGE_ID", ""),
			EscrowAddress:     getEnv("LEDGER_ESCROW_ADDRESS", "0xescrow"),
			PlatformWallet:    getEnv("LEDGER_PLATFORM_WALLET", "0xplatform"),
			GasBudget:         getInt64Env("LEDGER_GAS_BUDGET", 10000000),
			Timeout:           getDurationEnv("LEDGER_TIMEOUT", 15*time.Second),
			ToleranceBps:      getInt64Env("LEDGER_TOLERANCE_BPS", 500),
			RequestsPerSecond: getFloatEnv("LEDGER_RPS", 10),
			Burst:             getIntEnv("LEDGER_BURST", 5),
			ReceiptsEnabled:   getBoolEnv("LEDGER_RECEIPTS_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Enabled: getBoolEnv("KAFKA_ENABLED", false),
			Brokers: getListEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TRIP_TOPIC", "trip.events"),
		},
		MQTT: MQTTConfig{
			Enabled:   getBoolEnv("MQTT_ENABLED", false),
			BrokerURL: getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
			ClientID:  getEnv("MQTT_CLIENT_ID", "autodrive-telemetry"),
			Topic:     getEnv("MQTT_TOPIC", "vehicles/+/position"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Required:  getBoolEnv("AUTH_REQUIRED", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
