package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool

	DBType            string
	DBPath            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	License   LicenseConfig
	Session   SessionConfig
	Recurring RecurringConfig
	Bootstrap BootstrapConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// LicenseConfig is the static part of the licensing surface. Feature maps
// live in LicenseConfigHolder because they can be reloaded at runtime.
type LicenseConfig struct {
	Enabled            bool
	APIURL             string
	CacheDuration      time.Duration
	OfflineGracePeriod time.Duration
	HardwareIDMethod   string
	ManualHardwareID   string
	DocumentRoot       string
	RequestTimeout     time.Duration
	FeaturesFile       string
}

type SessionConfig struct {
	CookieName             string
	TTL                    time.Duration
	IdleTimeout            time.Duration
	LicenseRecheckInterval time.Duration
}

type RecurringConfig struct {
	ProcessOnLogin  bool
	ProcessInterval time.Duration
	UpcomingDays    int
	LockTTL         time.Duration
}

// RateLimitConfig throttles login attempts per client IP. It only takes
// effect when Redis is configured.
type RateLimitConfig struct {
	LoginRate  float64
	LoginBurst int
}

// TelemetryConfig feeds the observability module. OTEL_* names follow the
// OpenTelemetry exporter conventions.
type TelemetryConfig struct {
	LogLevel       string
	LogFormat      string
	TracingEnabled bool
	OTLPEndpoint   string
	OTLPProtocol   string
	SamplingRatio  float64
}

type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
}

const (
	HardwareIDMethodAuto    = "auto"
	HardwareIDMethodManual  = "manual"
	HardwareIDMethodIPBased = "ip_based"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	cfg := Config{
		AppName:          getenv("APP_SERVICE", "fintrack"),
		AppVersion:       getenv("APP_VERSION", "1.0.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "sqlite")),
		DBPath:            getenv("DATABASE_PATH", "fintrack.db"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "fintrack"),
		DBUser:            getenv("DATABASE_USER", "fintrack"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 10),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		License: LicenseConfig{
			Enabled:            getenvBool("LICENSE_ENABLED", true),
			APIURL:             strings.TrimRight(strings.TrimSpace(getenv("LICENSE_API_URL", "https://license.fintrack.app/api")), "/"),
			CacheDuration:      time.Duration(getenvInt("LICENSE_CACHE_DURATION", 3600)) * time.Second,
			OfflineGracePeriod: time.Duration(getenvInt("LICENSE_OFFLINE_GRACE_DAYS", 7)) * 24 * time.Hour,
			HardwareIDMethod:   normalizeHardwareIDMethod(getenv("LICENSE_HARDWARE_ID_METHOD", HardwareIDMethodAuto)),
			ManualHardwareID:   strings.TrimSpace(getenv("LICENSE_HARDWARE_ID", "")),
			DocumentRoot:       strings.TrimSpace(getenv("LICENSE_DOCUMENT_ROOT", "")),
			RequestTimeout:     getenvDuration("LICENSE_REQUEST_TIMEOUT", 10*time.Second),
			FeaturesFile:       getenv("LICENSE_FEATURES_FILE", ""),
		},
		Session: SessionConfig{
			CookieName:             strings.TrimSpace(getenv("SESSION_COOKIE_NAME", "_sid")),
			TTL:                    getenvDuration("SESSION_TTL", 7*24*time.Hour),
			IdleTimeout:            getenvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			LicenseRecheckInterval: getenvDuration("LICENSE_RECHECK_INTERVAL", 30*time.Minute),
		},
		Recurring: RecurringConfig{
			ProcessOnLogin:  getenvBool("RECURRING_PROCESS_ON_LOGIN", true),
			ProcessInterval: getenvDuration("RECURRING_PROCESS_INTERVAL", 0),
			UpcomingDays:    getenvInt("RECURRING_UPCOMING_DAYS", 7),
			LockTTL:         getenvDuration("RECURRING_LOCK_TTL", 30*time.Second),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_USERNAME", "")),
			AdminPassword: getenv("BOOTSTRAP_ADMIN_PASSWORD", ""),
		},
		RateLimit: RateLimitConfig{
			LoginRate:  getenvFloat("LOGIN_RATE_PER_SECOND", 0.2),
			LoginBurst: getenvInt("LOGIN_RATE_BURST", 5),
		},
		Telemetry: TelemetryConfig{
			LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			TracingEnabled: getenvBool("OTEL_ENABLED", false),
			OTLPEndpoint:   strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OTLPProtocol:   strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeHardwareIDMethod(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case HardwareIDMethodManual, HardwareIDMethodIPBased:
		return value
	default:
		return HardwareIDMethodAuto
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("30m") or plain seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
