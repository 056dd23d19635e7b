package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Graph sources
const (
	SourceFile = "file"
	SourceDB   = "db"
)

type Config struct {
	LogLevel        zapcore.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	GraphSource     string
	GraphFile       string
	IndoorDir       string
	EntrancesFile   string
	CalibrationFile string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	SearchRadii     []float64
	SnapRadius      float64
	DoorMaxDistance float64

	PortalGeoThreshold    float64
	PortalPlanarThreshold float64
	PortalEntryCost       float64
	HybridGeoRadius       float64

	WorkerCount int
	WorkerQueue int

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	NATSURL     string
	NATSSubject string

	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string
}

// Load reads the configuration from the environment. A .env file in the
// working directory, when present, seeds variables that are not already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	radii, err := getFloatListEnv("SEARCH_RADII", []float64{500, 1000, 2000})
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", zapcore.InfoLevel),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		GraphSource:     strings.ToLower(getEnv("GRAPH_SOURCE", SourceFile)),
		GraphFile:       getEnv("GRAPH_FILE", "graph.json"),
		IndoorDir:       getEnv("INDOOR_DIR", ""),
		EntrancesFile:   getEnv("ENTRANCES_FILE", ""),
		CalibrationFile: getEnv("CALIBRATION_FILE", ""),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "navuser"),
		DBPassword: getEnv("DB_PASSWORD", "navpassword"),
		DBName:     getEnv("DB_NAME", "precinct"),

		SearchRadii:     radii,
		SnapRadius:      getFloatEnv("SNAP_RADIUS", 2),
		DoorMaxDistance: getFloatEnv("DOOR_MAX_DISTANCE", 50),

		PortalGeoThreshold:    getFloatEnv("PORTAL_GEO_THRESHOLD", 30),
		PortalPlanarThreshold: getFloatEnv("PORTAL_PLANAR_THRESHOLD", 50),
		PortalEntryCost:       getFloatEnv("PORTAL_ENTRY_COST", 5),
		HybridGeoRadius:       getFloatEnv("HYBRID_GEO_RADIUS", 250),

		WorkerCount: getIntEnv("WORKER_COUNT", 4),
		WorkerQueue: getIntEnv("WORKER_QUEUE", 64),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", 10*time.Minute),

		NATSURL:     getEnv("NATS_URL", ""),
		NATSSubject: getEnv("NATS_SUBJECT", "wayfinding.graph.rebuilt"),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		AdminUser:         getEnv("ADMIN_USER", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
	}

	if cfg.GraphSource != SourceFile && cfg.GraphSource != SourceDB {
		return nil, fmt.Errorf("GRAPH_SOURCE must be %q or %q, got %q", SourceFile, SourceDB, cfg.GraphSource)
	}
	return cfg, nil
}

// DSN is the postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort,
	)
}

// AdminEnabled reports whether the admin endpoints can authenticate anyone.
func (c *Config) AdminEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
}

// NewLogger builds the process logger: human-readable at debug level,
// production JSON otherwise.
func (c *Config) NewLogger() (*zap.Logger, error) {
	if c.LogLevel == zapcore.DebugLevel {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return zc.Build()
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal zapcore.Level) zapcore.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(v))); err != nil {
		return defaultVal
	}
	return lvl
}

// getFloatListEnv parses a comma separated list of positive numbers. The
// list must be increasing.
func getFloatListEnv(key string, defaultVal []float64) ([]float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	var out []float64
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("%s: invalid radius %q", key, part)
		}
		if len(out) > 0 && f <= out[len(out)-1] {
			return nil, fmt.Errorf("%s: radii must increase, got %v after %v", key, f, out[len(out)-1])
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return defaultVal, nil
	}
	return out, nil
}
