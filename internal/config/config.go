package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Storage. DatabaseURL empty means in-memory stores.
	DatabaseURL  string
	MaxPositions int
	SeedPath     string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTTL      time.Duration

	// Speed estimation.
	SpeedMode       string // "window" or "ema"
	SpeedLookback   time.Duration
	SpeedMinMps     float64
	SpeedMaxMps     float64
	SpeedDefaultMps float64
	SpeedEMAAlpha   float64
	SpeedNoiseFloor float64

	// Baseline ETA.
	ArrivalRadiusM float64
	DwellSec       int
	MinETASec      int

	// Ensemble.
	ETACacheTTL       time.Duration
	SmoothWindow      int
	ArriveNearM       float64
	NearCapSec        int
	ProviderAbsSec    int
	ProviderFactor    float64
	FarRejectM        float64
	ConfidenceBandSec int
	ProviderTimeout   time.Duration
	LateralLowConfM   float64
	FarMidConfM       float64

	// External directions providers. Empty key disables the provider.
	TmapBaseURL  string
	TmapAppKey   string
	KakaoBaseURL string
	KakaoRESTKey string

	// Vehicle state classification.
	NoSignalSec        int64
	MonitorLookbackSec int64
	StallSec           int64
	StallRadiusM       float64
	CongestionSpeedMps float64

	// Auth and ingest.
	Credentials      []string // "user:pass" entries
	TokenTTL         time.Duration
	RequireSignature bool

	// Live updates.
	WSBufferSize      int
	NATSEnabled       bool
	NATSURL           string
	NATSSubjectPrefix string

	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateLimitWhitelist []string
}

func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		MaxPositions: getIntEnv("MAX_POSITIONS_PER_VEHICLE", 1000),
		SeedPath:     getEnv("SEED_PATH", "seed.yaml"),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisTTL:      getDurationEnv("REDIS_TTL", time.Hour),

		SpeedMode:       getEnv("SPEED_MODE", "window"),
		SpeedLookback:   getDurationEnv("SPEED_LOOKBACK", 90*time.Second),
		SpeedMinMps:     getFloatEnv("SPEED_MIN_MPS", 1.5),
		SpeedMaxMps:     getFloatEnv("SPEED_MAX_MPS", 16.0),
		SpeedDefaultMps: getFloatEnv("SPEED_DEFAULT_MPS", 5.0),
		SpeedEMAAlpha:   getFloatEnv("SPEED_EMA_ALPHA", 0.4),
		SpeedNoiseFloor: getFloatEnv("SPEED_NOISE_FLOOR_MPS", 0.3),

		ArrivalRadiusM: getFloatEnv("ARRIVAL_RADIUS_M", 25),
		DwellSec:       getIntEnv("DWELL_SEC", 12),
		MinETASec:      getIntEnv("MIN_ETA_SEC", 5),

		ETACacheTTL:       getDurationEnv("ETA_CACHE_TTL", 3*time.Second),
		SmoothWindow:      getIntEnv("ETA_SMOOTH_WINDOW", 5),
		ArriveNearM:       getFloatEnv("ETA_ARRIVE_NEAR_M", 40),
		NearCapSec:        getIntEnv("ETA_NEAR_CAP_SEC", 10),
		ProviderAbsSec:    getIntEnv("ETA_PROVIDER_ABS_SEC", 90),
		ProviderFactor:    getFloatEnv("ETA_PROVIDER_FACTOR", 2.0),
		FarRejectM:        getFloatEnv("ETA_FAR_REJECT_M", 150),
		ConfidenceBandSec: getIntEnv("ETA_CONFIDENCE_BAND_SEC", 45),
		ProviderTimeout:   getDurationEnv("PROVIDER_TIMEOUT", 2*time.Second),
		LateralLowConfM:   getFloatEnv("ETA_LATERAL_LOW_CONF_M", 30),
		FarMidConfM:       getFloatEnv("ETA_FAR_MID_CONF_M", 500),

		TmapBaseURL:  getEnv("TMAP_BASE_URL", "https://apis.openapi.sk.com"),
		TmapAppKey:   os.Getenv("TMAP_APP_KEY"),
		KakaoBaseURL: getEnv("KAKAO_BASE_URL", "https://apis-navi.kakaomobility.com"),
		KakaoRESTKey: os.Getenv("KAKAO_REST_KEY"),

		NoSignalSec:        int64(getIntEnv("NO_SIGNAL_SEC", 120)),
		MonitorLookbackSec: int64(getIntEnv("MONITOR_LOOKBACK_SEC", 600)),
		StallSec:           int64(getIntEnv("STALL_SEC", 180)),
		StallRadiusM:       getFloatEnv("STALL_RADIUS_M", 20),
		CongestionSpeedMps: getFloatEnv("CONGESTION_SPEED_MPS", 1.5),

		Credentials:      getCSVEnv("ADMIN_CREDENTIALS"),
		TokenTTL:         getDurationEnv("TOKEN_TTL", 12*time.Hour),
		RequireSignature: getBoolEnv("REQUIRE_DEVICE_SIGNATURE", false),

		WSBufferSize:      getIntEnv("WS_BUFFER_SIZE", 32),
		NATSEnabled:       getBoolEnv("NATS_ENABLED", false),
		NATSURL:           getEnv("NATS_URL", "nats://localhost:4222"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "campusbus"),

		RateLimitPerWindow: getIntEnv("RATE_LIMIT_PER_WINDOW", 120),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if cfg.SpeedMode != "window" && cfg.SpeedMode != "ema" {
		return nil, fmt.Errorf("SPEED_MODE must be \"window\" or \"ema\", got %q", cfg.SpeedMode)
	}
	if cfg.SpeedMinMps <= 0 || cfg.SpeedMaxMps <= cfg.SpeedMinMps {
		return nil, fmt.Errorf("speed clamp bounds invalid: min=%v max=%v", cfg.SpeedMinMps, cfg.SpeedMaxMps)
	}
	if cfg.SmoothWindow < 1 {
		return nil, fmt.Errorf("ETA_SMOOTH_WINDOW must be at least 1")
	}
	return cfg, nil
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

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
