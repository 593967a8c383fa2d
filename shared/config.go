// shared/config.go
package shared

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort                = "13001"
	DefaultDownloadsDir        = "downloads"
	DefaultYtDlpPath           = "yt-dlp"
	DefaultFFmpegPath          = "ffmpeg"
	DefaultSessionTTL          = 10 * time.Minute
	DefaultMaxConcurrent       = 3
	DefaultStallTimeoutSeconds = 120
	DefaultProbeTimeoutSeconds = 60
	DefaultRateLimitRPM        = 300
	DefaultAllowedOrigins      = "*"
)

// Config holds global configuration for the service
type Config struct {
	Port         string
	DownloadsDir string
	// External binaries configuration
	YtDlpPath  string
	FFmpegPath string
	// How long a completed session (and its file) survives before the sweep removes it
	SessionTTL time.Duration
	// Maximum number of fetch jobs running external processes at once
	MaxConcurrent int
	// A job whose process stays silent for this long is killed and reported
	// as failed. Zero disables the watchdog.
	StallTimeout time.Duration
	// Upper bound on metadata probe duration
	ProbeTimeout time.Duration
	// Redis (optional). If RedisAddr is empty, in-memory implementations are used.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// CORS
	AllowedOrigins []string
	// Rate limiting (requests per minute per IP)
	RateLimitRPM int
}

// LoadConfig loads configuration from environment variables or uses defaults
func LoadConfig() *Config {
	maxConcurrent := DefaultMaxConcurrent
	if v := os.Getenv("MAX_CONCURRENT_DOWNLOADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxConcurrent = n
		} else {
			log.Printf("INFO: MAX_CONCURRENT_DOWNLOADS invalid, using default: %d", maxConcurrent)
		}
	}

	sessionTTL := DefaultSessionTTL
	if v := os.Getenv("SESSION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			sessionTTL = time.Duration(n) * time.Minute
		}
	}

	stallSeconds := DefaultStallTimeoutSeconds
	if v := os.Getenv("STALL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			stallSeconds = n
		}
	}

	probeSeconds := DefaultProbeTimeoutSeconds
	if v := os.Getenv("PROBE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			probeSeconds = n
		}
	}

	rateLimit := DefaultRateLimitRPM
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateLimit = n
		}
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			redisDB = n
		}
	}

	allowedOriginsCSV := os.Getenv("ALLOWED_ORIGINS")
	if strings.TrimSpace(allowedOriginsCSV) == "" {
		allowedOriginsCSV = DefaultAllowedOrigins
	}

	return &Config{
		Port:           valueOrDefault(os.Getenv("PORT"), DefaultPort),
		DownloadsDir:   valueOrDefault(os.Getenv("DOWNLOADS_DIR"), DefaultDownloadsDir),
		YtDlpPath:      valueOrDefault(os.Getenv("YTDLP_PATH"), DefaultYtDlpPath),
		FFmpegPath:     valueOrDefault(os.Getenv("FFMPEG_PATH"), DefaultFFmpegPath),
		SessionTTL:     sessionTTL,
		MaxConcurrent:  maxConcurrent,
		StallTimeout:   time.Duration(stallSeconds) * time.Second,
		ProbeTimeout:   time.Duration(probeSeconds) * time.Second,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        redisDB,
		AllowedOrigins: splitAndClean(allowedOriginsCSV),
		RateLimitRPM:   rateLimit,
	}
}

// valueOrDefault returns fallback if s is empty
func valueOrDefault(s string, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// splitAndClean splits a comma-separated list and trims spaces; empty entries are removed
func splitAndClean(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return []string{}
	}
	parts := strings.Split(csv, ",")
	var out []string
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
