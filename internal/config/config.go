package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gonkalabs/subkit/internal/session"
	"github.com/gonkalabs/subkit/internal/textenc"
)

// Cfg holds all runtime configuration loaded from environment variables.
type Cfg struct {
	// Server
	ListenAddr string // e.g. :8080

	// Working directories
	UploadDir string // UPLOAD_DIR=uploads
	OutputDir string // OUTPUT_DIR=outputs

	MaxUploadBytes int64 // MAX_UPLOAD_MB=25

	// Rate limiting (RATE_LIMIT_RPS=0 disables)
	RateLimitRPS   float64
	RateLimitBurst int

	// Janitor
	CleanupMaxAge   time.Duration // CLEANUP_MAX_AGE=1h
	CleanupInterval time.Duration // CLEANUP_INTERVAL=10m

	// Review tokens. An empty key means a random key per process.
	SessionKey string
	SessionTTL time.Duration

	// Profanity lexicon; empty selects the built-in one.
	LexiconFile string

	// Text decoding fallback order.
	TextEncodings []string

	LogLevel  slog.Level
	LogFormat string // text or json
}

// Load reads .env (if present) then environment variables and returns Cfg.
func Load() (*Cfg, error) {
	// Best-effort: load .env from current directory
	_ = godotenv.Load()

	cfg := &Cfg{
		ListenAddr:  ":" + str("PORT", "8080"),
		UploadDir:   str("UPLOAD_DIR", "uploads"),
		OutputDir:   str("OUTPUT_DIR", "outputs"),
		SessionKey:  strings.TrimSpace(os.Getenv("SESSION_KEY")),
		LexiconFile: strings.TrimSpace(os.Getenv("LEXICON_FILE")),
		LogFormat:   strings.ToLower(str("LOG_FORMAT", "text")),
	}

	maxMB, err := intVar("MAX_UPLOAD_MB", 25)
	if err != nil {
		return nil, err
	}
	if maxMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", maxMB)
	}
	cfg.MaxUploadBytes = int64(maxMB) << 20

	if cfg.RateLimitRPS, err = floatVar("RATE_LIMIT_RPS", 2); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if cfg.RateLimitBurst, err = intVar("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.CleanupMaxAge, err = durationVar("CLEANUP_MAX_AGE", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = durationVar("CLEANUP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval <= 0 {
		return nil, fmt.Errorf("CLEANUP_INTERVAL must be positive")
	}
	if cfg.SessionTTL, err = durationVar("SESSION_TTL", 30*time.Minute); err != nil {
		return nil, err
	}

	if cfg.SessionKey != "" {
		if _, err := session.New(cfg.SessionKey, cfg.SessionTTL); err != nil {
			return nil, fmt.Errorf("SESSION_KEY: %w", err)
		}
	}

	cfg.TextEncodings = textenc.DefaultEncodings
	if raw := strings.TrimSpace(os.Getenv("TEXT_ENCODINGS")); raw != "" {
		cfg.TextEncodings = splitList(raw)
	}
	if _, err := textenc.NewDecoder(cfg.TextEncodings); err != nil {
		return nil, fmt.Errorf("TEXT_ENCODINGS: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(str("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intVar(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	return n, nil
}

func floatVar(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, raw)
	}
	return f, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, raw)
	}
	return d, nil
}

// splitList parses "a, b,,c" into [a b c].
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
