// Package config loads runtime settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/phobologic/codegraph/internal/archive"
)

// Auth modes understood by the identity proxy.
const (
	AuthModeJWT     = "jwt"
	AuthModeSession = "session"
)

// Trace exporters selectable with OTEL_TRACES_EXPORTER.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// Config holds service settings read from the environment.
type Config struct {
	Addr          string `validate:"required"`
	Env           string
	LogLevel      slog.Level
	TraceExporter string `validate:"oneof=none stdout"`
	Analyze       AnalyzeConfig
	Identity      IdentityConfig
}

// AnalyzeConfig bounds what an upload may contain and how long its analysis
// may run. Nil Extensions or Exclude select the archive package defaults.
type AnalyzeConfig struct {
	MaxUploadBytes int64 `validate:"gt=0"`
	MaxFileBytes   int64 `validate:"gt=0"`
	Extensions     []string
	Exclude        []string
	Timeout        time.Duration `validate:"gt=0"`
}

// IdentityConfig locates the identity backend the auth proxy forwards to.
// Paths are appended to BaseURL.
type IdentityConfig struct {
	BaseURL      string        `validate:"omitempty,url"`
	Mode         string        `validate:"oneof=jwt session"`
	TokenPath    string        `validate:"startswith=/"`
	RefreshPath  string        `validate:"startswith=/"`
	MePath       string        `validate:"startswith=/"`
	RegisterPath string        `validate:"startswith=/"`
	LogoutPath   string        `validate:"startswith=/"`
	Timeout      time.Duration `validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Production reports whether the service runs with APP_ENV=production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads .env (if present) and then the process environment. Variables
// already set in the environment win over .env entries.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")

	level, err := parseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		return nil, err
	}

	analyze, err := loadAnalyzeConfig()
	if err != nil {
		return nil, err
	}
	identity, err := loadIdentityConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr:          resolveAddr(),
		Env:           env,
		LogLevel:      level,
		TraceExporter: strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("OTEL_TRACES_EXPORTER")), TraceExporterNone)),
		Analyze:       analyze,
		Identity:      identity,
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolveAddr() string {
	if addr := strings.TrimSpace(os.Getenv("CODEGRAPH_ADDR")); addr != "" {
		return addr
	}
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if strings.HasPrefix(port, ":") {
			return port
		}
		return ":" + port
	}
	return ":8080"
}

func loadAnalyzeConfig() (AnalyzeConfig, error) {
	maxUpload, err := envInt64("CODEGRAPH_MAX_UPLOAD_BYTES", archive.DefaultMaxArchiveBytes)
	if err != nil {
		return AnalyzeConfig{}, err
	}
	maxFile, err := envInt64("CODEGRAPH_MAX_FILE_BYTES", archive.DefaultMaxFileBytes)
	if err != nil {
		return AnalyzeConfig{}, err
	}
	timeout, err := envDuration("CODEGRAPH_ANALYZE_TIMEOUT", 60*time.Second)
	if err != nil {
		return AnalyzeConfig{}, err
	}
	return AnalyzeConfig{
		MaxUploadBytes: maxUpload,
		MaxFileBytes:   maxFile,
		Extensions:     splitList(os.Getenv("CODEGRAPH_EXTENSIONS")),
		Exclude:        splitList(os.Getenv("CODEGRAPH_EXCLUDE")),
		Timeout:        timeout,
	}, nil
}

func loadIdentityConfig() (IdentityConfig, error) {
	mode := strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("AUTH_MODE")), AuthModeJWT))
	timeout, err := envDuration("IDENTITY_TIMEOUT", 10*time.Second)
	if err != nil {
		return IdentityConfig{}, err
	}
	return IdentityConfig{
		BaseURL:      strings.TrimRight(firstNonEmpty(strings.TrimSpace(os.Getenv("IDENTITY_BASE_URL")), "http://localhost:8000"), "/"),
		Mode:         mode,
		TokenPath:    firstNonEmpty(strings.TrimSpace(os.Getenv("IDENTITY_TOKEN_PATH")), "/api/token/"),
		RefreshPath:  firstNonEmpty(strings.TrimSpace(os.Getenv("IDENTITY_REFRESH_PATH")), "/api/token/refresh/"),
		MePath:       firstNonEmpty(strings.TrimSpace(os.Getenv("IDENTITY_ME_PATH")), "/api/users/me/"),
		RegisterPath: firstNonEmpty(strings.TrimSpace(os.Getenv("IDENTITY_REGISTER_PATH")), "/api/auth/users/"),
		LogoutPath:   firstNonEmpty(strings.TrimSpace(os.Getenv("IDENTITY_LOGOUT_PATH")), "/api/logout/"),
		Timeout:      timeout,
	}, nil
}

func parseLevel(raw string) (slog.Level, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

func envInt64(key string, def int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s: want a positive integer, got %q", key, raw)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

// splitList splits a comma-separated value, dropping empty items. An unset
// variable yields nil so callers fall back to their defaults.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
