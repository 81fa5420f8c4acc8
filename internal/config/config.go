package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderDiscord = "discord"
	ProviderOIDC    = "oidc"

	RefreshFull     = "full"
	RefreshPreserve = "preserve"
)

// Config holds runtime settings for the server.
type Config struct {
	Port          int
	PublicBaseURL string
	FilesDir      string
	HLSDir        string

	AuthProvider       string
	DiscordClientID    string
	DiscordSecret      string
	OIDCIssuerURL      string
	OIDCClientID       string
	OIDCClientSecret   string
	SessionSecret      string
	SessionTTLHours    int
	Whitelist          []string
	DevHost            string
	LocalHost          string
	RemoteHost         string
	CORSAllowedOrigins []string

	FFmpegPath        string
	TranscodeTimeout  time.Duration
	HLSSegmentSeconds int
	MaxUploadMB       int
	WatchDebounce     time.Duration
	RegistryRefresh   string

	LogLevel  string
	LogFormat string
}

// Load reads a .env file when present, then the environment, and validates
// the settings the server cannot start without.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds Config from the current process environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:               getEnvInt("PORT", 3001),
		FilesDir:           getEnv("FILES_DIR", "./files"),
		HLSDir:             getEnv("HLS_DIR", "./hls"),
		AuthProvider:       strings.ToLower(getEnv("AUTH_PROVIDER", ProviderDiscord)),
		DiscordClientID:    strings.TrimSpace(os.Getenv("DISCORD_CLIENT_ID")),
		DiscordSecret:      strings.TrimSpace(os.Getenv("DISCORD_CLIENT_SECRET")),
		OIDCIssuerURL:      strings.TrimSpace(os.Getenv("OIDC_ISSUER_URL")),
		OIDCClientID:       strings.TrimSpace(os.Getenv("OIDC_CLIENT_ID")),
		OIDCClientSecret:   strings.TrimSpace(os.Getenv("OIDC_CLIENT_SECRET")),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		SessionTTLHours:    getEnvInt("SESSION_TTL_HOURS", 72),
		Whitelist:          splitList(os.Getenv("WHITELIST")),
		DevHost:            strings.TrimSpace(os.Getenv("DEV_IP")),
		LocalHost:          strings.TrimSpace(os.Getenv("LOCAL_IP")),
		RemoteHost:         strings.TrimSpace(os.Getenv("REMOTE_IP")),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		TranscodeTimeout:   getEnvDuration("TRANSCODE_TIMEOUT", 30*time.Minute),
		HLSSegmentSeconds:  getEnvInt("HLS_SEGMENT_SECONDS", 10),
		MaxUploadMB:        getEnvInt("MAX_UPLOAD_MB", 2048),
		WatchDebounce:      getEnvDuration("WATCH_DEBOUNCE", 250*time.Millisecond),
		RegistryRefresh:    strings.ToLower(getEnv("REGISTRY_REFRESH", RefreshFull)),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
	}
	cfg.PublicBaseURL = strings.TrimSuffix(getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://%s:%d", cfg.RemoteHost, cfg.Port)), "/")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ListenAddr is the address passed to the HTTP server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// MaxUploadBytes caps a single upload request body.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c Config) validate() error {
	var missing []string
	switch c.AuthProvider {
	case ProviderDiscord:
		if c.DiscordClientID == "" {
			missing = append(missing, "DISCORD_CLIENT_ID")
		}
		if c.DiscordSecret == "" {
			missing = append(missing, "DISCORD_CLIENT_SECRET")
		}
	case ProviderOIDC:
		if c.OIDCIssuerURL == "" {
			missing = append(missing, "OIDC_ISSUER_URL")
		}
		if c.OIDCClientID == "" {
			missing = append(missing, "OIDC_CLIENT_ID")
		}
	default:
		return fmt.Errorf("unsupported AUTH_PROVIDER %q", c.AuthProvider)
	}
	if c.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if len(c.Whitelist) == 0 {
		missing = append(missing, "WHITELIST")
	}
	if c.DevHost == "" {
		missing = append(missing, "DEV_IP")
	}
	if c.LocalHost == "" {
		missing = append(missing, "LOCAL_IP")
	}
	if c.RemoteHost == "" {
		missing = append(missing, "REMOTE_IP")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.RegistryRefresh != RefreshFull && c.RegistryRefresh != RefreshPreserve {
		return fmt.Errorf("unsupported REGISTRY_REFRESH %q", c.RegistryRefresh)
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := strconv.Atoi(value)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	out, err := time.ParseDuration(value)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
