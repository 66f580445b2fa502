package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration for the concierge server.
// Precedence: CLI flags > env vars > defaults.
type Config struct {
	DataDir   string
	HTTPPort  int
	LogLevel  string
	LogFormat string

	PublicBaseURL  string
	TenantTimezone string

	// Voice bridge
	VoiceStreamPort int
	TenantID        string

	// Realtime speech model
	RealtimeModelID        string
	RealtimeModelURL       string
	RealtimeBearerToken    string
	VADThreshold           float64
	VADPrefixPaddingMs     int
	VADSilenceDurationMs   int
	NoiseGateRMSThreshold  float64
	PlayoutPrebufferFrames int
	PlayoutQueueMaxFrames  int
	GuardExtension         string

	// Access devices
	AccessPanelHost      string
	AccessPanelPort      int
	AccessPanelPassword  string
	PedestrianHost       string
	PedestrianPort       int
	PedestrianPassword   string
	Biometric1Host       string
	Biometric1Port       int
	Biometric1Password   string
	Biometric2Host       string
	Biometric2Port       int
	Biometric2Password   string
	DeviceUsername       string
	DeviceTimeoutSeconds float64

	// QR credential lifecycle
	QRCardDigits     int
	QREmployeePrefix string

	// Fast-path dispatcher
	FastOpenTimeoutSeconds  float64
	FastOpenDebounceSeconds float64

	// Tool runtime
	DemoMode bool
}

const (
	defaultDataDir                 = "./data"
	defaultHTTPPort                = 8080
	defaultLogLevel                = "info"
	defaultLogFormat               = "text"
	defaultVoiceStreamPort         = 9191
	defaultTenantTimezone          = "America/Costa_Rica"
	defaultVADThreshold            = 0.5
	defaultVADPrefixPaddingMs      = 300
	defaultVADSilenceDurationMs    = 500
	defaultPlayoutPrebufferFrames  = 10
	defaultPlayoutQueueMaxFrames   = 1000
	defaultDeviceUsername          = "admin"
	defaultDeviceTimeoutSeconds    = 3.0
	defaultQRCardDigits            = 10
	defaultQREmployeePrefix        = "V"
	defaultFastOpenTimeoutSeconds  = 1.5
	defaultFastOpenDebounceSeconds = 4.0
)

// envPrefix is the prefix for all concierge environment variables.
const envPrefix = "CONCIERGE_"

// Load parses configuration from CLI flags and environment variables.
// Precedence: CLI flags > env vars > defaults.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := newFlagSet(cfg)
	if err := fs.flagSet.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	if c.VoiceStreamPort < 1 || c.VoiceStreamPort > 65535 {
		return fmt.Errorf("voice-stream-port must be between 1 and 65535, got %d", c.VoiceStreamPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if _, err := time.LoadLocation(c.TenantTimezone); err != nil {
		return fmt.Errorf("tenant-timezone %q is not a recognized IANA zone: %w", c.TenantTimezone, err)
	}
	if c.QRCardDigits < 4 || c.QRCardDigits > 19 {
		return fmt.Errorf("qr-card-digits must be between 4 and 19, got %d", c.QRCardDigits)
	}
	if c.FastOpenDebounceSeconds < 0 {
		return fmt.Errorf("fast-open-debounce-seconds must be non-negative, got %f", c.FastOpenDebounceSeconds)
	}
	return nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TenantLocation loads the configured IANA timezone, used to render
// device-facing timestamps in local (naive) form.
func (c *Config) TenantLocation() *time.Location {
	loc, err := time.LoadLocation(c.TenantTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DeviceTimeout returns the configured device HTTP timeout as a duration.
func (c *Config) DeviceTimeout() time.Duration {
	return time.Duration(c.DeviceTimeoutSeconds * float64(time.Second))
}

// FastOpenTimeout returns the configured fast-path per-attempt timeout.
func (c *Config) FastOpenTimeout() time.Duration {
	return time.Duration(c.FastOpenTimeoutSeconds * float64(time.Second))
}

// FastOpenDebounce returns the configured fast-path debounce window.
func (c *Config) FastOpenDebounce() time.Duration {
	return time.Duration(c.FastOpenDebounceSeconds * float64(time.Second))
}

func atoiOr(s string, fallback int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return fallback
}

func atofOr(s string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return fallback
}
