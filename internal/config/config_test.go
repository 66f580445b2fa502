package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.QRCardDigits != defaultQRCardDigits {
		t.Errorf("QRCardDigits = %d, want %d", cfg.QRCardDigits, defaultQRCardDigits)
	}
	if cfg.TenantTimezone != defaultTenantTimezone {
		t.Errorf("TenantTimezone = %q, want %q", cfg.TenantTimezone, defaultTenantTimezone)
	}
}

func TestLoadCLIOverridesEnv(t *testing.T) {
	t.Setenv(envPrefix+"HTTP_PORT", "9000")
	cfg, err := Load([]string{"-http-port", "8123"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPPort != 8123 {
		t.Errorf("HTTPPort = %d, want 8123 (CLI should win over env)", cfg.HTTPPort)
	}
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv(envPrefix+"QR_CARD_DIGITS", "8")
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QRCardDigits != 8 {
		t.Errorf("QRCardDigits = %d, want 8", cfg.QRCardDigits)
	}
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	cfg := &Config{
		HTTPPort:        8080,
		VoiceStreamPort: 9191,
		LogLevel:        "info",
		LogFormat:       "text",
		TenantTimezone:  "Not/AZone",
		QRCardDigits:    10,
	}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := &Config{
		HTTPPort:        8080,
		VoiceStreamPort: 9191,
		LogLevel:        "verbose",
		LogFormat:       "text",
		TenantTimezone:  "UTC",
		QRCardDigits:    10,
	}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}
