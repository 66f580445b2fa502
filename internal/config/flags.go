package config

import (
	"flag"
	"os"
)

// flagSet bundles the parsed *flag.FlagSet with the env-var name for every
// flag, so applyEnvOverrides can tell which flags were explicitly set on the
// command line (those win over env vars) from which were left at default.
type flagSet struct {
	flagSet *flag.FlagSet
	envVars map[string]string
}

func newFlagSet(cfg *Config) *flagSet {
	fs := flag.NewFlagSet("concierge", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "data-dir", defaultDataDir, "data directory for the sqlite database")
	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP API listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.PublicBaseURL, "public-base-url", "", "public base URL used to render QR landing links")
	fs.StringVar(&cfg.TenantTimezone, "tenant-timezone", defaultTenantTimezone, "IANA timezone used to render device-facing timestamps")

	fs.IntVar(&cfg.VoiceStreamPort, "voice-stream-port", defaultVoiceStreamPort, "TCP port for the telephony AudioSocket-style stream server")
	fs.StringVar(&cfg.GuardExtension, "guard-extension", "", "intercom extension the voice bridge transfers to on transfer_to_guard")
	fs.StringVar(&cfg.TenantID, "tenant-id", "", "tenant this process's voice bridge and PBX trunk serve")

	fs.StringVar(&cfg.RealtimeModelID, "realtime-model-id", "", "identifier of the realtime speech model")
	fs.StringVar(&cfg.RealtimeModelURL, "realtime-model-url", "", "WebSocket URL of the realtime speech model")
	fs.StringVar(&cfg.RealtimeBearerToken, "realtime-bearer-token", "", "bearer token for the realtime speech model")
	fs.Float64Var(&cfg.VADThreshold, "vad-threshold", defaultVADThreshold, "server VAD activation threshold")
	fs.IntVar(&cfg.VADPrefixPaddingMs, "vad-prefix-padding-ms", defaultVADPrefixPaddingMs, "server VAD prefix padding in milliseconds")
	fs.IntVar(&cfg.VADSilenceDurationMs, "vad-silence-duration-ms", defaultVADSilenceDurationMs, "server VAD silence duration in milliseconds")
	fs.Float64Var(&cfg.NoiseGateRMSThreshold, "noise-gate-rms-threshold", 0, "RMS threshold below which telephony frames are zeroed (0 disables)")
	fs.IntVar(&cfg.PlayoutPrebufferFrames, "playout-prebuffer-frames", defaultPlayoutPrebufferFrames, "frames accumulated before playout begins")
	fs.IntVar(&cfg.PlayoutQueueMaxFrames, "playout-queue-max-frames", defaultPlayoutQueueMaxFrames, "maximum frames held in the playout ring")

	fs.StringVar(&cfg.AccessPanelHost, "access-panel-host", "", "vehicular access panel device host")
	fs.IntVar(&cfg.AccessPanelPort, "access-panel-port", 80, "vehicular access panel device port")
	fs.StringVar(&cfg.AccessPanelPassword, "access-panel-password", "", "vehicular access panel device password")
	fs.StringVar(&cfg.PedestrianHost, "pedestrian-host", "", "pedestrian gate device host")
	fs.IntVar(&cfg.PedestrianPort, "pedestrian-port", 80, "pedestrian gate device port")
	fs.StringVar(&cfg.PedestrianPassword, "pedestrian-password", "", "pedestrian gate device password (fast-path opens fall back to access-panel-password when empty)")
	fs.StringVar(&cfg.Biometric1Host, "biometric1-host", "", "first biometric reader device host")
	fs.IntVar(&cfg.Biometric1Port, "biometric1-port", 80, "first biometric reader device port")
	fs.StringVar(&cfg.Biometric1Password, "biometric1-password", "", "first biometric reader device password")
	fs.StringVar(&cfg.Biometric2Host, "biometric2-host", "", "second biometric reader device host")
	fs.IntVar(&cfg.Biometric2Port, "biometric2-port", 80, "second biometric reader device port")
	fs.StringVar(&cfg.Biometric2Password, "biometric2-password", "", "second biometric reader device password")
	fs.StringVar(&cfg.DeviceUsername, "device-username", defaultDeviceUsername, "digest-auth username shared by all access devices")
	fs.Float64Var(&cfg.DeviceTimeoutSeconds, "device-timeout-seconds", defaultDeviceTimeoutSeconds, "per-operation HTTP timeout for device calls")

	fs.IntVar(&cfg.QRCardDigits, "qr-card-digits", defaultQRCardDigits, "digit width of provisioned biometric card numbers")
	fs.StringVar(&cfg.QREmployeePrefix, "qr-employee-prefix", defaultQREmployeePrefix, "prefix used to derive biometric employee numbers")

	fs.Float64Var(&cfg.FastOpenTimeoutSeconds, "fast-open-timeout-seconds", defaultFastOpenTimeoutSeconds, "per-attempt timeout for fast-path device opens")
	fs.Float64Var(&cfg.FastOpenDebounceSeconds, "fast-open-debounce-seconds", defaultFastOpenDebounceSeconds, "debounce window per fast-path action")

	fs.BoolVar(&cfg.DemoMode, "demo-mode", false, "serve synthetic tool results when persistence is unreachable")

	envVars := map[string]string{
		"data-dir":                   envPrefix + "DATA_DIR",
		"http-port":                  envPrefix + "HTTP_PORT",
		"log-level":                  envPrefix + "LOG_LEVEL",
		"log-format":                 envPrefix + "LOG_FORMAT",
		"public-base-url":            envPrefix + "PUBLIC_BASE_URL",
		"tenant-timezone":            envPrefix + "TENANT_TIMEZONE",
		"voice-stream-port":          envPrefix + "VOICE_STREAM_PORT",
		"guard-extension":            envPrefix + "GUARD_EXTENSION",
		"tenant-id":                  envPrefix + "TENANT_ID",
		"realtime-model-id":          envPrefix + "REALTIME_MODEL_ID",
		"realtime-model-url":         envPrefix + "REALTIME_MODEL_URL",
		"realtime-bearer-token":      envPrefix + "REALTIME_BEARER_TOKEN",
		"vad-threshold":              envPrefix + "VAD_THRESHOLD",
		"vad-prefix-padding-ms":      envPrefix + "VAD_PREFIX_PADDING_MS",
		"vad-silence-duration-ms":    envPrefix + "VAD_SILENCE_DURATION_MS",
		"noise-gate-rms-threshold":   envPrefix + "NOISE_GATE_RMS_THRESHOLD",
		"playout-prebuffer-frames":   envPrefix + "PLAYOUT_PREBUFFER_FRAMES",
		"playout-queue-max-frames":   envPrefix + "PLAYOUT_QUEUE_MAX_FRAMES",
		"access-panel-host":          envPrefix + "ACCESS_PANEL_HOST",
		"access-panel-port":          envPrefix + "ACCESS_PANEL_PORT",
		"access-panel-password":      envPrefix + "ACCESS_PANEL_PASSWORD",
		"pedestrian-host":            envPrefix + "PEDESTRIAN_HOST",
		"pedestrian-port":            envPrefix + "PEDESTRIAN_PORT",
		"pedestrian-password":        envPrefix + "PEDESTRIAN_PASSWORD",
		"biometric1-host":            envPrefix + "BIOMETRIC1_HOST",
		"biometric1-port":            envPrefix + "BIOMETRIC1_PORT",
		"biometric1-password":        envPrefix + "BIOMETRIC1_PASSWORD",
		"biometric2-host":            envPrefix + "BIOMETRIC2_HOST",
		"biometric2-port":            envPrefix + "BIOMETRIC2_PORT",
		"biometric2-password":        envPrefix + "BIOMETRIC2_PASSWORD",
		"device-username":            envPrefix + "DEVICE_USERNAME",
		"device-timeout-seconds":     envPrefix + "DEVICE_TIMEOUT_SECONDS",
		"qr-card-digits":             envPrefix + "QR_CARD_DIGITS",
		"qr-employee-prefix":         envPrefix + "QR_EMPLOYEE_PREFIX",
		"fast-open-timeout-seconds":  envPrefix + "FAST_OPEN_TIMEOUT_SECONDS",
		"fast-open-debounce-seconds": envPrefix + "FAST_OPEN_DEBOUNCE_SECONDS",
		"demo-mode":                  envPrefix + "DEMO_MODE",
	}

	return &flagSet{flagSet: fs, envVars: envVars}
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line. CLI flags take precedence over
// env vars, which take precedence over defaults.
func applyEnvOverrides(fs *flagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.flagSet.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	for flagName, envVar := range fs.envVars {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		applyOverride(cfg, flagName, val)
	}
}

func applyOverride(cfg *Config, flagName, val string) {
	switch flagName {
	case "data-dir":
		cfg.DataDir = val
	case "http-port":
		cfg.HTTPPort = atoiOr(val, cfg.HTTPPort)
	case "log-level":
		cfg.LogLevel = val
	case "log-format":
		cfg.LogFormat = val
	case "public-base-url":
		cfg.PublicBaseURL = val
	case "tenant-timezone":
		cfg.TenantTimezone = val
	case "voice-stream-port":
		cfg.VoiceStreamPort = atoiOr(val, cfg.VoiceStreamPort)
	case "guard-extension":
		cfg.GuardExtension = val
	case "tenant-id":
		cfg.TenantID = val
	case "realtime-model-id":
		cfg.RealtimeModelID = val
	case "realtime-model-url":
		cfg.RealtimeModelURL = val
	case "realtime-bearer-token":
		cfg.RealtimeBearerToken = val
	case "vad-threshold":
		cfg.VADThreshold = atofOr(val, cfg.VADThreshold)
	case "vad-prefix-padding-ms":
		cfg.VADPrefixPaddingMs = atoiOr(val, cfg.VADPrefixPaddingMs)
	case "vad-silence-duration-ms":
		cfg.VADSilenceDurationMs = atoiOr(val, cfg.VADSilenceDurationMs)
	case "noise-gate-rms-threshold":
		cfg.NoiseGateRMSThreshold = atofOr(val, cfg.NoiseGateRMSThreshold)
	case "playout-prebuffer-frames":
		cfg.PlayoutPrebufferFrames = atoiOr(val, cfg.PlayoutPrebufferFrames)
	case "playout-queue-max-frames":
		cfg.PlayoutQueueMaxFrames = atoiOr(val, cfg.PlayoutQueueMaxFrames)
	case "access-panel-host":
		cfg.AccessPanelHost = val
	case "access-panel-port":
		cfg.AccessPanelPort = atoiOr(val, cfg.AccessPanelPort)
	case "access-panel-password":
		cfg.AccessPanelPassword = val
	case "pedestrian-host":
		cfg.PedestrianHost = val
	case "pedestrian-port":
		cfg.PedestrianPort = atoiOr(val, cfg.PedestrianPort)
	case "pedestrian-password":
		cfg.PedestrianPassword = val
	case "biometric1-host":
		cfg.Biometric1Host = val
	case "biometric1-port":
		cfg.Biometric1Port = atoiOr(val, cfg.Biometric1Port)
	case "biometric1-password":
		cfg.Biometric1Password = val
	case "biometric2-host":
		cfg.Biometric2Host = val
	case "biometric2-port":
		cfg.Biometric2Port = atoiOr(val, cfg.Biometric2Port)
	case "biometric2-password":
		cfg.Biometric2Password = val
	case "device-username":
		cfg.DeviceUsername = val
	case "device-timeout-seconds":
		cfg.DeviceTimeoutSeconds = atofOr(val, cfg.DeviceTimeoutSeconds)
	case "qr-card-digits":
		cfg.QRCardDigits = atoiOr(val, cfg.QRCardDigits)
	case "qr-employee-prefix":
		cfg.QREmployeePrefix = val
	case "fast-open-timeout-seconds":
		cfg.FastOpenTimeoutSeconds = atofOr(val, cfg.FastOpenTimeoutSeconds)
	case "fast-open-debounce-seconds":
		cfg.FastOpenDebounceSeconds = atofOr(val, cfg.FastOpenDebounceSeconds)
	case "demo-mode":
		cfg.DemoMode = val == "1" || val == "true"
	}
}
