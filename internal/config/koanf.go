// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/invigilo/config.yaml",
	"/etc/invigilo/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config populated with every built-in default.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Database: DatabaseConfig{
			Path:      "/data/invigilo.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Badger: BadgerConfig{
			Dir:        "/data/badger",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		Security: SecurityConfig{
			CORSOrigins:        []string{},
			TrustedProxies:     []string{},
			AdminToken:         "",
			IdentitySecret:     "",
			RateLimitPerMinute: 100,
		},
		Session: SessionConfig{
			PoolSize:      64,
			IdleTimeout:   7 * time.Minute,
			SweepInterval: time.Minute,
			TokenSecret:   "", // generated at startup when empty
			TokenTTL:      2 * time.Minute,
			MaxEventRate:  50,
			EventBurst:    100,
		},
		Validator: ValidatorConfig{
			UserAgentDenylist: []string{
				"headlesschrome", "phantomjs", "selenium", "puppeteer",
				"playwright", "electron", "bot", "crawler", "spider",
				"curl", "wget", "python-requests", "python-urllib", "java/",
			},
			SoftwareRenderers: []string{
				"swiftshader", "llvmpipe", "software rasterizer",
				"softpipe", "mesa offscreen",
			},
			Weights: map[string]float64{
				"webdriver":     0.95,
				"user_agent":    0.90,
				"canvas":        0.60,
				"webgl":         0.80,
				"plugins":       0.60,
				"fonts":         0.40,
				"timing":        0.50,
				"screen":        0.40,
				"network_class": 0.35,
			},
			StrongSignals:    []string{"webdriver", "user_agent"},
			WeakSignalLimit:  2,
			MinPlugins:       1,
			MinFonts:         10,
			MinScreenWidth:   800,
			MinScreenHeight:  600,
			MinHandshakeMS:   5,
			MaxHandshakeMS:   30000,
			RejectGrace:      3 * time.Second,
			ChallengeTimeout: 15 * time.Second,
		},
		Signals: SignalsConfig{
			Mouse: MouseConfig{
				WindowSize:         100,
				MinSamples:         5,
				MaxVelocity:        6000,
				CollinearRatio:     0.9,
				CollinearEpsilon:   0.5,
				SlopeVarianceFloor: 0.0004,
				TimingCVFloor:      0.05,
			},
			Keyboard: KeyboardConfig{
				WindowSize:      50,
				MinSamples:      8,
				CVFloor:         0.12,
				RapidCount:      8,
				RapidIntervalMS: 30,
				DeniedCombos:    defaultDeniedCombos(),
			},
			Answers: AnswersConfig{
				WindowSize:       40,
				MinSamples:       5,
				ReadingFloorMS:   1500,
				FastShare:        0.5,
				CycleMaxPeriod:   4,
				CycleCoverage:    0.8,
				LatencyCVFloor:   0.1,
				LatencyCVSamples: 10,
			},
		},
		Risk: RiskConfig{
			WindowSize: 20,
			SourceWeights: map[string]float64{
				"validator":    1.5,
				"mouse":        1.0,
				"keyboard":     1.0,
				"answers":      1.2,
				"client_event": 0.8,
				"manual":       2.0,
			},
			Thresholds: RiskThresholds{
				Suspicious:  40,
				HighRisk:    70,
				Critical:    90,
				AutoSuspend: 95,
			},
			AlertFloor:            70,
			AlertWindow:           5 * time.Minute,
			ConsecutiveAlertLimit: 3,
		},
		Restriction: RestrictionConfig{
			Ladders: map[string][]time.Duration{
				"exam_ban":           {2 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
				"account_suspension": {24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
				"ip_ban":             {6 * time.Hour, 24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour},
				"global_ban":         {7 * 24 * time.Hour, 30 * 24 * time.Hour},
			},
			EscalationCap:    5,
			HistoryRetention: 90 * 24 * time.Hour,
			SweepInterval:    time.Hour,
		},
		Response: ResponseConfig{
			Cooldowns: map[string]time.Duration{
				"log":                        0,
				"enhanced_monitoring":        2 * time.Minute,
				"notify_admin":               5 * time.Minute,
				"increase_verification":      2 * time.Minute,
				"flag_for_review":            10 * time.Minute,
				"require_extra_verification": 2 * time.Minute,
				"suspend_session":            30 * time.Second,
				"notify_student":             time.Minute,
			},
			QueueSize: 256,
		},
		Banlist: BanlistConfig{
			BaseDuration:       time.Hour,
			DurationCap:        5,
			PermanentThreshold: 10,
			HistoryRetention:   90 * 24 * time.Hour,
			FailureLimit:       3,
			FailureWindow:      10 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize:      1000,
			WriteTimeout:    5 * time.Second,
			RetryAttempts:   3,
			RetryBackoff:    250 * time.Millisecond,
			RetentionDays:   90,
			CleanupInterval: 24 * time.Hour,
		},
		Notify: NotifyConfig{
			QueueSize:      256,
			Workers:        2,
			WebhookURL:     "",
			WebhookTimeout: 10 * time.Second,
		},
		Attendance: AttendanceConfig{
			Enabled:       false,
			BaseURL:       "",
			APIKey:        "",
			Timeout:       5 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  200 * time.Millisecond,
		},
		NetIntel: NetIntelConfig{
			Enabled:         true,
			ImportPath:      "",
			RefreshInterval: 24 * time.Hour,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "/data/nats/jetstream",
			MaxMemory:      1 << 30,  // 1GB
			MaxStore:       10 << 30, // 10GB
			SubjectPrefix:  "invigilo.events",
		},
	}
}

// defaultDeniedCombos is the deny-listed key-combination table. Severity is
// the risk contribution a single hit carries.
func defaultDeniedCombos() []KeyCombo {
	return []KeyCombo{
		{Keys: "ctrl+c", Severity: 35, Label: "copy"},
		{Keys: "ctrl+v", Severity: 45, Label: "paste"},
		{Keys: "ctrl+x", Severity: 35, Label: "cut"},
		{Keys: "ctrl+p", Severity: 40, Label: "print"},
		{Keys: "ctrl+u", Severity: 55, Label: "view-source"},
		{Keys: "ctrl+shift+i", Severity: 70, Label: "devtools"},
		{Keys: "ctrl+shift+j", Severity: 70, Label: "devtools-console"},
		{Keys: "ctrl+shift+c", Severity: 65, Label: "devtools-inspect"},
		{Keys: "f12", Severity: 70, Label: "devtools"},
		{Keys: "printscreen", Severity: 50, Label: "screenshot"},
		{Keys: "alt+tab", Severity: 25, Label: "window-switch"},
		{Keys: "meta+tab", Severity: 25, Label: "window-switch"},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in that order of precedence (env wins).
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: optional config file
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// INVIGILO_SESSION_POOL_SIZE -> session.pool_size, HTTP_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env strings become slices for list-valued keys.
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches CONFIG_PATH then the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths parse as comma-separated
// slices when set through the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
	"validator.user_agent_denylist",
	"validator.software_renderers",
	"validator.strong_signals",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars arrive as strings; the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from YAML or defaults): leave alone.
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unprefixed shorthand names cover the common deployment knobs; anything
// else must use the INVIGILO_ prefix with underscores doubling as section
// separators for the first segment.
//
// Examples:
//   - HTTP_PORT                       -> server.port
//   - LOG_LEVEL                       -> logging.level
//   - DUCKDB_PATH                     -> database.path
//   - ADMIN_TOKEN                     -> security.admin_token
//   - INVIGILO_SESSION_POOL_SIZE      -> session.pool_size
//   - INVIGILO_RISK_ALERT_FLOOR       -> risk.alert_floor
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":          "server.host",
		"http_port":          "server.port",
		"http_read_timeout":  "server.read_timeout",
		"http_write_timeout": "server.write_timeout",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Storage
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",
		"badger_dir":        "badger.dir",

		// Perimeter
		"admin_token":     "security.admin_token",
		"identity_secret": "security.identity_secret",
		"cors_origins":    "security.cors_origins",
		"trusted_proxies": "security.trusted_proxies",
		"rate_limit":      "security.rate_limit_per_minute",

		// Session registry
		"session_pool_size":    "session.pool_size",
		"session_idle_timeout": "session.idle_timeout",
		"session_token_secret": "session.token_secret",
		"session_token_ttl":    "session.token_ttl",

		// Collaborators
		"webhook_url":        "notify.webhook_url",
		"attendance_enabled": "attendance.enabled",
		"attendance_url":     "attendance.base_url",
		"attendance_api_key": "attendance.api_key",

		// NATS fan-out
		"nats_enabled":         "nats.enabled",
		"nats_url":             "nats.url",
		"nats_embedded_server": "nats.embedded_server",
		"nats_store_dir":       "nats.store_dir",
		"nats_subject_prefix":  "nats.subject_prefix",

		// Network intelligence
		"netintel_enabled":     "netintel.enabled",
		"netintel_import_path": "netintel.import_path",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// INVIGILO_SECTION_REST_OF_KEY -> section.rest_of_key
	if rest, ok := strings.CutPrefix(key, "invigilo_"); ok {
		if section, tail, found := strings.Cut(rest, "_"); found {
			return section + "." + tail
		}
		return rest
	}

	// Unknown unprefixed vars are ignored by returning an empty path.
	return ""
}
