// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package config loads and validates the Invigilo configuration.
//
// Configuration is layered (highest priority last):
//
//  1. Built-in defaults
//  2. Optional YAML config file (CONFIG_PATH or well-known paths)
//  3. Environment variables
//
// Every heuristic table the pipeline consults lives here: validator check
// weights, signal processor thresholds, risk bucket boundaries, escalation
// duration ladders, dispatcher cooldowns, and ban policy. Operators tune
// boundary behavior without code changes.
package config

import (
	"time"
)

// Config is the root configuration for all Invigilo subsystems.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Database    DatabaseConfig    `koanf:"database"`
	Badger      BadgerConfig      `koanf:"badger"`
	Security    SecurityConfig    `koanf:"security"`
	Session     SessionConfig     `koanf:"session"`
	Validator   ValidatorConfig   `koanf:"validator"`
	Signals     SignalsConfig     `koanf:"signals"`
	Risk        RiskConfig        `koanf:"risk"`
	Restriction RestrictionConfig `koanf:"restriction"`
	Response    ResponseConfig    `koanf:"response"`
	Banlist     BanlistConfig     `koanf:"banlist"`
	Audit       AuditConfig       `koanf:"audit"`
	Notify      NotifyConfig      `koanf:"notify"`
	Attendance  AttendanceConfig  `koanf:"attendance"`
	NetIntel    NetIntelConfig    `koanf:"netintel"`
	NATS        NATSConfig        `koanf:"nats"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DatabaseConfig configures the DuckDB store backing security events and
// network intelligence.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	// Threads caps DuckDB worker threads; 0 uses runtime.NumCPU().
	Threads int `koanf:"threads" validate:"gte=0"`
}

// BadgerConfig configures the Badger key-value store backing restrictions,
// bans and the endpoint-token replay cache.
type BadgerConfig struct {
	Dir string `koanf:"dir"`
	// InMemory runs Badger without disk persistence. Tests only.
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// SecurityConfig configures the HTTP perimeter.
type SecurityConfig struct {
	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`
	// AdminToken gates the admin route group. Empty disables the admin
	// surface entirely rather than leaving it open.
	AdminToken string `koanf:"admin_token"`
	// IdentitySecret verifies the upstream identity layer's student token
	// (HMAC-SHA256 over the student ID). Empty skips verification and
	// trusts the headers as-is; only sensible behind a trusted proxy.
	IdentitySecret     string `koanf:"identity_secret"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute" validate:"gte=1"`
}

// SessionConfig configures the connection session registry.
type SessionConfig struct {
	// PoolSize bounds concurrently allocated monitoring endpoints.
	// Allocation beyond this fails with POOL_EXHAUSTED.
	PoolSize int `koanf:"pool_size" validate:"gte=1"`
	// IdleTimeout reclaims sessions with zero connections and no activity.
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// TokenSecret signs endpoint tokens (HS256). Generated at startup when
	// empty, which invalidates outstanding endpoints across restarts.
	TokenSecret string        `koanf:"token_secret"`
	TokenTTL    time.Duration `koanf:"token_ttl"`
	// MaxEventRate / EventBurst bound per-connection inbound frames; excess
	// frames are dropped, not queued.
	MaxEventRate float64 `koanf:"max_event_rate" validate:"gt=0"`
	EventBurst   int     `koanf:"event_burst" validate:"gte=1"`
}

// ValidatorConfig is the weighted authenticity checklist. Weights map check
// names to weak-signal weights; StrongSignals lists checks that reject on
// their own. The check names are fixed by the validator package:
// webdriver, user_agent, canvas, webgl, plugins, fonts, timing, screen,
// network_class.
type ValidatorConfig struct {
	UserAgentDenylist []string           `koanf:"user_agent_denylist"`
	SoftwareRenderers []string           `koanf:"software_renderers"`
	Weights           map[string]float64 `koanf:"weights"`
	StrongSignals     []string           `koanf:"strong_signals"`
	// WeakSignalLimit rejects when this many weak signals accumulate.
	WeakSignalLimit int     `koanf:"weak_signal_limit" validate:"gte=1"`
	MinPlugins      int     `koanf:"min_plugins" validate:"gte=0"`
	MinFonts        int     `koanf:"min_fonts" validate:"gte=0"`
	MinScreenWidth  int     `koanf:"min_screen_width" validate:"gte=0"`
	MinScreenHeight int     `koanf:"min_screen_height" validate:"gte=0"`
	MinHandshakeMS  float64 `koanf:"min_handshake_ms" validate:"gte=0"`
	MaxHandshakeMS  float64 `koanf:"max_handshake_ms" validate:"gte=0"`
	// RejectGrace delays the force-disconnect after validation_failed so
	// the client receives the itemized reasons.
	RejectGrace      time.Duration `koanf:"reject_grace"`
	ChallengeTimeout time.Duration `koanf:"challenge_timeout"`
}

// SignalsConfig groups the per-processor threshold tables.
type SignalsConfig struct {
	Mouse    MouseConfig    `koanf:"mouse"`
	Keyboard KeyboardConfig `koanf:"keyboard"`
	Answers  AnswersConfig  `koanf:"answers"`
}

// MouseConfig tunes the pointer-telemetry processor. The json tags carry
// the same names as the koanf tags so the admin API can hot-swap a
// processor's config with the identical document shape.
type MouseConfig struct {
	WindowSize int `koanf:"window_size" json:"window_size" validate:"gte=10"`
	MinSamples int `koanf:"min_samples" json:"min_samples" validate:"gte=3"`
	// MaxVelocity is the human-plausible ceiling in px/s.
	MaxVelocity float64 `koanf:"max_velocity" json:"max_velocity" validate:"gt=0"`
	// CollinearRatio flags batches where this share of consecutive point
	// triples is collinear within epsilon.
	CollinearRatio     float64 `koanf:"collinear_ratio" json:"collinear_ratio" validate:"gt=0,lte=1"`
	CollinearEpsilon   float64 `koanf:"collinear_epsilon" json:"collinear_epsilon" validate:"gte=0"`
	SlopeVarianceFloor float64 `koanf:"slope_variance_floor" json:"slope_variance_floor" validate:"gte=0"`
	// TimingCVFloor flags machine-even inter-event spacing.
	TimingCVFloor float64 `koanf:"timing_cv_floor" json:"timing_cv_floor" validate:"gte=0"`
}

// KeyCombo is one deny-listed key combination with its severity weight.
// Keys is a normalized "+"-joined chord, e.g. "ctrl+shift+i".
type KeyCombo struct {
	Keys     string  `koanf:"keys" json:"keys"`
	Severity float64 `koanf:"severity" json:"severity"`
	Label    string  `koanf:"label" json:"label"`
}

// KeyboardConfig tunes the keystroke-telemetry processor.
type KeyboardConfig struct {
	WindowSize int `koanf:"window_size" json:"window_size" validate:"gte=10"`
	MinSamples int `koanf:"min_samples" json:"min_samples" validate:"gte=3"`
	// CVFloor is the minimum human coefficient of variation for inter-key
	// intervals; lower reads as scripted regularity.
	CVFloor float64 `koanf:"cv_floor" json:"cv_floor" validate:"gte=0"`
	// RapidCount keys each arriving within RapidIntervalMS breaks the
	// physical typing floor.
	RapidCount      int        `koanf:"rapid_count" json:"rapid_count" validate:"gte=2"`
	RapidIntervalMS float64    `koanf:"rapid_interval_ms" json:"rapid_interval_ms" validate:"gt=0"`
	DeniedCombos    []KeyCombo `koanf:"denied_combos" json:"denied_combos"`
}

// AnswersConfig tunes the answer-pattern processor.
type AnswersConfig struct {
	WindowSize int `koanf:"window_size" json:"window_size" validate:"gte=5"`
	MinSamples int `koanf:"min_samples" json:"min_samples" validate:"gte=3"`
	// ReadingFloorMS is the minimum plausible read-and-answer latency.
	ReadingFloorMS float64 `koanf:"reading_floor_ms" json:"reading_floor_ms" validate:"gt=0"`
	// FastShare of a batch under the floor flags the batch.
	FastShare float64 `koanf:"fast_share" json:"fast_share" validate:"gt=0,lte=1"`
	// Cycle detection: repeating choice cycles up to CycleMaxPeriod
	// covering at least CycleCoverage of the window.
	CycleMaxPeriod int     `koanf:"cycle_max_period" json:"cycle_max_period" validate:"gte=2"`
	CycleCoverage  float64 `koanf:"cycle_coverage" json:"cycle_coverage" validate:"gt=0,lte=1"`
	// LatencyCVFloor flags implausibly uniform answer pacing.
	LatencyCVFloor   float64 `koanf:"latency_cv_floor" json:"latency_cv_floor" validate:"gte=0"`
	LatencyCVSamples int     `koanf:"latency_cv_samples" json:"latency_cv_samples" validate:"gte=2"`
}

// RiskThresholds are the lower bounds of each non-normal bucket.
type RiskThresholds struct {
	Suspicious  float64 `koanf:"suspicious" validate:"gt=0,lte=100"`
	HighRisk    float64 `koanf:"high_risk" validate:"gt=0,lte=100"`
	Critical    float64 `koanf:"critical" validate:"gt=0,lte=100"`
	AutoSuspend float64 `koanf:"auto_suspend" validate:"gt=0,lte=100"`
}

// RiskConfig tunes the per-session aggregator.
type RiskConfig struct {
	// WindowSize is how many recent factors the rolling average covers.
	WindowSize    int                `koanf:"window_size" validate:"gte=1"`
	SourceWeights map[string]float64 `koanf:"source_weights"`
	Thresholds    RiskThresholds     `koanf:"thresholds"`
	// AlertFloor and AlertWindow drive the consecutive-alert counter: a
	// factor scoring >= AlertFloor within AlertWindow of the previous such
	// factor increments it, otherwise the counter resets.
	AlertFloor  float64       `koanf:"alert_floor" validate:"gte=0,lte=100"`
	AlertWindow time.Duration `koanf:"alert_window"`
	// ConsecutiveAlertLimit triggers escalation independent of the rolling
	// average.
	ConsecutiveAlertLimit int `koanf:"consecutive_alert_limit" validate:"gte=1"`
}

// RestrictionConfig tunes the policy engine.
type RestrictionConfig struct {
	// Ladders maps restriction type to its duration ladder indexed by
	// violation count (first violation uses index 0; the last rung
	// repeats).
	Ladders map[string][]time.Duration `koanf:"ladders"`
	// EscalationCap converts any restriction to a permanent global ban
	// once violation_count exceeds it.
	EscalationCap int `koanf:"escalation_cap" validate:"gte=1"`
	// HistoryRetention keeps expired records around so repeat violations
	// resume the ladder instead of starting over.
	HistoryRetention time.Duration `koanf:"history_retention"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
}

// ResponseConfig tunes the automated response dispatcher.
type ResponseConfig struct {
	// Cooldowns maps action name to its per-session minimum interval.
	// Repeats inside the window are dropped, never queued.
	Cooldowns map[string]time.Duration `koanf:"cooldowns"`
	QueueSize int                      `koanf:"queue_size" validate:"gte=1"`
}

// BanlistConfig tunes the IP/device ban registry.
type BanlistConfig struct {
	// BaseDuration scales linearly with violation count up to DurationCap
	// multiples.
	BaseDuration time.Duration `koanf:"base_duration"`
	DurationCap  int           `koanf:"duration_cap" validate:"gte=1"`
	// PermanentThreshold violations makes the ban permanent.
	PermanentThreshold int           `koanf:"permanent_threshold" validate:"gte=1"`
	HistoryRetention   time.Duration `koanf:"history_retention"`
	// FailureLimit validation failures from one IP within FailureWindow
	// feeds an automatic ban violation.
	FailureLimit  int           `koanf:"failure_limit" validate:"gte=1"`
	FailureWindow time.Duration `koanf:"failure_window"`
}

// AuditConfig tunes the asynchronous security-event writer.
type AuditConfig struct {
	BufferSize    int           `koanf:"buffer_size" validate:"gte=1"`
	WriteTimeout  time.Duration `koanf:"write_timeout"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"gte=0"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
	// RetentionDays bounds how long security events are kept.
	RetentionDays   int           `koanf:"retention_days" validate:"gte=1"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// NotifyConfig tunes the async notification dispatcher.
type NotifyConfig struct {
	QueueSize      int           `koanf:"queue_size" validate:"gte=1"`
	Workers        int           `koanf:"workers" validate:"gte=1"`
	WebhookURL     string        `koanf:"webhook_url"`
	WebhookTimeout time.Duration `koanf:"webhook_timeout"`
}

// AttendanceConfig configures the external attendance-store collaborator.
type AttendanceConfig struct {
	Enabled       bool          `koanf:"enabled"`
	BaseURL       string        `koanf:"base_url"`
	APIKey        string        `koanf:"api_key"`
	Timeout       time.Duration `koanf:"timeout"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"gte=0"`
	RetryBackoff  time.Duration `koanf:"retry_backoff"`
}

// NetIntelConfig configures network classification (VPN/proxy/datacenter
// address sets) feeding the validator's network-class check.
type NetIntelConfig struct {
	Enabled bool `koanf:"enabled"`
	// ImportPath optionally seeds the address sets from a JSON feed file
	// at startup.
	ImportPath      string        `koanf:"import_path"`
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// NATSConfig configures the dashboard event fan-out (nats build tag).
type NATSConfig struct {
	Enabled        bool   `koanf:"enabled"`
	URL            string `koanf:"url"`
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`
	MaxMemory      int64  `koanf:"max_memory"`
	MaxStore       int64  `koanf:"max_store"`
	SubjectPrefix  string `koanf:"subject_prefix"`
}
