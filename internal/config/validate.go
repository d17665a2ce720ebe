// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// structValidator runs the `validate` struct tags across the whole tree.
var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the configuration is internally consistent. Struct
// tags cover ranges; the hand rules below cover cross-field invariants the
// tags cannot express.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration value: %w", err)
	}

	if err := c.validateRisk(); err != nil {
		return err
	}
	if err := c.validateValidator(); err != nil {
		return err
	}
	if err := c.validateRestriction(); err != nil {
		return err
	}
	if err := c.validateResponse(); err != nil {
		return err
	}
	return c.validateNATS()
}

// validateRisk enforces strictly ascending bucket boundaries; equal or
// inverted thresholds would make bucket assignment ambiguous.
func (c *Config) validateRisk() error {
	t := c.Risk.Thresholds
	if !(t.Suspicious < t.HighRisk && t.HighRisk < t.Critical && t.Critical < t.AutoSuspend) {
		return fmt.Errorf("risk thresholds must be strictly ascending: suspicious=%.1f high_risk=%.1f critical=%.1f auto_suspend=%.1f",
			t.Suspicious, t.HighRisk, t.Critical, t.AutoSuspend)
	}
	if c.Risk.AlertWindow <= 0 {
		return fmt.Errorf("risk.alert_window must be positive")
	}
	return nil
}

// knownChecks is the fixed set of validator check names.
var knownChecks = map[string]bool{
	"webdriver": true, "user_agent": true, "canvas": true, "webgl": true,
	"plugins": true, "fonts": true, "timing": true, "screen": true,
	"network_class": true,
}

func (c *Config) validateValidator() error {
	v := &c.Validator
	for name := range v.Weights {
		if !knownChecks[name] {
			return fmt.Errorf("validator.weights: unknown check %q", name)
		}
	}
	for _, name := range v.StrongSignals {
		if !knownChecks[name] {
			return fmt.Errorf("validator.strong_signals: unknown check %q", name)
		}
	}
	if v.MaxHandshakeMS > 0 && v.MinHandshakeMS >= v.MaxHandshakeMS {
		return fmt.Errorf("validator: min_handshake_ms (%.1f) must be below max_handshake_ms (%.1f)",
			v.MinHandshakeMS, v.MaxHandshakeMS)
	}
	return nil
}

// validRestrictionTypes matches models.RestrictionType values. Duplicated
// here to keep config free of domain imports.
var validRestrictionTypes = map[string]bool{
	"exam_ban": true, "account_suspension": true, "ip_ban": true, "global_ban": true,
}

func (c *Config) validateRestriction() error {
	if len(c.Restriction.Ladders) == 0 {
		return fmt.Errorf("restriction.ladders must not be empty")
	}
	for typ, ladder := range c.Restriction.Ladders {
		if !validRestrictionTypes[typ] {
			return fmt.Errorf("restriction.ladders: unknown restriction type %q", typ)
		}
		if len(ladder) == 0 {
			return fmt.Errorf("restriction.ladders.%s must have at least one rung", typ)
		}
		for i, d := range ladder {
			if d <= 0 {
				return fmt.Errorf("restriction.ladders.%s[%d] must be positive, got %s", typ, i, d)
			}
		}
	}
	if c.Restriction.HistoryRetention <= 0 {
		return fmt.Errorf("restriction.history_retention must be positive")
	}
	return nil
}

func (c *Config) validateResponse() error {
	for action, cd := range c.Response.Cooldowns {
		if cd < 0 {
			return fmt.Errorf("response.cooldowns.%s must not be negative, got %s", action, cd)
		}
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	if c.NATS.URL == "" && !c.NATS.EmbeddedServer {
		return fmt.Errorf("NATS_URL is required when nats is enabled without the embedded server")
	}
	if c.NATS.SubjectPrefix == "" {
		return fmt.Errorf("nats.subject_prefix must not be empty when nats is enabled")
	}
	return nil
}
