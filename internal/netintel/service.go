// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

// Package netintel classifies source addresses against known VPN, proxy,
// Tor and hosting ranges. The validator's network-class check and the
// admin lookup endpoint both resolve through here.
//
// Classification runs against an in-memory set loaded from DuckDB at
// startup. Feeds are imported from JSON documents (see Feed); imports
// swap the whole set atomically and persist through the store.
package netintel

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/invigilo/internal/config"
	"github.com/tomtom215/invigilo/internal/logging"
)

// Service owns the classified address set and its persistence.
type Service struct {
	cfg   config.NetIntelConfig
	set   *Set
	store *Store

	mu      sync.RWMutex
	enabled bool
}

// NewService creates the classification service. db may be nil, which
// disables persistence; the set then lives only in memory.
func NewService(db *sql.DB, cfg config.NetIntelConfig) *Service {
	s := &Service{
		cfg:     cfg,
		set:     NewSet(),
		enabled: cfg.Enabled,
	}
	if db != nil {
		s.store = NewStore(db)
	}
	return s
}

// Initialize loads persisted ranges into memory. When the store is empty
// and an import path is configured, the feed file seeds both.
func (s *Service) Initialize(ctx context.Context) error {
	if s.store == nil {
		if s.cfg.ImportPath != "" {
			_, err := s.ImportFromFile(ctx, s.cfg.ImportPath)
			return err
		}
		return nil
	}

	ranges, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load network ranges: %w", err)
	}

	if len(ranges) == 0 && s.cfg.ImportPath != "" {
		if _, err := s.ImportFromFile(ctx, s.cfg.ImportPath); err != nil {
			logging.Warn().Err(err).Str("path", s.cfg.ImportPath).
				Msg("Network range seed import failed")
		}
		return nil
	}

	loaded, parseErrs := s.set.Replace(ranges)
	for _, e := range parseErrs {
		logging.Warn().Str("error", e).Msg("Skipped stored network range")
	}
	logging.Info().Int("ranges", loaded).Msg("Network ranges loaded")
	return nil
}

// Lookup classifies an address for the validator. Returns the network
// class and whether that class is deny-flagged. Unknown addresses and a
// disabled service both come back unflagged.
func (s *Service) Lookup(_ context.Context, ip string) (string, bool) {
	if !s.Enabled() {
		return "", false
	}
	class, _, found := s.set.Classify(ip)
	if !found {
		return "", false
	}
	return class, Flagged(class)
}

// Inspect answers the admin lookup endpoint with full match detail.
func (s *Service) Inspect(ip string) LookupResult {
	class, provider, found := s.set.Classify(ip)
	return LookupResult{
		IP:       ip,
		Found:    found,
		Class:    class,
		Provider: provider,
		Flagged:  found && Flagged(class),
	}
}

// ImportFromFile imports a feed document from disk.
func (s *Service) ImportFromFile(ctx context.Context, filename string) (*ImportResult, error) {
	file, err := os.Open(filename) //nolint:gosec // G304: filename is trusted input from configuration
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Str("filename", filename).Msg("Error closing feed file")
		}
	}()

	return s.ImportFromReader(ctx, file)
}

// ImportFromReader imports a feed document from a reader.
func (s *Service) ImportFromReader(ctx context.Context, r io.Reader) (*ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	return s.ImportFromBytes(ctx, data)
}

// ImportFromBytes imports a feed document, replacing the current set and
// the persisted ranges.
func (s *Service) ImportFromBytes(ctx context.Context, data []byte) (*ImportResult, error) {
	start := time.Now()

	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	result := &ImportResult{}
	ranges := make([]Range, 0, len(feed.Ranges))
	for _, fr := range feed.Ranges {
		class := normalizeClass(fr.Class)
		if class == "" {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("unknown class %q for %s", fr.Class, fr.CIDR))
			continue
		}
		ranges = append(ranges, Range{
			CIDR:     fr.CIDR,
			Class:    class,
			Provider: fr.Provider,
			Source:   feed.Source,
		})
	}

	loaded, parseErrs := s.set.Replace(ranges)
	result.RangesImported = loaded
	result.Skipped += len(parseErrs)
	result.Errors = append(result.Errors, parseErrs...)

	if s.store != nil {
		if err := s.store.ReplaceAll(ctx, ranges); err != nil {
			logging.Warn().Err(err).Msg("Failed to persist imported network ranges")
		}
	}

	result.Duration = time.Since(start)
	logging.Info().
		Int("ranges_imported", result.RangesImported).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Network range feed imported")

	return result, nil
}

// Reload replaces the in-memory set from the store.
func (s *Service) Reload(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	ranges, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to reload network ranges: %w", err)
	}
	loaded, parseErrs := s.set.Replace(ranges)
	for _, e := range parseErrs {
		logging.Warn().Str("error", e).Msg("Skipped stored network range")
	}
	logging.Debug().Int("ranges", loaded).Msg("Network ranges reloaded")
	return nil
}

// RunRefresh periodically reloads the set from the store so external feed
// writers take effect without a restart. Blocks until ctx is done, then
// returns ctx.Err(). Run under the supervisor as the "netintel-refresh"
// data service.
func (s *Service) RunRefresh(ctx context.Context) error {
	if s.cfg.RefreshInterval <= 0 || s.store == nil {
		logging.Debug().Msg("Network range refresh disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", s.cfg.RefreshInterval).
		Msg("Network range refresh started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Network range refresh stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Reload(ctx); err != nil {
				logging.Error().Err(err).Msg("Network range refresh failed")
			}
		}
	}
}

// Stats describes the loaded set.
func (s *Service) Stats() Stats {
	return s.set.Stats()
}

// Enabled reports whether classification is active.
func (s *Service) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// SetEnabled toggles classification at runtime.
func (s *Service) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = enabled
}
