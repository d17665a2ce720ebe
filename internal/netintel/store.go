// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package netintel

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// bulkChunkSize bounds the parameter count of one batch insert.
const bulkChunkSize = 500

// Store persists classified ranges in the network_ranges table. The
// table itself is created by the database package at startup.
type Store struct {
	db *sql.DB
}

// NewStore creates a DuckDB-backed range store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveRange upserts a single range.
func (s *Store) SaveRange(ctx context.Context, r Range) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO network_ranges (cidr, network_class, provider, source, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (cidr) DO UPDATE SET
			network_class = EXCLUDED.network_class,
			provider = EXCLUDED.provider,
			source = EXCLUDED.source,
			imported_at = EXCLUDED.imported_at
	`, r.CIDR, r.Class, r.Provider, r.Source, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save range: %w", err)
	}
	return nil
}

// ReplaceAll clears the table and writes the given ranges in chunks.
func (s *Store) ReplaceAll(ctx context.Context, ranges []Range) error {
	if err := s.Clear(ctx); err != nil {
		return err
	}

	now := time.Now().UTC()
	for start := 0; start < len(ranges); start += bulkChunkSize {
		end := start + bulkChunkSize
		if end > len(ranges) {
			end = len(ranges)
		}
		if err := s.bulkInsert(ctx, ranges[start:end], now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) bulkInsert(ctx context.Context, ranges []Range, importedAt time.Time) error {
	if len(ranges) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(ranges))
	valueArgs := make([]interface{}, 0, len(ranges)*5)
	for _, r := range ranges {
		valueStrings = append(valueStrings, "(?, ?, ?, ?, ?)")
		valueArgs = append(valueArgs, r.CIDR, r.Class, r.Provider, r.Source, importedAt)
	}

	query := fmt.Sprintf(`
		INSERT INTO network_ranges (cidr, network_class, provider, source, imported_at)
		VALUES %s
		ON CONFLICT (cidr) DO UPDATE SET
			network_class = EXCLUDED.network_class,
			provider = EXCLUDED.provider,
			source = EXCLUDED.source,
			imported_at = EXCLUDED.imported_at
	`, strings.Join(valueStrings, ","))

	if _, err := s.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("failed to bulk insert ranges: %w", err)
	}
	return nil
}

// LoadAll reads every stored range.
func (s *Store) LoadAll(ctx context.Context) ([]Range, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cidr, network_class, COALESCE(provider, ''), COALESCE(source, ''), imported_at
		FROM network_ranges
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load ranges: %w", err)
	}
	defer rows.Close()

	var ranges []Range
	for rows.Next() {
		var r Range
		if err := rows.Scan(&r.CIDR, &r.Class, &r.Provider, &r.Source, &r.ImportedAt); err != nil {
			return nil, fmt.Errorf("failed to scan range: %w", err)
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// Count returns the number of stored ranges.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM network_ranges`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ranges: %w", err)
	}
	return count, nil
}

// CountByClass returns the number of stored ranges per class.
func (s *Store) CountByClass(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT network_class, COUNT(*)
		FROM network_ranges
		GROUP BY network_class
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count by class: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, fmt.Errorf("failed to scan class count: %w", err)
		}
		counts[class] = n
	}
	return counts, rows.Err()
}

// Clear removes all stored ranges.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM network_ranges`); err != nil {
		return fmt.Errorf("failed to clear ranges: %w", err)
	}
	return nil
}
