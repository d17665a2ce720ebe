// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := db.getTableCreationQueries()

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// getTableCreationQueries returns the table creation SQL statements.
func (db *DB) getTableCreationQueries() []string {
	queries := []string{
		// Security events form the durable audit trail. Every pipeline
		// decision above the suspicious threshold and every client-reported
		// incident ends up here via the async audit writer.
		`CREATE TABLE IF NOT EXISTS security_events (
			id UUID PRIMARY KEY,
			session_id TEXT NOT NULL,
			exam_id TEXT NOT NULL,
			student_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			details JSON,
			risk_score INTEGER DEFAULT 0,
			is_suspicious BOOLEAN DEFAULT false,
			source_ip TEXT,
			user_agent TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Network ranges flagged as datacenter, VPN or proxy space. Looked
		// up by the network-class check during client validation.
		`CREATE TABLE IF NOT EXISTS network_ranges (
			cidr TEXT PRIMARY KEY,
			network_class TEXT NOT NULL,
			provider TEXT,
			source TEXT,
			imported_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	return queries
}

// createIndexes builds indexes for the common event query patterns:
// per-session timelines, per-student history and suspicious-only scans.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_events_session ON security_events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_exam ON security_events(exam_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_student ON security_events(student_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON security_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON security_events(occurred_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_suspicious ON security_events(is_suspicious)`,
		`CREATE INDEX IF NOT EXISTS idx_ranges_class ON network_ranges(network_class)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
