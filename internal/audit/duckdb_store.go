// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/invigilo/internal/models"
)

// DuckDBStore implements Store using the security_events table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed event store. The table is created
// by the database package during schema initialization.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

const eventSelectColumns = `id, session_id, exam_id, student_id, event_type,
	occurred_at, details, risk_score, is_suspicious, source_ip, user_agent`

// Save persists a single event.
func (s *DuckDBStore) Save(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Cast details to []byte: the DuckDB driver rejects json.Marshaler
	// values but accepts raw bytes for JSON columns.
	var details []byte
	if event.Details != nil {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		details = data
	}

	query := `INSERT INTO security_events
		(id, session_id, exam_id, student_id, event_type, occurred_at, details, risk_score, is_suspicious, source_ip, user_agent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.SessionID,
		event.ExamID,
		event.StudentID,
		string(event.Type),
		event.Timestamp,
		details,
		int(event.RiskScore),
		event.IsSuspicious,
		event.SourceIP,
		event.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	return nil
}

// Query retrieves events matching the filter, most recent first.
// All user values use parameterized queries; ordering is fixed.
func (s *DuckDBStore) Query(ctx context.Context, filter models.EventFilter) ([]models.SecurityEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM security_events WHERE 1=1`, eventSelectColumns)
	args := make([]interface{}, 0)

	query, args = applyEventFilters(query, args, filter)
	query += " ORDER BY occurred_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := `SELECT COUNT(*) FROM security_events WHERE 1=1`
	args := make([]interface{}, 0)

	query, args = applyEventFilters(query, args, filter)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return count, nil
}

// DeleteBefore removes events older than cutoff.
func (s *DuckDBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM security_events WHERE occurred_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old security events: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return removed, nil
}

// applyEventFilters adds WHERE clauses for event filtering.
func applyEventFilters(query string, args []interface{}, filter models.EventFilter) (string, []interface{}) {
	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.ExamID != "" {
		query += " AND exam_id = ?"
		args = append(args, filter.ExamID)
	}
	if filter.StudentID != "" {
		query += " AND student_id = ?"
		args = append(args, filter.StudentID)
	}
	if filter.Type != "" {
		query += " AND event_type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.SuspiciousOnly {
		query += " AND is_suspicious = true"
	}
	if !filter.Since.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		query += " AND occurred_at <= ?"
		args = append(args, filter.Until)
	}
	return query, args
}

// scanEvent scans a single row with nullable field handling.
func scanEvent(scanner interface {
	Scan(dest ...interface{}) error
}, event *models.SecurityEvent) error {
	var eventType string
	var sourceIP, userAgent sql.NullString
	var riskScore int
	var details interface{} // DuckDB returns JSON as map[string]interface{}

	if err := scanner.Scan(
		&event.ID,
		&event.SessionID,
		&event.ExamID,
		&event.StudentID,
		&eventType,
		&event.Timestamp,
		&details,
		&riskScore,
		&event.IsSuspicious,
		&sourceIP,
		&userAgent,
	); err != nil {
		return err
	}

	event.Type = models.SecurityEventType(eventType)
	event.RiskScore = float64(riskScore)
	if sourceIP.Valid {
		event.SourceIP = sourceIP.String
	}
	if userAgent.Valid {
		event.UserAgent = userAgent.String
	}

	// The driver surfaces JSON columns as maps or raw text depending on
	// the value, so accept both.
	switch v := details.(type) {
	case map[string]interface{}:
		event.Details = v
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			event.Details = m
		}
	case []byte:
		var m map[string]interface{}
		if err := json.Unmarshal(v, &m); err == nil {
			event.Details = m
		}
	}

	return nil
}

// scanEvents scans multiple rows into SecurityEvent structs.
func scanEvents(rows *sql.Rows) ([]models.SecurityEvent, error) {
	var events []models.SecurityEvent
	for rows.Next() {
		var event models.SecurityEvent
		if err := scanEvent(rows, &event); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
