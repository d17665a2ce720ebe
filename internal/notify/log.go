// Invigilo - Real-Time Exam Integrity Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/invigilo

package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tomtom215/invigilo/internal/logging"
)

// LogNotifier writes notifications to the structured log. It is the
// default backend when no webhook URL is configured, which keeps
// standalone deployments observable without external infrastructure.
type LogNotifier struct{}

// NewLogNotifier returns a notifier backed by the process log.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Send logs the notification at a level matching its severity. It
// never fails.
func (l *LogNotifier) Send(_ context.Context, n Notification) error {
	var evt *zerolog.Event
	switch n.Severity {
	case SeverityCritical:
		evt = logging.Error()
	case SeverityWarning:
		evt = logging.Warn()
	default:
		evt = logging.Info()
	}

	evt.
		Str("notification_id", n.ID).
		Str("audience", string(n.Audience)).
		Str("severity", string(n.Severity)).
		Str("subject", n.Subject).
		Str("session_id", n.SessionID).
		Str("exam_id", n.ExamID).
		Str("student_id", n.StudentID).
		Msg("Notification: " + n.Body)

	return nil
}
