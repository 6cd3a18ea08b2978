// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keymaster.
//
// go-keymaster is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
)

// LoggerAuditAdapter writes each event as one structured log line. It does
// not retain events, so queries return nothing.
type LoggerAuditAdapter struct {
	log logger.Logger
}

// NewLoggerAuditAdapter returns an adapter writing to log.
func NewLoggerAuditAdapter(log logger.Logger) *LoggerAuditAdapter {
	if log == nil {
		log = logger.Nop()
	}
	return &LoggerAuditAdapter{log: log.With(logger.String("component", "audit"))}
}

// LogEvent writes event at info level, or warn for failures and denials.
func (l *LoggerAuditAdapter) LogEvent(_ context.Context, event *AuditEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	fields := []logger.Field{
		logger.String("event_id", event.ID),
		logger.String("event_type", string(event.EventType)),
		logger.String("outcome", string(event.Outcome)),
	}
	for _, kv := range [][2]string{
		{"principal", event.Principal},
		{"key_id", event.KeyID},
		{"path", event.Path},
		{"curve", event.Curve},
		{"backend", event.Backend},
		{"error", event.Error},
		{"request_id", event.RequestID},
		{"source_ip", event.SourceIP},
	} {
		if kv[1] != "" {
			fields = append(fields, logger.String(kv[0], kv[1]))
		}
	}

	if event.Outcome == OutcomeSuccess {
		l.log.Info("audit", fields...)
	} else {
		l.log.Warn("audit", fields...)
	}
	return nil
}

func (l *LoggerAuditAdapter) GetEvents(context.Context, *EventQuery) ([]*AuditEvent, error) {
	return nil, nil
}

func (l *LoggerAuditAdapter) GetEvent(context.Context, string) (*AuditEvent, error) {
	return nil, ErrEventNotFound
}

var (
	_ AuditAdapter = (*MemoryAuditAdapter)(nil)
	_ AuditAdapter = (*LoggerAuditAdapter)(nil)
	_ AuditAdapter = NopAdapter{}
)
