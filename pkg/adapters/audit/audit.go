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

// Package audit records who used which key for what. Events never contain
// passwords, seeds or private keys; only store IDs, paths and outcomes.
//
// Applications can supply their own AuditAdapter (SIEM forwarding, a
// database table); the package ships an in-memory adapter for tests and a
// logger-backed adapter for binaries.
package audit

import (
	"context"
	"errors"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	EventEntropyGenerate EventType = "entropy.generate"
	EventKeyWrite        EventType = "key.write"
	EventKeyDelete       EventType = "key.delete"
	EventKeyList         EventType = "key.list"
	EventMnemonicImport  EventType = "mnemonic.import"

	EventSign      EventType = "crypto.sign"
	EventPublicKey EventType = "crypto.pubkey"

	EventAuthSuccess EventType = "auth.success"
	EventAuthFailure EventType = "auth.failure"

	EventSystemStart EventType = "system.start"
	EventSystemStop  EventType = "system.stop"
)

// EventOutcome indicates the result of an operation
type EventOutcome string

const (
	OutcomeSuccess EventOutcome = "success"
	OutcomeFailure EventOutcome = "failure"
	OutcomeDenied  EventOutcome = "denied"
)

// ErrEventNotFound is returned by GetEvent for unknown IDs.
var ErrEventNotFound = errors.New("audit: event not found")

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	// ID is assigned by the adapter when empty
	ID string

	// Timestamp is set by the adapter when zero
	Timestamp time.Time

	EventType EventType
	Outcome   EventOutcome

	// Principal is the authenticated caller, if any
	Principal string

	// KeyID is the store ID the operation touched
	KeyID string

	// Path and Curve describe signing and public key requests
	Path  string
	Curve string

	// Backend is the storage backend name
	Backend string

	// Error is the error kind for failed operations
	Error string

	// RequestID correlates the event with a request
	RequestID string

	// SourceIP is the address of the remote client
	SourceIP string
}

// AuditAdapter provides audit logging capabilities.
type AuditAdapter interface {
	// LogEvent records an audit event
	LogEvent(ctx context.Context, event *AuditEvent) error

	// GetEvents retrieves audit events matching query, newest first
	GetEvents(ctx context.Context, query *EventQuery) ([]*AuditEvent, error)

	// GetEvent retrieves a specific audit event by ID
	GetEvent(ctx context.Context, eventID string) (*AuditEvent, error)
}

// EventQuery provides parameters for querying audit events
type EventQuery struct {
	EventTypes []EventType
	Outcomes   []EventOutcome
	KeyID      string
	Principal  string
	RequestID  string
	StartTime  *time.Time
	EndTime    *time.Time

	// Limit limits the number of results; zero means no limit
	Limit int
}

// Matches reports whether event satisfies every populated field of q.
func (q *EventQuery) Matches(event *AuditEvent) bool {
	if q == nil {
		return true
	}
	if len(q.EventTypes) > 0 && !contains(q.EventTypes, event.EventType) {
		return false
	}
	if len(q.Outcomes) > 0 && !contains(q.Outcomes, event.Outcome) {
		return false
	}
	if q.KeyID != "" && event.KeyID != q.KeyID {
		return false
	}
	if q.Principal != "" && event.Principal != q.Principal {
		return false
	}
	if q.RequestID != "" && event.RequestID != q.RequestID {
		return false
	}
	if q.StartTime != nil && event.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && event.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// NopAdapter discards every event.
type NopAdapter struct{}

func (NopAdapter) LogEvent(context.Context, *AuditEvent) error { return nil }

func (NopAdapter) GetEvents(context.Context, *EventQuery) ([]*AuditEvent, error) { return nil, nil }

func (NopAdapter) GetEvent(context.Context, string) (*AuditEvent, error) {
	return nil, ErrEventNotFound
}
