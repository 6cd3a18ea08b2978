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
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMemoryCapacity bounds the events a MemoryAuditAdapter retains.
const DefaultMemoryCapacity = 10000

// ErrNilEvent is returned when LogEvent receives nil.
var ErrNilEvent = errors.New("audit: event cannot be nil")

// MemoryAuditAdapter keeps the most recent events in memory. The oldest
// event is evicted once capacity is reached.
type MemoryAuditAdapter struct {
	mu       sync.RWMutex
	events   []*AuditEvent
	capacity int
}

// NewMemoryAuditAdapter creates an adapter retaining up to capacity events.
// A non-positive capacity selects DefaultMemoryCapacity.
func NewMemoryAuditAdapter(capacity int) *MemoryAuditAdapter {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryAuditAdapter{
		events:   make([]*AuditEvent, 0, min(capacity, 1024)),
		capacity: capacity,
	}
}

// LogEvent stores a copy of event.
func (m *MemoryAuditAdapter) LogEvent(_ context.Context, event *AuditEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	stored := *event

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) >= m.capacity {
		copy(m.events, m.events[1:])
		m.events = m.events[:len(m.events)-1]
	}
	m.events = append(m.events, &stored)
	return nil
}

// GetEvents returns copies of matching events, newest first.
func (m *MemoryAuditAdapter) GetEvents(_ context.Context, query *EventQuery) ([]*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AuditEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !query.Matches(e) {
			continue
		}
		c := *e
		out = append(out, &c)
		if query != nil && query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

// GetEvent returns a copy of the event with eventID.
func (m *MemoryAuditAdapter) GetEvent(_ context.Context, eventID string) (*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if e.ID == eventID {
			c := *e
			return &c, nil
		}
	}
	return nil, ErrEventNotFound
}

// Len returns the number of retained events.
func (m *MemoryAuditAdapter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
