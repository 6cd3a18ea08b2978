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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
)

func TestMemoryAuditAdapter_LogEvent(t *testing.T) {
	a := NewMemoryAuditAdapter(0)
	ctx := context.Background()

	event := &AuditEvent{EventType: EventSign, Outcome: OutcomeSuccess, KeyID: "k1"}
	require.NoError(t, a.LogEvent(ctx, event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	got, err := a.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "k1", got.KeyID)

	// Returned events are copies.
	got.KeyID = "mutated"
	again, _ := a.GetEvent(ctx, event.ID)
	assert.Equal(t, "k1", again.KeyID)

	_, err = a.GetEvent(ctx, "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)

	assert.ErrorIs(t, a.LogEvent(ctx, nil), ErrNilEvent)
}

func TestMemoryAuditAdapter_Capacity(t *testing.T) {
	a := NewMemoryAuditAdapter(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, a.LogEvent(ctx, &AuditEvent{ID: fmt.Sprintf("e%d", i), EventType: EventKeyWrite}))
	}
	assert.Equal(t, 3, a.Len())

	_, err := a.GetEvent(ctx, "e0")
	assert.ErrorIs(t, err, ErrEventNotFound)

	events, err := a.GetEvents(ctx, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "e4", events[0].ID, "newest first")
	assert.Equal(t, "e2", events[2].ID)
}

func TestMemoryAuditAdapter_Query(t *testing.T) {
	a := NewMemoryAuditAdapter(0)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []*AuditEvent{
		{ID: "1", Timestamp: base, EventType: EventSign, Outcome: OutcomeSuccess, KeyID: "a", Principal: "alice"},
		{ID: "2", Timestamp: base.Add(time.Hour), EventType: EventSign, Outcome: OutcomeFailure, KeyID: "a", Principal: "bob"},
		{ID: "3", Timestamp: base.Add(2 * time.Hour), EventType: EventKeyWrite, Outcome: OutcomeSuccess, KeyID: "b", RequestID: "req-9"},
	}
	for _, e := range seed {
		require.NoError(t, a.LogEvent(ctx, e))
	}

	after := base.Add(30 * time.Minute)
	before := base.Add(90 * time.Minute)

	tests := []struct {
		name  string
		query *EventQuery
		want  []string
	}{
		{"all", &EventQuery{}, []string{"3", "2", "1"}},
		{"by type", &EventQuery{EventTypes: []EventType{EventSign}}, []string{"2", "1"}},
		{"by outcome", &EventQuery{Outcomes: []EventOutcome{OutcomeFailure}}, []string{"2"}},
		{"by key", &EventQuery{KeyID: "b"}, []string{"3"}},
		{"by principal", &EventQuery{Principal: "alice"}, []string{"1"}},
		{"by request", &EventQuery{RequestID: "req-9"}, []string{"3"}},
		{"time window", &EventQuery{StartTime: &after, EndTime: &before}, []string{"2"}},
		{"limit", &EventQuery{Limit: 2}, []string{"3", "2"}},
		{"no match", &EventQuery{KeyID: "zzz"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := a.GetEvents(ctx, tt.query)
			require.NoError(t, err)
			var ids []string
			for _, e := range events {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMemoryAuditAdapter_Concurrent(t *testing.T) {
	a := NewMemoryAuditAdapter(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = a.LogEvent(ctx, &AuditEvent{EventType: EventSign})
			_, _ = a.GetEvents(ctx, &EventQuery{Limit: 5})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, a.Len())
}

func TestLoggerAuditAdapter(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewSlogAdapter(&logger.SlogConfig{Output: &buf, Format: "json", Level: logger.LevelDebug})
	a := NewLoggerAuditAdapter(log)
	ctx := context.Background()

	require.NoError(t, a.LogEvent(ctx, &AuditEvent{
		EventType: EventSign,
		Outcome:   OutcomeFailure,
		KeyID:     "abc",
		Curve:     "secp256k1",
		Error:     "bad_password",
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, "crypto.sign", rec["event_type"])
	assert.Equal(t, "abc", rec["key_id"])
	assert.Equal(t, "bad_password", rec["error"])
	assert.NotContains(t, rec, "principal", "empty fields are omitted")

	events, err := a.GetEvents(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, events)

	assert.ErrorIs(t, a.LogEvent(ctx, nil), ErrNilEvent)
}

func TestNopAdapter(t *testing.T) {
	var a AuditAdapter = NopAdapter{}
	assert.NoError(t, a.LogEvent(context.Background(), &AuditEvent{}))
	_, err := a.GetEvent(context.Background(), "x")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestTee(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewSlogAdapter(&logger.SlogConfig{Output: &buf, Format: "json"})
	mem := NewMemoryAuditAdapter(0)
	a := Tee(mem, NewLoggerAuditAdapter(log))
	ctx := context.Background()

	require.NoError(t, a.LogEvent(ctx, &AuditEvent{EventType: EventKeyWrite, Outcome: OutcomeSuccess, KeyID: "k9"}))
	assert.Equal(t, 1, mem.Len())
	assert.Contains(t, buf.String(), `"key_id":"k9"`)

	events, err := a.GetEvents(ctx, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	got, err := a.GetEvent(ctx, events[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "k9", got.KeyID)

	err = a.LogEvent(ctx, nil)
	assert.ErrorIs(t, err, ErrNilEvent)
}
