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

package correlation

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestWithAndGet(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc")
	assert.Equal(t, "abc", GetCorrelationID(ctx))
	assert.Equal(t, "", GetCorrelationID(context.Background()))
	//nolint:staticcheck // nil context handling is part of the contract
	assert.Equal(t, "", GetCorrelationID(nil))
}

func TestNewID(t *testing.T) {
	id := NewID()
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.NotEqual(t, id, NewID())
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "fixed")
	assert.Equal(t, "fixed", GetOrGenerate(ctx))
	assert.NotEmpty(t, GetOrGenerate(context.Background()))
}

func TestFromHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"correlation header", map[string]string{CorrelationIDHeader: "corr-1"}, "corr-1"},
		{"request header", map[string]string{RequestIDHeader: "req-1"}, "req-1"},
		{"correlation wins", map[string]string{CorrelationIDHeader: "corr-2", RequestIDHeader: "req-2"}, "corr-2"},
		{"falls back when invalid", map[string]string{CorrelationIDHeader: "bad id\n", RequestIDHeader: "req-3"}, "req-3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tt.want, FromHeaders(h))
		})
	}
}

func TestFromHeaders_Generates(t *testing.T) {
	for _, v := range []string{"", "line\nbreak", strings.Repeat("a", MaxIDLength+1)} {
		h := http.Header{}
		h.Set(CorrelationIDHeader, v)
		id := FromHeaders(h)
		_, err := uuid.Parse(id)
		assert.NoError(t, err, "expected a generated uuid for %q", v)
	}
}
