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

package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/audit"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/auth"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/health"
	"github.com/jeremyhahn/go-keymaster/pkg/keymaster"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore/fake"
	"github.com/jeremyhahn/go-keymaster/pkg/ratelimit"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
)

const (
	btcPath = "m/44'/0'/0'/0/0"
	helloR  = "38a047f20caca5618cc56b0947939372a4c9c34cc05dd59dd75ef31f2323839d"
	helloS  = "0a6e719280a0503794715ae4403d09aec3664629f94435581a45a446d7c7ad2d"
	helloPK = "03aaeb52dd7494c361049de67cc680e83ebcbbbdbeb13637d92cd845f70308af5e"
)

type fixture struct {
	ks     *fake.Keystore
	events *audit.MemoryAuditAdapter
	srv    *Server
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		ks:     fake.New(fake.Fixture()),
		events: audit.NewMemoryAuditAdapter(100),
	}
	km := keymaster.New(f.ks,
		keymaster.WithDispatcher(signing.NewDispatcher(signing.WithRecoveryID())),
		keymaster.WithAuditor(f.events),
		keymaster.WithBackendName("rest-test"))
	cfg := &Config{KeyMaster: km, Events: f.events, MetricsPath: "/metrics", Version: "1.2.3"}
	if mutate != nil {
		mutate(cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	f.srv = srv
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func signBody() KeyRequest {
	return KeyRequest{
		KeyID:    fake.FixtureStoreID,
		Path:     btcPath,
		Password: fake.FixturePassword,
		Message:  "hello",
	}
}

func decodeInto[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewServer_RequiresKeyMaster(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
	_, err = NewServer(&Config{})
	assert.Error(t, err)
}

func TestSignHandler(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("utf8 message", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/sign", signBody())
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		resp := decodeInto[SignResponse](t, rec)
		assert.Equal(t, helloR, resp.R)
		assert.Equal(t, helloS, resp.S)
		assert.Equal(t, "secp256k1", resp.Curve)
		assert.Nil(t, resp.V)
	})

	t.Run("hex message with recovery id", func(t *testing.T) {
		body := signBody()
		body.Message = "68656c6c6f"
		body.Encoding = EncodingHex
		body.Recovery = true
		rec := f.do(t, http.MethodPost, "/api/v1/sign", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decodeInto[SignResponse](t, rec)
		assert.Equal(t, helloR, resp.R)
		require.NotNil(t, resp.V)
		assert.Equal(t, uint8(1), *resp.V)
	})

	t.Run("response never echoes the password", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/sign", signBody())
		assert.NotContains(t, rec.Body.String(), fake.FixturePassword)
	})
}

func TestSignHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   any
		status int
		kind   string
	}{
		{"malformed json", `{"key_id":`, http.StatusBadRequest, KindInvalidRequest},
		{"unknown field", `{"key_id":"x","seed":"00"}`, http.StatusBadRequest, KindInvalidRequest},
		{"trailing data", `{"key_id":"x"} {}`, http.StatusBadRequest, KindInvalidRequest},
		{"bad key id", func() KeyRequest { b := signBody(); b.KeyID = "../etc"; return b }(), http.StatusBadRequest, KindInvalidRequest},
		{"bad path syntax", func() KeyRequest { b := signBody(); b.Path = "m/x"; return b }(), http.StatusBadRequest, KindInvalidRequest},
		{"index out of range", func() KeyRequest { b := signBody(); b.Path = "m/2147483648"; return b }(), http.StatusBadRequest, keymaster.KindInvalidPath},
		{"bad encoding", func() KeyRequest { b := signBody(); b.Encoding = "base64"; return b }(), http.StatusBadRequest, KindInvalidRequest},
		{"bad hex", func() KeyRequest { b := signBody(); b.Encoding = EncodingHex; b.Message = "zz"; return b }(), http.StatusBadRequest, KindInvalidRequest},
		{"unknown curve", func() KeyRequest { b := signBody(); b.Curve = "p384"; return b }(), http.StatusBadRequest, keymaster.KindUnsupportedCurve},
		{"ed25519", func() KeyRequest { b := signBody(); b.Curve = "ed25519"; return b }(), http.StatusBadRequest, keymaster.KindUnsupportedCurve},
		{"wrong password", func() KeyRequest { b := signBody(); b.Password = "nope"; return b }(), http.StatusUnauthorized, keymaster.KindBadPassword},
		{"unknown key", func() KeyRequest { b := signBody(); b.KeyID = strings.Repeat("a", 32); return b }(), http.StatusNotFound, keymaster.KindNotFound},
	}
	f := newFixture(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/sign", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeInto[ErrorResponse](t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.Equal(t, tt.status, resp.Code)
		})
	}
}

func TestSignHandler_StorageFailureHidesDetail(t *testing.T) {
	f := newFixture(t, nil)
	f.ks.FailWith(keystore.ErrStorage)

	rec := f.do(t, http.MethodPost, "/api/v1/sign", signBody())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeInto[ErrorResponse](t, rec)
	assert.Equal(t, keymaster.KindStorage, resp.Kind)
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), resp.Error)
}

func TestSignHandler_BodyLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.MaxBodyBytes = 64 })
	body := signBody()
	body.Message = strings.Repeat("x", 128)

	rec := f.do(t, http.MethodPost, "/api/v1/sign", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPublicKeyHandler(t *testing.T) {
	f := newFixture(t, nil)
	body := signBody()
	body.Message = ""

	rec := f.do(t, http.MethodPost, "/api/v1/pubkey", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeInto[PublicKeyResponse](t, rec)
	assert.Equal(t, helloPK, resp.PublicKey)
	assert.Equal(t, btcPath, resp.Path)

	body.Password = "nope"
	rec = f.do(t, http.MethodPost, "/api/v1/pubkey", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyHandler(t *testing.T) {
	f := newFixture(t, nil)
	good := VerifyRequest{PublicKey: helloPK, Message: "hello", R: helloR, S: helloS}

	rec := f.do(t, http.MethodPost, "/api/v1/verify", good)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeInto[VerifyResponse](t, rec).Valid)

	hexMsg := good
	hexMsg.Message, hexMsg.Encoding = "68656c6c6f", EncodingHex
	rec = f.do(t, http.MethodPost, "/api/v1/verify", hexMsg)
	assert.True(t, decodeInto[VerifyResponse](t, rec).Valid)

	tests := []struct {
		name   string
		mutate func(*VerifyRequest)
		status int
		valid  bool
	}{
		{"other message", func(v *VerifyRequest) { v.Message = "world" }, http.StatusOK, false},
		{"short r", func(v *VerifyRequest) { v.R = "00" }, http.StatusBadRequest, false},
		{"bad key hex", func(v *VerifyRequest) { v.PublicKey = "xyz" }, http.StatusBadRequest, false},
		{"not a point", func(v *VerifyRequest) { v.PublicKey = "0201" }, http.StatusBadRequest, false},
		{"ed25519", func(v *VerifyRequest) { v.Curve = "ed25519" }, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := good
			tt.mutate(&body)
			rec := f.do(t, http.MethodPost, "/api/v1/verify", body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusOK {
				resp := decodeInto[VerifyResponse](t, rec)
				assert.Equal(t, tt.valid, resp.Valid)
				assert.NotEmpty(t, resp.Reason)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	keys := auth.NewAPIKeyAuthenticator(&auth.APIKeyConfig{Keys: map[string]*auth.Identity{
		"signer-key": {Subject: "signer", Scopes: []string{auth.ScopeSign}},
		"reader-key": {Subject: "reader", Scopes: []string{auth.ScopePublicKey}},
	}})
	f := newFixture(t, func(c *Config) { c.Authenticator = keys })

	tests := []struct {
		name   string
		path   string
		key    string
		status int
	}{
		{"missing key", "/api/v1/sign", "", http.StatusUnauthorized},
		{"unknown key", "/api/v1/sign", "guess", http.StatusUnauthorized},
		{"signer signs", "/api/v1/sign", "signer-key", http.StatusOK},
		{"signer lacks pubkey scope", "/api/v1/pubkey", "signer-key", http.StatusForbidden},
		{"reader reads", "/api/v1/pubkey", "reader-key", http.StatusOK},
		{"reader cannot sign", "/api/v1/sign", "reader-key", http.StatusForbidden},
		{"audit needs its own scope", "/api/v1/audit", "reader-key", http.StatusForbidden},
		{"verify needs its own scope", "/api/v1/verify", "signer-key", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodPost
			var body any = signBody()
			if tt.path == "/api/v1/audit" {
				method, body = http.MethodGet, nil
			}
			var headers []string
			if tt.key != "" {
				headers = []string{auth.DefaultAPIKeyHeader, tt.key}
			}
			rec := f.do(t, method, tt.path, body, headers...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusUnauthorized {
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}

	t.Run("health needs no credentials", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil).Code)
	})

	t.Run("audit records the principal", func(t *testing.T) {
		events, err := f.events.GetEvents(context.Background(), &audit.EventQuery{Limit: 1})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "reader", events[0].Principal)
	})
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	t.Cleanup(limiter.Stop)
	f := newFixture(t, func(c *Config) { c.Limiter = limiter })

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/version", nil).Code)
	rec := f.do(t, http.MethodGet, "/api/v1/version", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Probes bypass the limiter.
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil).Code)
}

func TestCorrelationID(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/health/live", nil, "X-Request-ID", "req-42")
	assert.Equal(t, "req-42", rec.Header().Get("X-Correlation-ID"))

	rec = f.do(t, http.MethodGet, "/health/live", nil, "X-Correlation-ID", "bad id\nwith newline")
	got := rec.Header().Get("X-Correlation-ID")
	assert.NotEmpty(t, got)
	assert.NotContains(t, got, " ")

	rec = f.do(t, http.MethodPost, "/api/v1/sign", signBody(), "X-Correlation-ID", "trace-7")
	require.Equal(t, http.StatusOK, rec.Code)
	events, err := f.events.GetEvents(context.Background(), &audit.EventQuery{RequestID: "trace-7"})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLoggingMiddleware_StripsControlCharacters(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewSlogAdapter(&logger.SlogConfig{Output: &buf, Format: "json", Level: logger.LevelDebug})
	f := newFixture(t, func(c *Config) { c.Logger = log })

	rec := f.do(t, http.MethodGet, "/api/v1/version", nil, "User-Agent", "agent/1\nlevel=ERROR msg=forged")
	require.Equal(t, http.StatusOK, rec.Code)

	var line map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(raw), &entry), raw)
		if entry["msg"] == "request" {
			line = entry
		}
	}
	require.NotNil(t, line, buf.String())
	assert.Equal(t, "/api/v1/version", line["path"])
	assert.Equal(t, "agent/1level=ERROR msg=forged", line["user_agent"])
}

func TestAuditHandler(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodPost, "/api/v1/sign", signBody())
	bad := signBody()
	bad.Password = "nope"
	f.do(t, http.MethodPost, "/api/v1/sign", bad)

	rec := f.do(t, http.MethodGet, "/api/v1/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeInto[AuditResponse](t, rec)
	require.Len(t, resp.Events, 2)
	assert.Equal(t, string(audit.OutcomeFailure), resp.Events[0].Outcome)
	assert.Equal(t, keymaster.KindBadPassword, resp.Events[0].Error)
	assert.Equal(t, btcPath, resp.Events[1].Path)

	rec = f.do(t, http.MethodGet, "/api/v1/audit?outcome=success&limit=5", nil)
	resp = decodeInto[AuditResponse](t, rec)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, string(audit.OutcomeSuccess), resp.Events[0].Outcome)

	for _, q := range []string{"limit=0", "limit=abc", "limit=5000", "key_id=nothex"} {
		t.Run(q, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/audit?"+q, nil).Code)
		})
	}

	disabled := newFixture(t, func(c *Config) { c.Events = nil })
	assert.Equal(t, http.StatusNotFound, disabled.do(t, http.MethodGet, "/api/v1/audit", nil).Code)
}

func TestHealthHandlers(t *testing.T) {
	checker := health.NewChecker()
	f := newFixture(t, func(c *Config) { c.Health = checker })

	rec := f.do(t, http.MethodGet, "/health/startup", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/health/ready", nil).Code)

	checker.MarkStarted()
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/startup", nil).Code)
	rec = f.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	checker.RegisterCheck("storage", func(context.Context) health.CheckResult {
		return health.CheckResult{Name: "storage", Status: health.StatusUnhealthy, Error: "down"}
	})
	rec = f.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeInto[HealthResponse](t, rec)
	assert.Equal(t, health.StatusUnhealthy, resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "storage", resp.Checks[0].Name)

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health/live", nil).Code)
}

func TestMetricsAndRouting(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = f.do(t, http.MethodGet, "/api/v1/version", nil)
	assert.Equal(t, "1.2.3", decodeInto[VersionResponse](t, rec).Version)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/v1/sign", nil).Code)

	noMetrics := newFixture(t, func(c *Config) { c.MetricsPath = "" })
	assert.Equal(t, http.StatusNotFound, noMetrics.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.RecoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestStatusForKind(t *testing.T) {
	tests := map[string]int{
		KindInvalidRequest:             http.StatusBadRequest,
		keymaster.KindSeedLength:       http.StatusBadRequest,
		keymaster.KindMnemonic:         http.StatusBadRequest,
		keymaster.KindBadPassword:      http.StatusUnauthorized,
		keymaster.KindNotFound:         http.StatusNotFound,
		keymaster.KindStorage:          http.StatusServiceUnavailable,
		keymaster.KindCanceled:         http.StatusServiceUnavailable,
		keymaster.KindSerialize:        http.StatusInternalServerError,
		keymaster.KindRandom:           http.StatusInternalServerError,
		keymaster.KindSigning:          http.StatusInternalServerError,
		keymaster.KindInternal:         http.StatusInternalServerError,
		keymaster.KindUnsupportedCurve: http.StatusBadRequest,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusForKind(kind), kind)
	}
}
