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

package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpSign, "memory", StatusSuccess, 0.05)
	RecordOperation(OpSign, "memory", StatusSuccess, 0.07)
	RecordOperation(OpWriteSeed, "file", StatusError, 0.4)

	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpSign, "memory", StatusSuccess)); got != 2 {
		t.Errorf("Expected 2 sign operations, got %v", got)
	}
	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpWriteSeed, "file", StatusError)); got != 1 {
		t.Errorf("Expected 1 failed write, got %v", got)
	}
	if count := testutil.CollectAndCount(OperationDuration); count != 2 {
		t.Errorf("Expected 2 histogram series, got %d", count)
	}
}

func TestRecordWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	OperationsTotal.Reset()
	ErrorsTotal.Reset()
	SignaturesTotal.Reset()
	RecordsTotal.Reset()
	BackendHealthy.Reset()
	HTTPRequestsTotal.Reset()

	RecordOperation(OpEntropy, "memory", StatusSuccess, 0.1)
	RecordError(OpSign, "memory", "bad_password")
	RecordSignature("secp256k1", StatusSuccess)
	RecordHTTPRequest("POST", "/api/v1/sign", "200", 0.1)
	SetRecordsTotal("memory", 3)
	SetBackendHealth("memory", true)

	for name, c := range map[string]int{
		"operations": testutil.CollectAndCount(OperationsTotal),
		"errors":     testutil.CollectAndCount(ErrorsTotal),
		"signatures": testutil.CollectAndCount(SignaturesTotal),
		"http":       testutil.CollectAndCount(HTTPRequestsTotal),
		"records":    testutil.CollectAndCount(RecordsTotal),
		"health":     testutil.CollectAndCount(BackendHealthy),
	} {
		if c != 0 {
			t.Errorf("Expected no %s series while disabled, got %d", name, c)
		}
	}
}

func TestRecordError(t *testing.T) {
	Enable()
	ErrorsTotal.Reset()

	RecordError(OpSign, "memory", "not_found")
	RecordError(OpSign, "memory", "not_found")
	RecordError(OpPublicKey, "vault", "storage")

	if got := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpSign, "memory", "not_found")); got != 2 {
		t.Errorf("Expected 2 not_found errors, got %v", got)
	}
	if count := testutil.CollectAndCount(ErrorsTotal); count != 2 {
		t.Errorf("Expected 2 error series, got %d", count)
	}
}

func TestRecordSignature(t *testing.T) {
	Enable()
	SignaturesTotal.Reset()

	RecordSignature("secp256k1", StatusSuccess)
	RecordSignature("ed25519", StatusError)

	if got := testutil.ToFloat64(SignaturesTotal.WithLabelValues("secp256k1", StatusSuccess)); got != 1 {
		t.Errorf("Expected 1 secp256k1 signature, got %v", got)
	}
	if got := testutil.ToFloat64(SignaturesTotal.WithLabelValues("ed25519", StatusError)); got != 1 {
		t.Errorf("Expected 1 failed ed25519 signature, got %v", got)
	}
}

func TestGauges(t *testing.T) {
	Enable()
	RecordsTotal.Reset()
	BackendHealthy.Reset()

	SetRecordsTotal("sqlite", 7)
	if got := testutil.ToFloat64(RecordsTotal.WithLabelValues("sqlite")); got != 7 {
		t.Errorf("Expected 7 records, got %v", got)
	}

	SetBackendHealth("sqlite", true)
	if got := testutil.ToFloat64(BackendHealthy.WithLabelValues("sqlite")); got != 1 {
		t.Errorf("Expected healthy gauge 1, got %v", got)
	}
	SetBackendHealth("sqlite", false)
	if got := testutil.ToFloat64(BackendHealthy.WithLabelValues("sqlite")); got != 0 {
		t.Errorf("Expected healthy gauge 0, got %v", got)
	}
}

func TestRecordRateLimited(t *testing.T) {
	Enable()
	before := testutil.ToFloat64(RateLimitedTotal)
	RecordRateLimited()
	if got := testutil.ToFloat64(RateLimitedTotal); got != before+1 {
		t.Errorf("Expected rate limited counter %v, got %v", before+1, got)
	}
}

func TestStatusFor(t *testing.T) {
	if StatusFor(nil) != StatusSuccess {
		t.Error("nil error should map to success")
	}
	if StatusFor(errors.New("x")) != StatusError {
		t.Error("non-nil error should map to error")
	}
}
