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

package health

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-keymaster/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymaster/pkg/metrics"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
)

// StorageCheck lists the record namespace of backend. A failed listing is
// unhealthy. The record count and backend health gauges are updated as a
// side effect.
func StorageCheck(name string, backend storage.Backend) CheckFunc {
	return func(ctx context.Context) CheckResult {
		type listing struct {
			ids []string
			err error
		}
		done := make(chan listing, 1)
		go func() {
			ids, err := storage.ListRecords(backend)
			done <- listing{ids, err}
		}()

		select {
		case <-ctx.Done():
			metrics.SetBackendHealth(name, false)
			return CheckResult{Name: "storage", Status: StatusUnhealthy, Error: ctx.Err().Error()}
		case l := <-done:
			if l.err != nil {
				metrics.SetBackendHealth(name, false)
				return CheckResult{Name: "storage", Status: StatusUnhealthy, Error: l.err.Error()}
			}
			metrics.SetBackendHealth(name, true)
			metrics.SetRecordsTotal(name, float64(len(l.ids)))
			return CheckResult{
				Name:    "storage",
				Status:  StatusHealthy,
				Message: fmt.Sprintf("%s: %d records", name, len(l.ids)),
			}
		}
	}
}

// RandomCheck draws a few bytes from src. Key generation is impossible
// without it, so failure is unhealthy.
func RandomCheck(src rand.Source) CheckFunc {
	return func(context.Context) CheckResult {
		if !src.Available() {
			return CheckResult{Name: "random", Status: StatusUnhealthy, Message: "source unavailable"}
		}
		if _, err := src.Rand(16); err != nil {
			return CheckResult{Name: "random", Status: StatusUnhealthy, Error: err.Error()}
		}
		return CheckResult{Name: "random", Status: StatusHealthy}
	}
}
