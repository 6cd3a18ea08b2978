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
)

// tee fans every event out to several adapters and answers reads from the
// first.
type tee struct {
	primary AuditAdapter
	sinks   []AuditAdapter
}

// Tee returns an adapter that writes to primary and every sink. Reads are
// served by primary. A sink failure does not stop the others.
func Tee(primary AuditAdapter, sinks ...AuditAdapter) AuditAdapter {
	return &tee{primary: primary, sinks: sinks}
}

func (t *tee) LogEvent(ctx context.Context, event *AuditEvent) error {
	errs := []error{t.primary.LogEvent(ctx, event)}
	for _, s := range t.sinks {
		errs = append(errs, s.LogEvent(ctx, event))
	}
	return errors.Join(errs...)
}

func (t *tee) GetEvents(ctx context.Context, query *EventQuery) ([]*AuditEvent, error) {
	return t.primary.GetEvents(ctx, query)
}

func (t *tee) GetEvent(ctx context.Context, id string) (*AuditEvent, error) {
	return t.primary.GetEvent(ctx, id)
}
