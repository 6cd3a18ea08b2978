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

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Chain tries each authenticator in order and returns the first identity.
// It lets a deployment accept, say, mTLS clients and API keys on one
// listener.
type Chain []Authenticator

// AuthenticateHTTP returns the first successful identity. When every
// authenticator fails the errors are joined.
func (c Chain) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("%w: no authenticators configured", ErrUnauthenticated)
	}
	var errs []error
	for _, a := range c {
		id, err := a.AuthenticateHTTP(r)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// Name joins the member names with "+".
func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, a := range c {
		names[i] = a.Name()
	}
	return strings.Join(names, "+")
}
