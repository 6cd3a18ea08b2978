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

package config

import (
	"errors"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/audit"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymaster/pkg/keymaster"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
)

// Runtime is everything a binary needs to serve key operations.
type Runtime struct {
	KeyMaster *keymaster.KeyMaster
	Engine    *keystore.Engine
	Storage   storage.Backend
	Random    rand.Resolver

	// Events is the in-memory audit buffer, nil when auditing is disabled.
	Events *audit.MemoryAuditAdapter
}

// Build opens storage and assembles the keystore engine and facade.
// Extra signer options apply to the secp256k1 signer.
func (c *Config) Build(log logger.Logger, opts ...signing.Secp256k1Option) (*Runtime, error) {
	if log == nil {
		log = logger.Nop()
	}
	template, err := c.Keystore.KDFParams()
	if err != nil {
		return nil, err
	}
	random, err := c.Keystore.RandomSource()
	if err != nil {
		return nil, err
	}
	backend, err := c.Storage.OpenStorage()
	if err != nil {
		return nil, err
	}

	engine, err := keystore.NewEngine(&keystore.Config{
		Storage: backend,
		Random:  random,
		KDF:     template,
		Logger:  log,
	})
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}

	rt := &Runtime{Engine: engine, Storage: backend, Random: random}
	kmOpts := []keymaster.Option{
		keymaster.WithLogger(log),
		keymaster.WithBackendName(c.Storage.Backend),
		keymaster.WithDispatcher(signing.NewDispatcher(opts...)),
	}
	if c.Audit.Enabled {
		rt.Events = audit.NewMemoryAuditAdapter(c.Audit.Capacity)
		var sink audit.AuditAdapter = rt.Events
		if c.Audit.Log {
			sink = audit.Tee(rt.Events, audit.NewLoggerAuditAdapter(log))
		}
		kmOpts = append(kmOpts, keymaster.WithAuditor(sink))
	}
	rt.KeyMaster = keymaster.New(engine, kmOpts...)
	return rt, nil
}

// Close releases the storage backend and the random source.
func (r *Runtime) Close() error {
	return errors.Join(r.Storage.Close(), r.Random.Close())
}
