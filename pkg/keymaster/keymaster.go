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

// Package keymaster wires a keystore to the signing dispatcher and adds the
// operational concerns around it: BIP39 mnemonics, structured logging,
// Prometheus metrics and audit events. The CLI and the REST server both
// talk to a *KeyMaster; neither touches seeds or private keys directly.
package keymaster

import (
	"context"
	"fmt"
	"time"

	"github.com/tyler-smith/go-bip39"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/audit"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/auth"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/correlation"
	"github.com/jeremyhahn/go-keymaster/pkg/hd"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/metrics"
	"github.com/jeremyhahn/go-keymaster/pkg/signing"
)

// KeyMaster is safe for concurrent use when the underlying keystore is.
type KeyMaster struct {
	ks         keystore.Keystore
	dispatcher *signing.Dispatcher
	log        logger.Logger
	auditor    audit.AuditAdapter
	backend    string
}

// Option configures a KeyMaster.
type Option func(*KeyMaster)

// WithLogger sets the logger. The default discards output.
func WithLogger(l logger.Logger) Option {
	return func(k *KeyMaster) {
		if l != nil {
			k.log = l
		}
	}
}

// WithDispatcher replaces the default signing dispatcher.
func WithDispatcher(d *signing.Dispatcher) Option {
	return func(k *KeyMaster) {
		if d != nil {
			k.dispatcher = d
		}
	}
}

// WithAuditor sets the audit adapter. The default discards events.
func WithAuditor(a audit.AuditAdapter) Option {
	return func(k *KeyMaster) {
		if a != nil {
			k.auditor = a
		}
	}
}

// WithBackendName sets the backend label used in metrics and audit events.
func WithBackendName(name string) Option {
	return func(k *KeyMaster) {
		k.backend = name
	}
}

// New returns a KeyMaster over ks.
func New(ks keystore.Keystore, opts ...Option) *KeyMaster {
	k := &KeyMaster{
		ks:         ks,
		dispatcher: signing.NewDispatcher(),
		log:        logger.Nop(),
		auditor:    audit.NopAdapter{},
		backend:    "default",
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Keystore returns the underlying keystore.
func (k *KeyMaster) Keystore() keystore.Keystore {
	return k.ks
}

// Backend returns the backend label.
func (k *KeyMaster) Backend() string {
	return k.backend
}

// GenerateEntropy returns bits/8 random bytes (bits is 128 or 256).
func (k *KeyMaster) GenerateEntropy(ctx context.Context, bits int) ([]byte, error) {
	start := time.Now()
	var buf []byte
	err := ctx.Err()
	if err == nil {
		buf, err = k.ks.GenerateEntropy(bits)
	}
	k.finish(ctx, metrics.OpEntropy, start, err, &audit.AuditEvent{EventType: audit.EventEntropyGenerate})
	return buf, err
}

// WriteSeed encrypts a 64-byte seed under password and returns its store ID.
func (k *KeyMaster) WriteSeed(ctx context.Context, password string, seed []byte) (string, error) {
	start := time.Now()
	var id string
	err := ctx.Err()
	if err == nil {
		id, err = k.writeSeed(password, seed)
	}
	k.finish(ctx, metrics.OpWriteSeed, start, err, &audit.AuditEvent{EventType: audit.EventKeyWrite, KeyID: id})
	return id, err
}

func (k *KeyMaster) writeSeed(password string, seed []byte) (string, error) {
	if len(seed) != hd.SeedLength {
		return "", fmt.Errorf("%w: got %d bytes, want %d", hd.ErrInvalidSeedLength, len(seed), hd.SeedLength)
	}
	return k.ks.WriteKey(password, seed)
}

// NewMnemonic returns a fresh BIP39 phrase: 12 words for 128 bits, 24 for 256.
func (k *KeyMaster) NewMnemonic(ctx context.Context, bits int) (string, error) {
	start := time.Now()
	var phrase string
	err := ctx.Err()
	if err == nil {
		phrase, err = k.newMnemonic(bits)
	}
	k.finish(ctx, metrics.OpMnemonicNew, start, err, nil)
	return phrase, err
}

func (k *KeyMaster) newMnemonic(bits int) (string, error) {
	entropy, err := k.ks.GenerateEntropy(bits)
	if err != nil {
		return "", err
	}
	defer zero(entropy)
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return phrase, nil
}

// ImportMnemonic validates phrase, expands it with passphrase into a seed
// and stores the seed under password.
func (k *KeyMaster) ImportMnemonic(ctx context.Context, password, phrase, passphrase string) (string, error) {
	start := time.Now()
	var id string
	err := ctx.Err()
	if err == nil {
		id, err = k.importMnemonic(password, phrase, passphrase)
	}
	k.finish(ctx, metrics.OpMnemonicImport, start, err, &audit.AuditEvent{EventType: audit.EventMnemonicImport, KeyID: id})
	return id, err
}

func (k *KeyMaster) importMnemonic(password, phrase, passphrase string) (string, error) {
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	defer zero(seed)
	return k.writeSeed(password, seed)
}

// Sign signs req with the key its path selects under the seed req.KeyID
// addresses.
func (k *KeyMaster) Sign(ctx context.Context, req signing.SignRequest, password string) (*signing.Signature, error) {
	start := time.Now()
	var sig *signing.Signature
	err := ctx.Err()
	if err == nil {
		sig, err = k.dispatcher.Dispatch(req, password, k.ks)
	}
	metrics.RecordSignature(req.Curve.String(), metrics.StatusFor(err))
	k.finish(ctx, metrics.OpSign, start, err, &audit.AuditEvent{
		EventType: audit.EventSign,
		KeyID:     req.KeyID,
		Path:      req.Path,
		Curve:     req.Curve.String(),
	})
	return sig, err
}

// PublicKey returns the public key at req.Path. req.UnsignedData is ignored.
func (k *KeyMaster) PublicKey(ctx context.Context, req signing.SignRequest, password string) ([]byte, error) {
	start := time.Now()
	var pub []byte
	err := ctx.Err()
	if err == nil {
		pub, err = k.dispatcher.PublicKey(req, password, k.ks)
	}
	k.finish(ctx, metrics.OpPublicKey, start, err, &audit.AuditEvent{
		EventType: audit.EventPublicKey,
		KeyID:     req.KeyID,
		Path:      req.Path,
		Curve:     req.Curve.String(),
	})
	return pub, err
}

// finish records metrics, the log line and, when event is non-nil, an
// audit event for one operation.
func (k *KeyMaster) finish(ctx context.Context, op string, start time.Time, err error, event *audit.AuditEvent) {
	elapsed := time.Since(start)
	metrics.RecordOperation(op, k.backend, metrics.StatusFor(err), elapsed.Seconds())

	requestID := correlation.GetCorrelationID(ctx)
	fields := []logger.Field{
		logger.String("operation", op),
		logger.String("backend", k.backend),
		logger.Duration("duration", elapsed),
	}
	if requestID != "" {
		fields = append(fields, logger.String(correlation.LogField, requestID))
	}

	kind := ErrorKind(err)
	if err != nil {
		metrics.RecordError(op, k.backend, kind)
		k.log.Warn("operation failed", append(fields, logger.String("error_kind", kind))...)
	} else {
		k.log.Debug("operation complete", fields...)
	}

	if event == nil {
		return
	}
	event.Backend = k.backend
	event.RequestID = requestID
	event.Outcome = audit.OutcomeSuccess
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		event.Error = kind
	}
	if id := auth.GetIdentity(ctx); id != nil {
		event.Principal = id.Subject
	}
	if aerr := k.auditor.LogEvent(ctx, event); aerr != nil {
		k.log.Error("audit write failed", logger.Error(aerr))
	}
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
