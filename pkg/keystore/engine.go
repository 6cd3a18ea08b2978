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

package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-keymaster/pkg/adapters/kdf"
	"github.com/jeremyhahn/go-keymaster/pkg/adapters/logger"
	"github.com/jeremyhahn/go-keymaster/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keymaster/pkg/storage"
	"github.com/jeremyhahn/go-keymaster/pkg/validation"
)

const (
	// DefaultSaltLength is the salt size written into new records.
	DefaultSaltLength = 16

	// MinSaltLength is the smallest salt the engine writes. Stored records
	// with shorter salts stay readable.
	MinSaltLength = 16

	// maxIDAttempts bounds store ID regeneration on collision.
	maxIDAttempts = 8
)

// Config configures an Engine.
type Config struct {
	// Storage holds the encrypted records. Required.
	Storage storage.Backend

	// Random supplies entropy, salts, IVs and store IDs. Defaults to crypto/rand.
	Random rand.Source

	// KDF is the template for newly written records. The salt is ignored and
	// replaced per record. Defaults to scrypt with log_n 13, r 8, p 1, dklen 16.
	KDF *kdf.KDFParams

	// SaltLength is the per-record salt size. Defaults to 16, minimum 16.
	SaltLength int

	// Registry resolves the KDF named by a stored record.
	Registry *kdf.Registry

	Logger logger.Logger
}

// Engine is the password-based keystore.
type Engine struct {
	storage    storage.Backend
	random     rand.Source
	template   kdf.KDFParams
	saltLength int
	registry   *kdf.Registry
	logger     logger.Logger
}

// NewEngine validates config and returns an Engine.
func NewEngine(config *Config) (*Engine, error) {
	if config == nil || config.Storage == nil {
		return nil, fmt.Errorf("%w: storage backend is required", ErrStorage)
	}

	e := &Engine{
		storage:    config.Storage,
		random:     config.Random,
		saltLength: config.SaltLength,
		registry:   config.Registry,
		logger:     config.Logger,
	}
	if e.random == nil {
		e.random = rand.Default()
	}
	if e.saltLength == 0 {
		e.saltLength = DefaultSaltLength
	}
	if e.saltLength < MinSaltLength {
		return nil, fmt.Errorf("%w: salt length %d below %d", ErrKDF, e.saltLength, MinSaltLength)
	}
	if e.registry == nil {
		e.registry = kdf.NewRegistry()
	}
	if e.logger == nil {
		e.logger = logger.Nop()
	}

	if config.KDF != nil {
		e.template = *config.KDF
	} else {
		e.template = *kdf.DefaultParams(kdf.AlgorithmScrypt)
	}
	e.template.Salt = nil

	// Reject a template that would write unreadable records.
	probe := e.template
	probe.Salt = make([]byte, e.saltLength)
	adapter, err := e.registry.Get(probe.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedKDF, err)
	}
	if err := adapter.ValidateParams(&probe); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKDF, err)
	}
	if probe.KeyLength < AESKeyLength {
		return nil, fmt.Errorf("%w: dklen must be at least %d", ErrKDF, AESKeyLength)
	}

	return e, nil
}

// GenerateEntropy returns 16 or 32 random bytes for bits 128 or 256.
func (e *Engine) GenerateEntropy(bits int) ([]byte, error) {
	if bits != EntropyBits128 && bits != EntropyBits256 {
		return nil, fmt.Errorf("%w: %d bits (want %d or %d)",
			ErrInvalidLength, bits, EntropyBits128, EntropyBits256)
	}
	buf, err := e.random.Rand(bits / 8)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return buf, nil
}

// WriteKey encrypts key under password and stores it under a new store ID.
func (e *Engine) WriteKey(password string, key []byte) (string, error) {
	if password == "" {
		return "", ErrPasswordRequired
	}
	if len(key) == 0 {
		return "", ErrEmptyKey
	}

	id, err := e.newStoreID()
	if err != nil {
		return "", err
	}
	salt, err := e.random.Rand(e.saltLength)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandom, err)
	}
	iv, err := e.random.Rand(IVLength)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandom, err)
	}

	params := e.template
	params.Salt = salt

	pw := []byte(password)
	defer zero(pw)

	dk, err := e.registry.Derive(pw, &params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrKDF, err)
	}
	defer zero(dk)

	ct, err := xorCTR(dk[:AESKeyLength], iv, key)
	if err != nil {
		return "", err
	}

	rec, err := newRecord(&sealed{
		ciphertext: ct,
		iv:         iv,
		mac:        computeMAC(pw, ct),
		kdf:        &params,
	})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialize, err)
	}

	if err := e.storage.Put(storage.RecordPath(id), data, storage.DefaultOptions()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	e.logger.Debug("keystore record written",
		logger.String("store_id", id),
		logger.String("kdf", params.Algorithm.String()))
	return id, nil
}

// GetKey decrypts the key stored under storeID. The record's own KDF
// parameters are used, so records written with other settings stay readable.
func (e *Engine) GetKey(password, storeID string) ([]byte, error) {
	if err := validation.ValidateStoreID(storeID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotExist, ErrInvalidStoreID)
	}

	data, err := e.storage.Get(storage.RecordPath(storeID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	s, err := rec.open(e.registry)
	if err != nil {
		return nil, err
	}

	pw := []byte(password)
	defer zero(pw)

	if !verifyMAC(pw, s.ciphertext, s.mac) {
		e.logger.Warn("keystore mac mismatch", logger.String("store_id", storeID))
		return nil, ErrPasswordInvalid
	}

	dk, err := e.registry.Derive(pw, s.kdf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKDF, err)
	}
	defer zero(dk)

	return xorCTR(dk[:AESKeyLength], s.iv, s.ciphertext)
}

// Exists reports whether a record is stored under storeID.
func (e *Engine) Exists(storeID string) (bool, error) {
	if err := validation.ValidateStoreID(storeID); err != nil {
		return false, ErrInvalidStoreID
	}
	ok, err := e.storage.Exists(storage.RecordPath(storeID))
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return ok, nil
}

// Delete removes the record stored under storeID.
func (e *Engine) Delete(storeID string) error {
	if err := validation.ValidateStoreID(storeID); err != nil {
		return fmt.Errorf("%w: %w", ErrNotExist, ErrInvalidStoreID)
	}
	if err := e.storage.Delete(storage.RecordPath(storeID)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotExist
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	e.logger.Info("keystore record deleted", logger.String("store_id", storeID))
	return nil
}

// List returns the store IDs of every well-formed record.
func (e *Engine) List() ([]string, error) {
	ids, err := storage.ListRecords(e.storage)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	out := ids[:0]
	for _, id := range ids {
		if validation.ValidateStoreID(id) == nil {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) newStoreID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		raw, err := e.random.Rand(StoreIDLength)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRandom, err)
		}
		id := hex.EncodeToString(raw)
		exists, err := e.storage.Exists(storage.RecordPath(id))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique store id", ErrStorage)
}

var _ Manager = (*Engine)(nil)
