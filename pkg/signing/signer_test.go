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

package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keymaster/pkg/hd"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore"
	"github.com/jeremyhahn/go-keymaster/pkg/keystore/fake"
	"github.com/jeremyhahn/go-keymaster/pkg/storage/memory"
)

const (
	testPath = "m/44'/0'/0'/0/0"
	wantR    = "38a047f20caca5618cc56b0947939372a4c9c34cc05dd59dd75ef31f2323839d"
	wantS    = "0a6e719280a0503794715ae4403d09aec3664629f94435581a45a446d7c7ad2d"
	wantPub  = "03aaeb52dd7494c361049de67cc680e83ebcbbbdbeb13637d92cd845f70308af5e"
)

func testRequest() SignRequest {
	return NewSignRequest(fake.FixtureStoreID, testPath, []byte("hello"), Secp256k1)
}

// compact rebuilds the 65-byte recoverable form for verification.
func compact(t *testing.T, sig *Signature, rec uint8) []byte {
	t.Helper()
	r, err := hex.DecodeString(sig.R)
	require.NoError(t, err)
	s, err := hex.DecodeString(sig.S)
	require.NoError(t, err)
	out := []byte{27 + 4 + rec}
	out = append(out, r...)
	return append(out, s...)
}

func TestParseCurve(t *testing.T) {
	tests := []struct {
		in      string
		want    Curve
		wantErr bool
	}{
		{"secp256k1", Secp256k1, false},
		{"SECP256K1", Secp256k1, false},
		{"k1", Secp256k1, false},
		{"secp256r1", Secp256r1, false},
		{"p256", Secp256r1, false},
		{"prime256v1", Secp256r1, false},
		{"ed25519", Ed25519, false},
		{" Ed25519 ", Ed25519, false},
		{"", "", true},
		{"secp384r1", "", true},
		{"rsa", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCurve(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedCurve)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSignRequest_CopiesData(t *testing.T) {
	data := []byte("hello")
	req := NewSignRequest("id", testPath, data, Secp256k1)
	data[0] = 'j'
	assert.Equal(t, []byte("hello"), req.UnsignedData)
}

func TestSecp256k1Signer_Vector(t *testing.T) {
	ks := fake.New(fake.Fixture())

	sig, err := NewSecp256k1Signer().Sign(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	assert.Equal(t, wantR, sig.R)
	assert.Equal(t, wantS, sig.S)
	assert.Nil(t, sig.V)

	data, err := json.Marshal(sig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"r":"`+wantR+`","s":"`+wantS+`"}`, string(data))
}

func TestSecp256k1Signer_RecoveryID(t *testing.T) {
	ks := fake.New(fake.Fixture())

	sig, err := NewSecp256k1Signer(WithRecoveryID()).Sign(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	require.NotNil(t, sig.V)
	assert.Equal(t, uint8(1), *sig.V)
	assert.Equal(t, wantR, sig.R)
	assert.Equal(t, wantS, sig.S)

	digest := sha256.Sum256([]byte("hello"))
	pub, compressed, err := ecdsa.RecoverCompact(compact(t, sig, *sig.V), digest[:])
	require.NoError(t, err)
	assert.True(t, compressed)
	assert.Equal(t, wantPub, hex.EncodeToString(pub.SerializeCompressed()))
}

func TestSecp256k1Signer_Deterministic(t *testing.T) {
	ks := fake.New(fake.Fixture())
	s := NewSecp256k1Signer()

	a, err := s.Sign(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	b, err := s.Sign(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	other := NewSignRequest(fake.FixtureStoreID, testPath, []byte("world"), Secp256k1)
	c, err := s.Sign(other, fake.FixturePassword, ks)
	require.NoError(t, err)
	assert.NotEqual(t, a.R, c.R)
}

func TestSecp256k1Signer_LowS(t *testing.T) {
	ks := fake.New(fake.Fixture())
	s := NewSecp256k1Signer()

	for _, msg := range []string{"", "a", "hello", "the quick brown fox", "0123456789"} {
		req := NewSignRequest(fake.FixtureStoreID, "m/44'/0'/0'/0/1", []byte(msg), Secp256k1)
		sig, err := s.Sign(req, fake.FixturePassword, ks)
		require.NoError(t, err)

		raw, err := hex.DecodeString(sig.S)
		require.NoError(t, err)
		require.Len(t, raw, 32)
		var scalar secp256k1.ModNScalar
		scalar.SetByteSlice(raw)
		assert.False(t, scalar.IsOverHalfOrder(), "msg=%q", msg)
	}
}

func TestSecp256k1Signer_DeriveKeyAndPublicKey(t *testing.T) {
	ks := fake.New(fake.Fixture())
	s := NewSecp256k1Signer()

	key, err := s.DeriveKey(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	assert.Equal(t, "e284129cc0922579a535bbf4d1a3b25773090d28c909bc0fed73b5e0222cc372", hex.EncodeToString(key))

	pub, err := s.PublicKey(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	assert.Equal(t, wantPub, hex.EncodeToString(pub))
}

func TestSecp256k1Signer_Errors(t *testing.T) {
	s := NewSecp256k1Signer()

	t.Run("nil keystore", func(t *testing.T) {
		_, err := s.Sign(testRequest(), "pass", nil)
		assert.ErrorIs(t, err, ErrKeystoreRequired)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := s.Sign(testRequest(), "nope", fake.New(fake.Fixture()))
		assert.ErrorIs(t, err, keystore.ErrPasswordInvalid)
	})

	t.Run("unknown key", func(t *testing.T) {
		req := NewSignRequest("missing", testPath, []byte("hello"), Secp256k1)
		_, err := s.Sign(req, "pass", fake.New(fake.Fixture()))
		assert.ErrorIs(t, err, keystore.ErrNotExist)
	})

	t.Run("bad path", func(t *testing.T) {
		req := NewSignRequest(fake.FixtureStoreID, "m/x", []byte("hello"), Secp256k1)
		_, err := s.Sign(req, "pass", fake.New(fake.Fixture()))
		assert.ErrorIs(t, err, hd.ErrDerivation)
	})

	t.Run("short seed", func(t *testing.T) {
		_, err := s.Sign(testRequest(), "pass", fake.New(make([]byte, 32)))
		assert.ErrorIs(t, err, hd.ErrInvalidSeedLength)
	})

	t.Run("storage failure", func(t *testing.T) {
		ks := fake.New(fake.Fixture())
		ks.FailWith(keystore.ErrStorage)
		_, err := s.Sign(testRequest(), "pass", ks)
		assert.ErrorIs(t, err, keystore.ErrStorage)
	})
}

func TestSignSecp256k1_RawKey(t *testing.T) {
	key := make([]byte, 32)
	key[31] = 0x03

	sig, err := SignSecp256k1(key, []byte("hello"), true)
	require.NoError(t, err)
	assert.Equal(t, "0bb32ae5ae4b11aa1015c05b6189011009a976425bfdb21a667263bdf08f8045", sig.R)
	assert.Equal(t, "644ca8d8c9556e08b4e2b7d05a5da639bcacf2d11e58bab51c2616992f385b8d", sig.S)
	require.NotNil(t, sig.V)
	assert.Equal(t, uint8(1), *sig.V)

	// The key is not modified.
	assert.Equal(t, byte(0x03), key[31])
}

func TestSignSecp256k1_InvalidKeys(t *testing.T) {
	order, err := hex.DecodeString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141")
	require.NoError(t, err)
	aboveOrder := append([]byte(nil), order...)
	aboveOrder[31]++

	tests := []struct {
		name string
		key  []byte
	}{
		{"nil", nil},
		{"short", make([]byte, 31)},
		{"long", make([]byte, 33)},
		{"zero", make([]byte, 32)},
		{"order", order},
		{"above order", aboveOrder},
		{"all ff", []byte{
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SignSecp256k1(tt.key, []byte("hello"), false)
			assert.ErrorIs(t, err, ErrSigningFailed)
		})
	}
}

func TestUnsupportedSigners(t *testing.T) {
	ks := fake.New(fake.Fixture())
	for _, s := range []CurveSigner{Secp256r1Signer{}, Ed25519Signer{}} {
		_, err := s.Sign(testRequest(), fake.FixturePassword, ks)
		assert.ErrorIs(t, err, ErrUnsupportedCurve)
		_, err = s.DeriveKey(testRequest(), fake.FixturePassword, ks)
		assert.ErrorIs(t, err, ErrUnsupportedCurve)
		_, err = s.PublicKey(testRequest(), fake.FixturePassword, ks)
		assert.ErrorIs(t, err, ErrUnsupportedCurve)
	}
	// The keystore is never consulted.
	assert.Equal(t, 0, ks.Reads())
}

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()

	tests := []struct {
		curve   Curve
		wantErr error
	}{
		{Secp256k1, nil},
		{Secp256r1, ErrUnsupportedCurve},
		{Ed25519, ErrUnsupportedCurve},
		{Curve("bls12-381"), ErrUnsupportedCurve},
		{Curve(""), ErrUnsupportedCurve},
	}
	for _, tt := range tests {
		t.Run(string(tt.curve), func(t *testing.T) {
			ks := fake.New(fake.Fixture())
			req := NewSignRequest(fake.FixtureStoreID, testPath, []byte("hello"), tt.curve)

			sig, err := d.Dispatch(req, fake.FixturePassword, ks)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sig)
				assert.Equal(t, 0, ks.Reads())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, wantR, sig.R)
			assert.Equal(t, wantS, sig.S)
		})
	}
}

func TestDispatcher_PublicKey(t *testing.T) {
	d := NewDispatcher()
	ks := fake.New(fake.Fixture())

	pub, err := d.PublicKey(testRequest(), fake.FixturePassword, ks)
	require.NoError(t, err)
	assert.Equal(t, wantPub, hex.EncodeToString(pub))

	req := NewSignRequest(fake.FixtureStoreID, testPath, nil, Ed25519)
	_, err = d.PublicKey(req, fake.FixturePassword, ks)
	assert.ErrorIs(t, err, ErrUnsupportedCurve)
}

func TestDispatcher_WithRecoveryID(t *testing.T) {
	sig, err := NewDispatcher(WithRecoveryID()).Dispatch(testRequest(), fake.FixturePassword, fake.New(fake.Fixture()))
	require.NoError(t, err)
	require.NotNil(t, sig.V)
	assert.Equal(t, uint8(1), *sig.V)
}

func TestDispatch_EncryptedKeystore(t *testing.T) {
	engine, err := keystore.NewEngine(&keystore.Config{Storage: memory.New()})
	require.NoError(t, err)

	id, err := engine.WriteKey("pass", fake.Fixture())
	require.NoError(t, err)

	req := NewSignRequest(id, testPath, []byte("hello"), Secp256k1)
	sig, err := NewDispatcher().Dispatch(req, "pass", engine)
	require.NoError(t, err)
	assert.Equal(t, wantR, sig.R)
	assert.Equal(t, wantS, sig.S)
	assert.Nil(t, sig.V)

	_, err = NewDispatcher().Dispatch(req, "wrong", engine)
	assert.True(t, errors.Is(err, keystore.ErrPasswordInvalid))
}
