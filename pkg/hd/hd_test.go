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

package hd

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeedHex = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc1" +
	"9a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"

func testSeed(t *testing.T) []byte {
	t.Helper()
	seed, err := hex.DecodeString(testSeedHex)
	require.NoError(t, err)
	return seed
}

func TestParsePath(t *testing.T) {
	const h = hdkeychain.HardenedKeyStart

	tests := []struct {
		in      string
		want    Path
		wantErr bool
	}{
		{"m", Path{}, false},
		{"m/0", Path{0}, false},
		{"m/44'/0'/0'/0/0", Path{44 + h, h, h, 0, 0}, false},
		{"m/44h/60H/0'/1/2", Path{44 + h, 60 + h, h, 1, 2}, false},
		{"m/2147483647", Path{h - 1}, false},
		{"m/2147483647'", Path{2*h - 1}, false},

		{"", nil, true},
		{"M/0", nil, true},
		{"44'/0'", nil, true},
		{"m/", nil, true},
		{"m//0", nil, true},
		{"m/0/", nil, true},
		{"m/'", nil, true},
		{"m/x", nil, true},
		{"m/-1", nil, true},
		{"m/+1", nil, true},
		{"m/1''", nil, true},
		{"m/2147483648", nil, true},
		{"m/4294967296", nil, true},
		{"m/0 /1", nil, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			got, err := ParsePath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDerivation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPath_String(t *testing.T) {
	p, err := ParsePath("m/44h/0H/0'/0/7")
	require.NoError(t, err)
	assert.Equal(t, "m/44'/0'/0'/0/7", p.String())
	assert.Equal(t, "m", Path{}.String())
}

func TestDeriveKey_Vectors(t *testing.T) {
	tests := []struct {
		path string
		priv string
		pub  string
	}{
		{
			path: "m",
			priv: "1837c1be8e2995ec11cda2b066151be2cfb48adf9e47b151d46adab3a21cdf67",
			pub:  "03d902f35f560e0470c63313c7369168d9d7df2d49bf295fd9fb7cb109ccee0494",
		},
		{
			path: "m/44'/0'/0'/0/0",
			priv: "e284129cc0922579a535bbf4d1a3b25773090d28c909bc0fed73b5e0222cc372",
			pub:  "03aaeb52dd7494c361049de67cc680e83ebcbbbdbeb13637d92cd845f70308af5e",
		},
		{
			path: "m/44'/60'/0'/0/0",
			priv: "1ab42cc412b618bdea3a599e3c9bae199ebf030895b039e9db1e30dafb12b727",
			pub:  "0237b0bb7a8288d38ed49a524b5dc98cff3eb5ca824c9f9dc0dfdb3d9cd600f299",
		},
		{
			path: "m/0",
			priv: "baa89a8bdd61c5e22b9f10601d8791c9f8fc4b2fa6df9d68d336f0eb03b06eb6",
			pub:  "0376bf533d4b15510fa9f4124b6e48616f07debcf2ef0cfb185cdc4a576450b475",
		},
		{
			path: "m/0/1",
			priv: "64c2a35ea7eb34f49f23ff42f7479e00613e01c3335acaaa5adf63aea41e81fc",
			pub:  "03446801102d378f09aa200debc1acdff0f6fcf1c6d9bc1e2c7e14076d5fbc740e",
		},
	}

	seed := testSeed(t)
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			priv, err := DeriveKey(seed, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.priv, hex.EncodeToString(priv))

			pub, err := DerivePublicKey(seed, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.pub, hex.EncodeToString(pub))
		})
	}
}

func TestDeriveKey_Deterministic(t *testing.T) {
	seed := testSeed(t)
	a, err := DeriveKey(seed, "m/44'/0'/0'/0/5")
	require.NoError(t, err)
	b, err := DeriveKey(seed, "m/44'/0'/0'/0/5")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeriveKey(seed, "m/44'/0'/0'/0/6")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// Hardened and non-hardened siblings differ.
	d, err := DeriveKey(seed, "m/0'")
	require.NoError(t, err)
	e, err := DeriveKey(seed, "m/0")
	require.NoError(t, err)
	assert.NotEqual(t, d, e)
}

func TestDeriveKey_SeedLength(t *testing.T) {
	for _, n := range []int{0, 16, 32, 63, 65, 128} {
		_, err := DeriveKey(make([]byte, n), "m/0")
		assert.ErrorIs(t, err, ErrInvalidSeedLength, "len=%d", n)

		_, err = DerivePublicKey(make([]byte, n), "m/0")
		assert.ErrorIs(t, err, ErrInvalidSeedLength, "len=%d", n)
	}
}

func TestDeriveKey_SeedCheckedBeforePath(t *testing.T) {
	_, err := DeriveKey([]byte{1}, "not a path")
	assert.ErrorIs(t, err, ErrInvalidSeedLength)
}

func TestDeriveKey_MalformedPath(t *testing.T) {
	seed := testSeed(t)
	for _, p := range []string{"", "m/abc", "x/0", "m/0/2147483648"} {
		_, err := DeriveKey(seed, p)
		assert.ErrorIs(t, err, ErrDerivation, "path=%q", p)
	}
}

func TestDeriveKey_DoesNotMutateSeed(t *testing.T) {
	seed := testSeed(t)
	_, err := DeriveKey(seed, "m/44'/0'/0'/0/0")
	require.NoError(t, err)
	assert.Equal(t, testSeed(t), seed)
}
