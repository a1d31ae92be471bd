// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keystore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/daogov/keystore"
)

// Well known development key
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func writeKeyFile(t *testing.T, data []byte, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signing.key")
	require.NoError(t, os.WriteFile(path, data, perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadJSONKeyFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits do not apply")
	}
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	data, err := json.Marshal(keystore.NewKeyFile(key, "test"))
	require.NoError(t, err)
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
		KeyPath: writeKeyFile(t, data, 0o600),
	})
	assert.False(t, ks.IsLoaded())
	_, err = ks.Signer()
	assert.ErrorIs(t, err, keystore.ErrKeyNotLoaded)

	require.NoError(t, ks.Load())
	assert.True(t, ks.IsLoaded())
	addr, err := ks.Address()
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr.Hex())
	signer, err := ks.Signer()
	require.NoError(t, err)
	assert.Equal(t, addr, signer.Address())
}

func TestLoadBareHexKey(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits do not apply")
	}
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
		KeyPath: writeKeyFile(t, []byte("0x"+testKeyHex+"\n"), 0o400),
	})
	require.NoError(t, ks.Load())
	addr, err := ks.Address()
	require.NoError(t, err)
	assert.Equal(t, testAddress, addr.Hex())
}

func TestLoadRejectsInsecureMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits do not apply")
	}
	ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
		KeyPath: writeKeyFile(t, []byte(testKeyHex), 0o644),
	})
	err := ks.Load()
	require.ErrorIs(t, err, keystore.ErrInsecureFileMode)
	assert.False(t, ks.IsLoaded())
}

func TestLoadErrors(t *testing.T) {
	err := keystore.NewKeyStore(keystore.KeyStoreConfig{}).Load()
	assert.ErrorIs(t, err, keystore.ErrKeyPathRequired)

	err = keystore.NewKeyStore(keystore.KeyStoreConfig{
		KeyPath: filepath.Join(t.TempDir(), "missing"),
	}).Load()
	assert.Error(t, err)

	if runtime.GOOS != "windows" {
		err = keystore.NewKeyStore(keystore.KeyStoreConfig{
			KeyPath: writeKeyFile(t, []byte("zz"), 0o600),
		}).Load()
		assert.ErrorIs(t, err, keystore.ErrInvalidKey)
	}
}

func TestParseKeyFile(t *testing.T) {
	_, err := keystore.ParseKeyFile([]byte("  "))
	assert.ErrorIs(t, err, keystore.ErrInvalidKey)
	_, err = keystore.ParseKeyFile([]byte(`{"type":"PaymentSigningKeyShelley_ed25519"}`))
	assert.ErrorIs(t, err, keystore.ErrInvalidKey)
	kf, err := keystore.ParseKeyFile([]byte(`{"type":"EthereumSigningKey","privateKey":"0x01"}`))
	require.NoError(t, err)
	assert.Equal(t, "0x01", kf.PrivateKey)
}

func TestEncryptRequiresMasterKey(t *testing.T) {
	t.Setenv(keystore.EnvGCPKMSResourceID, "")
	t.Setenv(keystore.EnvAWSKMSKeyARNs, "")
	_, err := keystore.Encrypt([]byte(`{"type":"EthereumSigningKey","privateKey":"0x01"}`))
	assert.ErrorContains(t, err, "at least one master key")
}
