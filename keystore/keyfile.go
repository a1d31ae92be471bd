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

package keystore

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyFileType is the envelope type of a signing key file
const KeyFileType = "EthereumSigningKey"

// Limit reads to guard against accidentally pointing at a large file
const maxKeyFileSize = 1 << 20

// KeyFile is the JSON envelope of a signing key. A bare hex key is
// accepted as well.
type KeyFile struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	PrivateKey  string `json:"privateKey"`
	// Encrypted reports whether the file was SOPS encrypted
	Encrypted bool `json:"-"`
}

// NewKeyFile builds the envelope for a private key
func NewKeyFile(key *ecdsa.PrivateKey, description string) KeyFile {
	return KeyFile{
		Type:        KeyFileType,
		Description: description,
		PrivateKey:  hexutil.Encode(crypto.FromECDSA(key)),
	}
}

// loadKeyFromFile opens the file first and checks permissions on the open
// handle to avoid a race between the check and the read
func loadKeyFromFile(path string) (*KeyFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()
	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	encrypted := false
	if isSOPSEncrypted(data) {
		data, err = Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt key file %q: %w", path, err)
		}
		encrypted = true
	}
	kf, err := ParseKeyFile(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	kf.Encrypted = encrypted
	return kf, nil
}

// ParseKeyFile parses a JSON envelope or a bare hex key
func ParseKeyFile(data []byte) (*KeyFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty key file", ErrInvalidKey)
	}
	if data[0] != '{' {
		return &KeyFile{Type: KeyFileType, PrivateKey: string(data)}, nil
	}
	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err)
	}
	if kf.Type != KeyFileType {
		return nil, fmt.Errorf(
			"%w: expected %s, got %q",
			ErrInvalidKey,
			KeyFileType,
			kf.Type,
		)
	}
	return &kf, nil
}

func (k *KeyFile) privateKey() (*ecdsa.PrivateKey, error) {
	hexKey := strings.TrimPrefix(strings.TrimSpace(k.PrivateKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err)
	}
	return key, nil
}

// isSOPSEncrypted reports whether data is a JSON document with a top
// level sops metadata block
func isSOPSEncrypted(data []byte) bool {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	_, ok := doc["sops"]
	return ok
}
