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

// Package keystore loads the signing key used to submit governance
// transactions. Key files must not be readable by group or other and may
// be encrypted with SOPS.
package keystore

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/blinklabs-io/daogov/chain/eth"
)

var (
	ErrKeyNotLoaded     = errors.New("signing key not loaded")
	ErrKeyPathRequired  = errors.New("signing key path is required")
	ErrInsecureFileMode = errors.New("insecure file permissions")
	ErrInvalidKey       = errors.New("invalid signing key")
)

type KeyStoreConfig struct {
	// KeyPath is the signing key file
	KeyPath string
	Logger  *slog.Logger
}

// KeyStore holds the account key of the session
type KeyStore struct {
	config KeyStoreConfig
	logger *slog.Logger

	mu  sync.RWMutex
	key *ecdsa.PrivateKey
}

func NewKeyStore(config KeyStoreConfig) *KeyStore {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &KeyStore{
		config: config,
		logger: config.Logger.With("component", "keystore"),
	}
}

// Load reads, decrypts when needed, and parses the configured key file
func (ks *KeyStore) Load() error {
	if ks.config.KeyPath == "" {
		return ErrKeyPathRequired
	}
	kf, err := loadKeyFromFile(ks.config.KeyPath)
	if err != nil {
		return fmt.Errorf("failed to load signing key: %w", err)
	}
	key, err := kf.privateKey()
	if err != nil {
		return fmt.Errorf("failed to load signing key %q: %w", ks.config.KeyPath, err)
	}
	ks.mu.Lock()
	ks.key = key
	ks.mu.Unlock()
	ks.logger.Info(
		"signing key loaded",
		"address", crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"encrypted", kf.Encrypted,
	)
	return nil
}

// IsLoaded returns true once Load succeeded
func (ks *KeyStore) IsLoaded() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.key != nil
}

// Address returns the account address of the loaded key
func (ks *KeyStore) Address() (common.Address, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.key == nil {
		return common.Address{}, ErrKeyNotLoaded
	}
	return crypto.PubkeyToAddress(ks.key.PublicKey), nil
}

// Signer returns a transaction signer for the loaded key
func (ks *KeyStore) Signer() (*eth.KeySigner, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	if ks.key == nil {
		return nil, ErrKeyNotLoaded
	}
	return eth.NewKeySigner(ks.key), nil
}
