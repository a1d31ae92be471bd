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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/blinklabs-io/daogov/internal/config"
	"github.com/blinklabs-io/daogov/keystore"
)

func keyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the signing key file",
	}
	cmd.AddCommand(keyGenerateCommand(), keyAddressCommand())
	return cmd
}

func keyGenerateCommand() *cobra.Command {
	var (
		out, description string
		encrypt          bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new signing key file",
		Long: "Generate a new signing key file. With --encrypt the file is " +
			"SOPS encrypted with the GCP or AWS KMS keys named in the " +
			"environment.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(keystore.NewKeyFile(key, description), "", "  ")
			if err != nil {
				return err
			}
			if encrypt {
				if data, err = keystore.Encrypt(data); err != nil {
					return fmt.Errorf("encrypt key file: %w", err)
				}
			}
			// #nosec G304
			f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return err
			}
			if _, err := f.Write(data); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "path of the new key file")
	cmd.Flags().StringVar(&description, "description", "daogov signing key", "key description")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "SOPS encrypt the key file")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func keyAddressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Show the account address of the configured key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			ks := keystore.NewKeyStore(keystore.KeyStoreConfig{
				KeyPath: cfg.KeyFile,
				Logger:  commonRun(),
			})
			if err := ks.Load(); err != nil {
				return err
			}
			addr, err := ks.Address()
			if err != nil {
				return err
			}
			fmt.Println(addr.Hex())
			return nil
		},
	}
}
