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
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/blinklabs-io/treasury/keystore"
	"github.com/blinklabs-io/treasury/msgsign"
	"github.com/spf13/cobra"
)

var keygenFlags = struct {
	out         string
	description string
}{}

// runKeygen writes a new masternode signing key to path and prints its
// public key
func runKeygen(w io.Writer, path string, description string) error {
	if path == "" {
		return errors.New("no output file given")
	}
	key, err := msgsign.GenerateKey()
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}
	if err := keystore.WriteSigningKey(path, key, description); err != nil {
		return err
	}
	fmt.Fprintf(
		w,
		"wrote %s\npublic key: %s\n",
		path,
		hex.EncodeToString(msgsign.PublicKeyBytes(key)),
	)
	return nil
}

func keygenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a masternode signing key file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runKeygen(
				cmd.OutOrStdout(),
				keygenFlags.out,
				keygenFlags.description,
			)
		},
	}
	cmd.Flags().
		StringVarP(&keygenFlags.out, "out", "o", "masternode.skey", "key file to create")
	cmd.Flags().
		StringVar(&keygenFlags.description, "description", "Masternode Signing Key", "description stored in the key file")
	return cmd
}
