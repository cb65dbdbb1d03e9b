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

// Package keystore reads and writes masternode signing key files. A key
// file is a JSON envelope carrying the CBOR encoded secp256k1 secret key as
// hex, and must not be readable by group or other users.
package keystore

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/blinklabs-io/gouroboros/cbor"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/blinklabs-io/treasury/msgsign"
)

// SigningKeyType is the envelope type of a masternode signing key
const SigningKeyType = "MasternodeSigningKey_secp256k1"

var (
	ErrInsecureFileMode = errors.New("insecure file permissions")
	ErrUnknownKeyType   = errors.New("unknown key type")
)

type keyFileEnvelope struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	CborHex     string `json:"cborHex"`
}

// LoadSigningKey reads a masternode signing key from path. Permissions are
// checked on the open handle before reading.
func LoadSigningKey(path string) (*msgsign.PrivateKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file %q: %w", path, err)
	}
	defer f.Close()
	if err := checkOpenFilePermissions(f); err != nil {
		return nil, err
	}
	// Valid key files are well under this size
	const maxKeyFileSize = 1 << 16
	data, err := io.ReadAll(io.LimitReader(f, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file %q: %w", path, err)
	}
	key, err := ParseSigningKey(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key file %q: %w", path, err)
	}
	return key, nil
}

// ParseSigningKey decodes a key file envelope
func ParseSigningKey(data []byte) (*msgsign.PrivateKey, error) {
	var env keyFileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("could not parse key file envelope: %w", err)
	}
	if env.Type != SigningKeyType {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKeyType, env.Type)
	}
	cborData, err := hex.DecodeString(env.CborHex)
	if err != nil {
		return nil, fmt.Errorf("could not decode key from hex: %w", err)
	}
	var keyBytes []byte
	if _, err := cbor.Decode(cborData, &keyBytes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signing key CBOR: %w", err)
	}
	if len(keyBytes) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf(
			"invalid signing key bytes: expected %d, got %d",
			secp256k1.PrivKeyBytesLen,
			len(keyBytes),
		)
	}
	return secp256k1.PrivKeyFromBytes(keyBytes), nil
}

// MarshalSigningKey encodes key as a key file envelope
func MarshalSigningKey(key *msgsign.PrivateKey, description string) ([]byte, error) {
	cborData, err := cbor.Encode(key.Serialize())
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing key: %w", err)
	}
	return json.MarshalIndent(
		keyFileEnvelope{
			Type:        SigningKeyType,
			Description: description,
			CborHex:     hex.EncodeToString(cborData),
		},
		"",
		"    ",
	)
}

// WriteSigningKey writes key to a new file at path that only the owner can
// read. An existing file is never overwritten.
func WriteSigningKey(path string, key *msgsign.PrivateKey, description string) error {
	data, err := MarshalSigningKey(key, description)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write key file %q: %w", path, err)
	}
	return f.Close()
}
