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

// Package msgsign implements the recoverable secp256k1 message signatures
// used by masternodes to authenticate governance votes.
package msgsign

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

const messageMagic = "DarkNet Signed Message:\n"

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrKeyMismatch      = errors.New("signature does not match public key")
)

type PrivateKey = secp256k1.PrivateKey

// GenerateKey returns a new random private key
func GenerateKey() (*PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// ParsePrivateKey decodes a hex encoded 32-byte private key
func ParsePrivateKey(keyHex string) (*PrivateKey, error) {
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(keyBytes) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf(
			"private key must be %d bytes, got %d",
			secp256k1.PrivKeyBytesLen,
			len(keyBytes),
		)
	}
	return secp256k1.PrivKeyFromBytes(keyBytes), nil
}

// PublicKeyBytes returns the compressed public key for a private key
func PublicKeyBytes(key *PrivateKey) []byte {
	return key.PubKey().SerializeCompressed()
}

// MessageHash returns the digest that is signed for a message
func MessageHash(message string) []byte {
	h := blake2b.Sum256([]byte(messageMagic + message))
	return h[:]
}

// Sign produces a compact recoverable signature over a message
func Sign(key *PrivateKey, message string) []byte {
	return ecdsa.SignCompact(key, MessageHash(message), true)
}

// Verify checks that sig was produced over message by the holder of pubKey
func Verify(pubKey []byte, sig []byte, message string) error {
	recovered, _, err := ecdsa.RecoverCompact(sig, MessageHash(message))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	expected, err := secp256k1.ParsePubKey(pubKey)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	if !bytes.Equal(
		recovered.SerializeCompressed(),
		expected.SerializeCompressed(),
	) {
		return ErrKeyMismatch
	}
	return nil
}
