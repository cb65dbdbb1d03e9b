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

package budget

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/blinklabs-io/gouroboros/cbor"
	"golang.org/x/crypto/blake2b"
)

const HashSize = 32

// Hash is a 256-bit content identifier
type Hash [HashSize]byte

// ZeroHash is the null identifier
var ZeroHash Hash

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Compare orders hashes as little-endian 256-bit integers, so the last byte
// is the most significant
func (h Hash) Compare(other Hash) int {
	for i := HashSize - 1; i >= 0; i-- {
		if h[i] < other[i] {
			return -1
		}
		if h[i] > other[i] {
			return 1
		}
	}
	return 0
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := ParseHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a hex encoded hash
func ParseHash(s string) (Hash, error) {
	var ret Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return ret, fmt.Errorf("decode hash: %w", err)
	}
	if len(b) != HashSize {
		return ret, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(ret[:], b)
	return ret, nil
}

// hashFields computes the content identifier of a set of fields from their
// canonical CBOR encoding
func hashFields(fields ...any) Hash {
	data, err := cbor.Encode(fields)
	if err != nil {
		// Only plain data types are hashed here
		panic(fmt.Sprintf("encode fields for hashing: %s", err))
	}
	return blake2b.Sum256(data)
}

// Outpoint references a transaction output. Masternodes are identified by
// the outpoint of their collateral.
type Outpoint struct {
	cbor.StructAsArray
	Hash  Hash
	Index uint32
}

func (o Outpoint) String() string {
	return o.Hash.String() + "-" + strconv.FormatUint(uint64(o.Index), 10)
}

// ParseOutpoint decodes an outpoint in "<txid>-<index>" or "<txid>:<index>" form
func ParseOutpoint(s string) (Outpoint, error) {
	var ret Outpoint
	sep := strings.LastIndexAny(s, "-:")
	if sep < 0 {
		return ret, fmt.Errorf("invalid outpoint: %s", s)
	}
	h, err := ParseHash(s[:sep])
	if err != nil {
		return ret, err
	}
	idx, err := strconv.ParseUint(s[sep+1:], 10, 32)
	if err != nil {
		return ret, fmt.Errorf("invalid outpoint index: %w", err)
	}
	ret.Hash = h
	ret.Index = uint32(idx)
	return ret, nil
}

// Compare orders outpoints by hash then index
func (o Outpoint) Compare(other Outpoint) int {
	if c := o.Hash.Compare(other.Hash); c != 0 {
		return c
	}
	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}
	return 0
}

// TxOut is a transaction output
type TxOut struct {
	Value  int64
	Script Script
}

// Transaction is the subset of a ledger transaction the budget system inspects
type Transaction struct {
	Hash     Hash
	LockTime uint32
	Outputs  []TxOut
}
