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
	"bytes"
	"encoding/hex"
)

const (
	opReturn      = 0x6a
	opDup         = 0x76
	opEqual       = 0x87
	opEqualVerify = 0x88
	opHash160     = 0xa9
	opCheckSig    = 0xac
)

// Script is an output locking script
type Script []byte

func (s Script) String() string {
	return hex.EncodeToString(s)
}

func (s Script) Equal(other Script) bool {
	return bytes.Equal(s, other)
}

// IsPayToScriptHash matches OP_HASH160 <20 bytes> OP_EQUAL
func (s Script) IsPayToScriptHash() bool {
	return len(s) == 23 &&
		s[0] == opHash160 &&
		s[1] == 0x14 &&
		s[22] == opEqual
}

// IsPayToPubKeyHash matches OP_DUP OP_HASH160 <20 bytes> OP_EQUALVERIFY OP_CHECKSIG
func (s Script) IsPayToPubKeyHash() bool {
	return len(s) == 25 &&
		s[0] == opDup &&
		s[1] == opHash160 &&
		s[2] == 0x14 &&
		s[23] == opEqualVerify &&
		s[24] == opCheckSig
}

// IsPayToPubKey matches <33 or 65 byte key> OP_CHECKSIG
func (s Script) IsPayToPubKey() bool {
	switch len(s) {
	case 35:
		return s[0] == 0x21 && s[34] == opCheckSig
	case 67:
		return s[0] == 0x41 && s[66] == opCheckSig
	}
	return false
}

// IsNormalPaymentScript reports whether the script is a standard spendable payment
func (s Script) IsNormalPaymentScript() bool {
	return s.IsPayToPubKeyHash() || s.IsPayToScriptHash() || s.IsPayToPubKey()
}

// IsUnspendable reports whether the script is provably unspendable
func (s Script) IsUnspendable() bool {
	return len(s) > 0 && s[0] == opReturn
}

// CommitmentScript returns the OP_RETURN script that anchors a collateral
// transaction to the given hash
func CommitmentScript(h Hash) Script {
	ret := make(Script, 0, 2+HashSize)
	ret = append(ret, opReturn, HashSize)
	ret = append(ret, h[:]...)
	return ret
}

// PayToPubKeyHashScript builds a standard P2PKH script for a 20-byte key hash
func PayToPubKeyHashScript(keyHash []byte) Script {
	ret := make(Script, 0, 25)
	ret = append(ret, opDup, opHash160, 0x14)
	ret = append(ret, keyHash...)
	ret = append(ret, opEqualVerify, opCheckSig)
	return ret
}
