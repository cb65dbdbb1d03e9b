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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/treasury/chainparams"
)

func TestHandleWireMessage(t *testing.T) {
	env := newTestEnv(t, 1000)
	m := env.manager
	b := env.proposal("wire", 100*chainparams.Coin, 1008, 2)

	cmd, data, err := EncodeMessage(b)
	require.NoError(t, err)
	assert.Equal(t, CommandProposal, cmd)
	require.NoError(t, m.HandleWireMessage(testPeer, cmd, data))

	cmd, data, err = EncodeMessage(env.vote(0, b.Hash(), VoteYes, testNow))
	require.NoError(t, err)
	assert.Equal(t, CommandProposalVote, cmd)
	require.NoError(t, m.HandleWireMessage(testPeer, cmd, data))

	p, ok := m.GetProposal(b.Hash())
	require.True(t, ok)
	assert.Equal(t, 1, p.Yeas())
	assert.Empty(t, env.network.misbehaving)
}

func TestDecodeMessage(t *testing.T) {
	fb := NewFinalizedBudgetBroadcast(
		MainBudgetName,
		1008,
		testPayments(2, 10*chainparams.Coin),
		hashFields("fee"),
	)
	testDefs := []Message{
		SyncRequest{},
		SyncRequest{Hash: hashFields("target")},
		fb,
		NewFinalizedBudgetVote(Outpoint{Hash: hashFields("mn"), Index: 1}, fb.Hash(), testNow),
		SyncStatusCount{Item: SyncItemFinalizedBudgets, Count: 12},
	}
	for _, msg := range testDefs {
		t.Run(string(msg.Command()), func(t *testing.T) {
			cmd, data, err := EncodeMessage(msg)
			require.NoError(t, err)
			decoded, err := DecodeMessage(cmd, data)
			require.NoError(t, err)
			assert.Equal(t, msg.Command(), decoded.Command())
			if h, ok := msg.(interface{ Hash() Hash }); ok {
				assert.Equal(t, h.Hash(), decoded.(interface{ Hash() Hash }).Hash())
			}
		})
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	_, err := DecodeMessage("bogus", []byte{0x80})
	assert.ErrorContains(t, err, "unknown governance command: bogus")

	_, err = DecodeMessage(CommandProposal, []byte{0xff})
	assert.ErrorContains(t, err, "decode mprop message")

	env := newTestEnv(t, 1000)
	assert.Error(t, env.manager.HandleWireMessage(testPeer, CommandProposalVote, []byte{0x01}))
}

func TestInventoryString(t *testing.T) {
	h := hashFields("inv")
	assert.Equal(t, "proposal "+h.String(), Inventory{Type: InventoryProposal, Hash: h}.String())
	assert.Equal(t, "unknown", InventoryType(9).String())
}
