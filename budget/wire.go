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
	"fmt"

	"github.com/blinklabs-io/gouroboros/cbor"
)

// Command names the governance wire messages
type Command string

const (
	CommandSyncRequest         Command = "mnvs"
	CommandProposal            Command = "mprop"
	CommandProposalVote        Command = "mvote"
	CommandFinalizedBudget     Command = "fbs"
	CommandFinalizedBudgetVote Command = "fbvote"
	CommandSyncStatusCount     Command = "ssc"
)

// Message is a governance wire message
type Message interface {
	Command() Command
}

func (ProposalBroadcast) Command() Command        { return CommandProposal }
func (Vote) Command() Command                     { return CommandProposalVote }
func (FinalizedBudgetBroadcast) Command() Command { return CommandFinalizedBudget }
func (FinalizedBudgetVote) Command() Command      { return CommandFinalizedBudgetVote }

// SyncRequest asks a peer for its governance items. A zero hash requests
// everything, otherwise only the named item and its votes.
type SyncRequest struct {
	cbor.StructAsArray
	Hash Hash
}

func (SyncRequest) Command() Command { return CommandSyncRequest }

// Sync item kinds reported in SyncStatusCount
const (
	SyncItemProposals        = 10
	SyncItemFinalizedBudgets = 11
)

// SyncStatusCount tells a peer how many inventory items were announced for
// one sync section
type SyncStatusCount struct {
	cbor.StructAsArray
	Item  int
	Count int
}

func (SyncStatusCount) Command() Command { return CommandSyncStatusCount }

type InventoryType uint8

const (
	InventoryProposal InventoryType = iota + 1
	InventoryProposalVote
	InventoryFinalizedBudget
	InventoryFinalizedBudgetVote
)

func (t InventoryType) String() string {
	switch t {
	case InventoryProposal:
		return "proposal"
	case InventoryProposalVote:
		return "proposal-vote"
	case InventoryFinalizedBudget:
		return "finalized-budget"
	case InventoryFinalizedBudgetVote:
		return "finalized-budget-vote"
	default:
		return "unknown"
	}
}

// Inventory announces an item by type and hash
type Inventory struct {
	cbor.StructAsArray
	Type InventoryType
	Hash Hash
}

func (i Inventory) String() string {
	return i.Type.String() + " " + i.Hash.String()
}

// EncodeMessage serializes a message for the transport
func EncodeMessage(msg Message) (Command, []byte, error) {
	data, err := cbor.Encode(msg)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s message: %w", msg.Command(), err)
	}
	return msg.Command(), data, nil
}

// DecodeMessage parses a message received from the transport
func DecodeMessage(cmd Command, data []byte) (Message, error) {
	var msg Message
	var err error
	switch cmd {
	case CommandSyncRequest:
		var m SyncRequest
		_, err = cbor.Decode(data, &m)
		msg = m
	case CommandProposal:
		var m ProposalBroadcast
		_, err = cbor.Decode(data, &m)
		msg = m
	case CommandProposalVote:
		var m Vote
		_, err = cbor.Decode(data, &m)
		msg = m
	case CommandFinalizedBudget:
		var m FinalizedBudgetBroadcast
		_, err = cbor.Decode(data, &m)
		msg = m
	case CommandFinalizedBudgetVote:
		var m FinalizedBudgetVote
		_, err = cbor.Decode(data, &m)
		msg = m
	case CommandSyncStatusCount:
		var m SyncStatusCount
		_, err = cbor.Decode(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("unknown governance command: %s", cmd)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s message: %w", cmd, err)
	}
	return msg, nil
}
