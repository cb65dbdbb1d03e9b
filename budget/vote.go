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
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/blinklabs-io/gouroboros/cbor"

	"github.com/blinklabs-io/treasury/chainparams"
	"github.com/blinklabs-io/treasury/msgsign"
)

type VoteDirection uint8

const (
	VoteAbstain VoteDirection = 0
	VoteYes     VoteDirection = 1
	VoteNo      VoteDirection = 2
)

func (d VoteDirection) String() string {
	switch d {
	case VoteAbstain:
		return "ABSTAIN"
	case VoteYes:
		return "YES"
	case VoteNo:
		return "NO"
	default:
		return "UNKNOWN"
	}
}

// ParseVoteDirection accepts "yes", "no" or "abstain" in any case
func ParseVoteDirection(s string) (VoteDirection, error) {
	switch strings.ToLower(s) {
	case "yes":
		return VoteYes, nil
	case "no":
		return VoteNo, nil
	case "abstain":
		return VoteAbstain, nil
	}
	return 0, fmt.Errorf("invalid vote direction: %s", s)
}

// Vote is a masternode ballot on a proposal
type Vote struct {
	cbor.StructAsArray
	Voter     Outpoint
	Proposal  Hash
	Direction VoteDirection
	Time      int64
	Signature []byte
	invalid   bool
	synced    bool
}

func NewVote(
	voter Outpoint,
	proposal Hash,
	direction VoteDirection,
	now time.Time,
) Vote {
	return Vote{
		Voter:     voter,
		Proposal:  proposal,
		Direction: direction,
		Time:      now.Unix(),
	}
}

// Hash returns the vote's inventory identifier
func (v Vote) Hash() Hash {
	return hashFields(v.Voter, v.Proposal, uint8(v.Direction), v.Time)
}

// SignatureMessage returns the string a masternode signs to cast the vote
func (v Vote) SignatureMessage() string {
	return v.Voter.String() + v.Proposal.String() +
		strconv.Itoa(int(v.Direction)) + strconv.FormatInt(v.Time, 10)
}

func (v *Vote) Sign(key *msgsign.PrivateKey) {
	v.Signature = msgsign.Sign(key, v.SignatureMessage())
}

func (v Vote) CheckSignature(pubKey []byte) error {
	if err := msgsign.Verify(pubKey, v.Signature, v.SignatureMessage()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

// IsValid reports whether the voter is still a registered masternode
func (v Vote) IsValid() bool      { return !v.invalid }
func (v *Vote) SetValid(ok bool)  { v.invalid = !ok }
func (v Vote) IsSynced() bool     { return v.synced }
func (v *Vote) SetSynced(ok bool) { v.synced = ok }

func (v Vote) voter() Outpoint  { return v.Voter }
func (v Vote) timestamp() int64 { return v.Time }

// FinalizedBudgetVote is a masternode's endorsement of a finalized budget
type FinalizedBudgetVote struct {
	cbor.StructAsArray
	Voter     Outpoint
	Budget    Hash
	Time      int64
	Signature []byte
	invalid   bool
	synced    bool
}

func NewFinalizedBudgetVote(
	voter Outpoint,
	budget Hash,
	now time.Time,
) FinalizedBudgetVote {
	return FinalizedBudgetVote{
		Voter:  voter,
		Budget: budget,
		Time:   now.Unix(),
	}
}

func (v FinalizedBudgetVote) Hash() Hash {
	return hashFields(v.Voter, v.Budget, v.Time)
}

func (v FinalizedBudgetVote) SignatureMessage() string {
	return v.Voter.String() + v.Budget.String() + strconv.FormatInt(v.Time, 10)
}

func (v *FinalizedBudgetVote) Sign(key *msgsign.PrivateKey) {
	v.Signature = msgsign.Sign(key, v.SignatureMessage())
}

func (v FinalizedBudgetVote) CheckSignature(pubKey []byte) error {
	if err := msgsign.Verify(pubKey, v.Signature, v.SignatureMessage()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return nil
}

func (v FinalizedBudgetVote) IsValid() bool      { return !v.invalid }
func (v *FinalizedBudgetVote) SetValid(ok bool)  { v.invalid = !ok }
func (v FinalizedBudgetVote) IsSynced() bool     { return v.synced }
func (v *FinalizedBudgetVote) SetSynced(ok bool) { v.synced = ok }

func (v FinalizedBudgetVote) voter() Outpoint  { return v.Voter }
func (v FinalizedBudgetVote) timestamp() int64 { return v.Time }

type timedVote interface {
	voter() Outpoint
	timestamp() int64
	Hash() Hash
}

// addOrUpdateVote stores vote unless it is older than, or too close to, the
// voter's current vote on the same target, or stamped too far in the future
func addOrUpdateVote[V timedVote](
	votes map[Outpoint]V,
	vote V,
	now time.Time,
	minUpdate time.Duration,
) error {
	voteTime := vote.timestamp()
	if old, ok := votes[vote.voter()]; ok {
		oldTime := old.timestamp()
		if oldTime > voteTime {
			return fmt.Errorf("%w - %s", ErrVoteTooOld, vote.Hash())
		}
		minSeconds := int64(minUpdate / time.Second)
		if voteTime-oldTime < minSeconds {
			return fmt.Errorf(
				"%w - %s - %d sec < %d sec",
				ErrVoteTooSoon,
				vote.Hash(),
				voteTime-oldTime,
				minSeconds,
			)
		}
	}
	maxTime := now.Add(chainparams.VoteFutureDrift).Unix()
	if voteTime > maxTime {
		return fmt.Errorf(
			"%w - %s - time %d - max time %d",
			ErrVoteFromFuture,
			vote.Hash(),
			voteTime,
			maxTime,
		)
	}
	votes[vote.voter()] = vote
	return nil
}

// sortedVotes returns the votes ordered by voter for deterministic output
func sortedVotes[V timedVote](votes map[Outpoint]V) []V {
	ret := make([]V, 0, len(votes))
	for _, v := range votes {
		ret = append(ret, v)
	}
	slices.SortFunc(ret, func(a, b V) int {
		return a.voter().Compare(b.voter())
	})
	return ret
}
