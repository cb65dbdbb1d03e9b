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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOrUpdateVote(t *testing.T) {
	voter := Outpoint{Hash: hashFields("voter"), Index: 1}
	target := hashFields("target")
	testDefs := []struct {
		name     string
		first    time.Duration
		second   time.Duration
		now      time.Duration
		expected error
	}{
		{
			name:     "stale vote",
			first:    0,
			second:   -time.Minute,
			expected: ErrVoteTooOld,
		},
		{
			name:     "too soon",
			first:    0,
			second:   30 * time.Minute,
			now:      30 * time.Minute,
			expected: ErrVoteTooSoon,
		},
		{
			name:     "too soon by one second",
			first:    0,
			second:   time.Hour - time.Second,
			now:      time.Hour,
			expected: ErrVoteTooSoon,
		},
		{
			name:   "update after minimum interval",
			first:  0,
			second: time.Hour,
			now:    time.Hour,
		},
		{
			name:     "from the future",
			first:    0,
			second:   3 * time.Hour,
			now:      time.Hour,
			expected: ErrVoteFromFuture,
		},
	}
	for _, testDef := range testDefs {
		t.Run(testDef.name, func(t *testing.T) {
			votes := make(map[Outpoint]Vote)
			first := NewVote(voter, target, VoteYes, testNow.Add(testDef.first))
			require.NoError(t, addOrUpdateVote(votes, first, testNow, time.Hour))
			second := NewVote(voter, target, VoteNo, testNow.Add(testDef.second))
			err := addOrUpdateVote(
				votes,
				second,
				testNow.Add(testDef.now),
				time.Hour,
			)
			if testDef.expected != nil {
				require.ErrorIs(t, err, testDef.expected)
				assert.Equal(t, VoteYes, votes[voter].Direction)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, VoteNo, votes[voter].Direction)
		})
	}
}

func TestAddOrUpdateVoteFirstFromFuture(t *testing.T) {
	votes := make(map[Outpoint]FinalizedBudgetVote)
	vote := NewFinalizedBudgetVote(
		Outpoint{Hash: hashFields("voter")},
		hashFields("budget"),
		testNow.Add(2*time.Hour),
	)
	err := addOrUpdateVote(votes, vote, testNow, time.Hour)
	require.ErrorIs(t, err, ErrVoteFromFuture)
	assert.Empty(t, votes)
}

func TestVoteSignature(t *testing.T) {
	env := newTestEnv(t, 1000)
	vote := env.vote(0, hashFields("proposal"), VoteYes, testNow)
	mn, ok := env.registry.Find(vote.Voter)
	require.True(t, ok)
	require.NoError(t, vote.CheckSignature(mn.PubKey))

	// Changing the direction invalidates the signature
	vote.Direction = VoteNo
	require.ErrorIs(t, vote.CheckSignature(mn.PubKey), ErrInvalidSignature)

	fvote := env.finalizedVote(1, hashFields("budget"), testNow)
	mn, ok = env.registry.Find(fvote.Voter)
	require.True(t, ok)
	require.NoError(t, fvote.CheckSignature(mn.PubKey))
	other, _ := env.registry.Find(env.registry.outs[2])
	require.ErrorIs(t, fvote.CheckSignature(other.PubKey), ErrInvalidSignature)
}

func TestVoteHashIgnoresTransientFlags(t *testing.T) {
	vote := NewVote(Outpoint{Hash: hashFields("voter")}, hashFields("p"), VoteYes, testNow)
	h := vote.Hash()
	vote.SetValid(false)
	vote.SetSynced(true)
	assert.Equal(t, h, vote.Hash())
	assert.False(t, vote.IsValid())
	assert.True(t, vote.IsSynced())

	other := vote
	other.Direction = VoteAbstain
	assert.NotEqual(t, h, other.Hash())
}

func TestParseVoteDirection(t *testing.T) {
	for _, s := range []string{"yes", "YES", "no", "Abstain"} {
		d, err := ParseVoteDirection(s)
		require.NoError(t, err)
		assert.True(t, strings.EqualFold(s, d.String()))
	}
	_, err := ParseVoteDirection("maybe")
	require.Error(t, err)
}
